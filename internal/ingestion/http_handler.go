package ingestion

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rpattn/sheetingest/internal/domain"
)

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Handler exposes ingestion as an HTTP endpoint.
type Handler struct {
	runner Runner
}

// NewHTTPHandler wraps the runner with a GET/POST trigger endpoint.
func NewHTTPHandler(runner Runner) http.Handler {
	return &Handler{runner: runner}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := h.runner.Run(r.Context())
	writeJSON(w, StatusCode(summary, err), summary)
}

// StatusCode maps a run to its HTTP status: 200 for success and partial runs,
// 500 otherwise.
func StatusCode(summary Summary, err error) int {
	if err != nil || summary.Status == domain.RunStatusFailure {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
