package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/sheetingest/internal/domain"
)

type stubRunner struct {
	summary Summary
	err     error
	calls   int
}

func (s *stubRunner) Run(ctx context.Context) (Summary, error) {
	s.calls++
	return s.summary, s.err
}

var _ Runner = (*Service)(nil)

func TestHandlerStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status domain.RunStatus
		err    error
		want   int
	}{
		{"success", domain.RunStatusSuccess, nil, http.StatusOK},
		{"partial", domain.RunStatusPartial, nil, http.StatusOK},
		{"failure", domain.RunStatusFailure, nil, http.StatusInternalServerError},
		{"fatal", domain.RunStatusFailure, errors.New("configuration missing"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &stubRunner{summary: Summary{Run: domain.Run{Status: tc.status}, State: StateDone}, err: tc.err}
			handler := NewHTTPHandler(runner)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tc.status), body["status"])
		})
	}
}

func TestHandlerRejectsOtherMethods(t *testing.T) {
	runner := &stubRunner{}
	rec := httptest.NewRecorder()
	NewHTTPHandler(runner).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, runner.calls)
}

func TestHandlerRunsServiceEndToEnd(t *testing.T) {
	h := newHarness(t, allFiles(t))
	rec := httptest.NewRecorder()
	NewHTTPHandler(h.service).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, domain.RunStatusSuccess, summary.Status)
	assert.Len(t, summary.Files, 4)
	assert.Equal(t, "challenge", summary.Dataset)
	assert.Equal(t, 110, summary.Totals.Valid)
}
