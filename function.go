// Package sheetingest is the Cloud Functions entry point for spreadsheet
// ingestion. Deploy with entry point Ingest.
package sheetingest

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"go.uber.org/zap"

	"github.com/rpattn/sheetingest/internal/app"
	"github.com/rpattn/sheetingest/internal/config"
)

var (
	initOnce sync.Once
	handler  http.Handler
	initErr  error
)

func init() {
	functions.HTTP("Ingest", Ingest)
}

// Ingest runs one ingestion and writes the JSON summary.
func Ingest(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "."
		}
		var cfg config.App
		cfg, initErr = config.Load(configPath)
		if initErr != nil {
			return
		}
		var application *app.App
		application, initErr = app.New(context.Background(), cfg)
		if initErr != nil {
			return
		}
		handler = application.Handler()
	})
	if initErr != nil {
		unavailable(w, fallbackLogger(), initErr)
		return
	}
	handler.ServeHTTP(w, r)
}

// fallbackLogger is used before the configured logger exists.
func fallbackLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func unavailable(w http.ResponseWriter, log *zap.Logger, err error) {
	log.Error("ingestion function failed to initialise", zap.Error(err))
	_ = log.Sync()
	http.Error(w, "ingestion unavailable", http.StatusInternalServerError)
}
