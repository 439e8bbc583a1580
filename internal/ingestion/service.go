// Package ingestion runs the spreadsheet ingestion pipeline: resolve
// configuration, fetch files, validate and route rows, load them and record
// what happened.
package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/sheetingest/internal/config"
	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/metrics"
	"github.com/rpattn/sheetingest/internal/middleware"
	"github.com/rpattn/sheetingest/internal/retry"
	"github.com/rpattn/sheetingest/internal/storage"
	"github.com/rpattn/sheetingest/internal/warehouse"
)

// ErrLoad is returned for files whose rows could not be appended.
var ErrLoad = warehouse.ErrLoad

// SettingsResolver yields the configuration of one run.
type SettingsResolver interface {
	Settings(ctx context.Context) (config.Settings, error)
}

// FetcherFactory opens the object store once the run configuration is known.
type FetcherFactory func(ctx context.Context, settings config.Settings) (storage.Fetcher, error)

// WarehouseFactory opens the warehouse once the run configuration is known.
type WarehouseFactory func(ctx context.Context, settings config.Settings) (warehouse.Warehouse, error)

// Service ingests the configured spreadsheets into the warehouse.
type Service struct {
	resolver     SettingsResolver
	newFetcher   FetcherFactory
	newWarehouse WarehouseFactory

	log               *zap.Logger
	metrics           *metrics.Metrics
	fetchPolicy       retry.Policy
	loadPolicy        retry.Policy
	now               func() time.Time
	newID             func() uuid.UUID
	referenceSnapshot bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithFetchPolicy overrides the retry policy of object fetches.
func WithFetchPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.fetchPolicy = p
	}
}

// WithLoadPolicy overrides the retry policy of warehouse appends.
func WithLoadPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.loadPolicy = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how run ids are generated.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithReferenceSnapshot unions the keys already stored in raw_customers and
// raw_products into the reference set before the first load.
func WithReferenceSnapshot(enabled bool) Option {
	return func(s *Service) {
		s.referenceSnapshot = enabled
	}
}

// NewService creates a new ingestion service.
func NewService(resolver SettingsResolver, newFetcher FetcherFactory, newWarehouse WarehouseFactory, opts ...Option) *Service {
	s := &Service{
		resolver:     resolver,
		newFetcher:   newFetcher,
		newWarehouse: newWarehouse,
		log:          zap.NewNop(),
		fetchPolicy:  retry.DefaultPolicy(),
		loadPolicy:   retry.DefaultPolicy(),
		now:          time.Now,
		newID:        uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("ingestion")
	return s
}

// Summary reports the outcome of a run.
type Summary struct {
	domain.Run
	State   State  `json:"state"`
	Dataset string `json:"dataset,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
}

// Run executes one ingestion. Per-file failures are reported in the summary
// and do not produce an error; the error is set only when the run as a whole
// failed to start or to record its summary.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	r := newRunner(s)
	if requestID, ok := middleware.RequestIDFromContext(ctx); ok {
		r.log = r.log.With(zap.String("request_id", requestID))
	}
	err := r.execute(ctx)

	summary := Summary{
		Run:     *r.run,
		State:   r.state,
		Dataset: r.settings.Dataset,
		Bucket:  r.settings.Bucket,
	}
	s.metrics.ObserveRun(string(summary.Status), summary.FinishedAt.Sub(summary.StartedAt))
	return summary, err
}
