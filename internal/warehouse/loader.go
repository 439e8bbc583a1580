package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/retry"

	"go.uber.org/zap"
)

// LoadResult describes a finished Load call.
type LoadResult struct {
	Table    string `json:"table"`
	Rows     int    `json:"rows"`
	Applied  bool   `json:"applied"`
	Attempts int    `json:"attempts"`
}

// Loader appends batches with bounded retries.
type Loader struct {
	warehouse Warehouse
	policy    retry.Policy
	log       *zap.Logger
}

// NewLoader wraps warehouse with the retry policy. policy.Retryable defaults
// to Retryable.
func NewLoader(warehouse Warehouse, policy retry.Policy, log *zap.Logger) *Loader {
	if policy.Retryable == nil {
		policy.Retryable = Retryable
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{warehouse: warehouse, policy: policy, log: log.Named("loader")}
}

// Load writes batch. Empty append batches are skipped without touching the
// warehouse and report zero attempts. Exhausted or stopped retries come back
// wrapped in ErrLoad.
func (l *Loader) Load(ctx context.Context, batch Batch) (LoadResult, error) {
	result := LoadResult{Table: batch.Table.Name, Rows: batch.Len()}
	if batch.Len() == 0 && !batch.Replace {
		return result, nil
	}

	policy := l.policy
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		l.log.Warn("append failed, retrying",
			zap.String("table", batch.Table.Name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	outcome := retry.Do(ctx, policy, func(ctx context.Context) (bool, error) {
		return l.warehouse.Append(ctx, batch)
	})
	result.Attempts = outcome.Attempts
	if !outcome.OK() {
		return result, fmt.Errorf("%w: %s after %d attempt(s) (%s): %w",
			ErrLoad, batch.Table.Name, outcome.Attempts, outcome.Status, outcome.Err)
	}

	result.Applied = outcome.Value
	if !result.Applied {
		l.log.Info("batch already present, skipped",
			zap.String("table", batch.Table.Name),
			zap.String("batch_key", batch.Key),
		)
	}
	return result, nil
}

// PrimaryKeys reads the keys stored in kind's raw table with the same retry
// policy as appends.
func (l *Loader) PrimaryKeys(ctx context.Context, kind domain.Kind) ([]int64, error) {
	outcome := retry.Do(ctx, l.policy, func(ctx context.Context) ([]int64, error) {
		return l.warehouse.PrimaryKeys(ctx, kind)
	})
	if !outcome.OK() {
		return nil, fmt.Errorf("%w: read keys of %s after %d attempt(s) (%s): %w",
			ErrLoad, kind.RawTable(), outcome.Attempts, outcome.Status, outcome.Err)
	}
	return outcome.Value, nil
}
