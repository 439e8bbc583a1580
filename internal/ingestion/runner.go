package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rpattn/sheetingest/internal/audit"
	"github.com/rpattn/sheetingest/internal/config"
	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/retry"
	"github.com/rpattn/sheetingest/internal/routing"
	"github.com/rpattn/sheetingest/internal/sheet"
	"github.com/rpattn/sheetingest/internal/storage"
	"github.com/rpattn/sheetingest/internal/validation"
	"github.com/rpattn/sheetingest/internal/warehouse"
)

// runner holds the state of a single run. It is not reused.
type runner struct {
	svc      *Service
	run      *domain.Run
	state    State
	settings config.Settings
	log      *zap.Logger

	fetcher   storage.Fetcher
	warehouse warehouse.Warehouse
	loader    *warehouse.Loader
	recorder  *audit.Recorder
	refs      *validation.References
}

// plannedFile is one configured file moving through the pipeline.
type plannedFile struct {
	outcome domain.FileOutcome
	payload []byte
	routed  routing.Routed
	ready   bool
}

func newRunner(s *Service) *runner {
	run := domain.NewRun(s.newID(), s.now())
	return &runner{
		svc:   s,
		run:   run,
		state: StateInit,
		log:   s.log.With(zap.String("run_id", run.ID.String())),
		refs:  validation.NewReferences(),
	}
}

func (r *runner) transition(state State) {
	r.log.Debug("state transition", zap.String("from", string(r.state)), zap.String("to", string(state)))
	r.state = state
}

// fail ends the run. Nothing is recorded when the warehouse is not open yet.
func (r *runner) fail(ctx context.Context, err error) error {
	r.run.Fail(r.svc.now(), err)
	r.log.Error("ingestion run failed", zap.String("state", string(r.state)), zap.Error(err))
	if r.recorder != nil {
		_ = r.recorder.RecordRun(ctx, r.run)
	}
	r.transition(StateFailed)
	return err
}

func (r *runner) execute(ctx context.Context) error {
	r.log.Info("ingestion run started")

	r.transition(StateResolvingConfig)
	settings, err := r.svc.resolver.Settings(ctx)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("resolve configuration: %w", err))
	}
	r.settings = settings

	wh, err := r.svc.newWarehouse(ctx, settings)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("open warehouse: %w", err))
	}
	defer closeQuietly(r.log, "warehouse", wh.Close)
	r.warehouse = wh

	if err := wh.EnsureTables(ctx, warehouse.AllTables()); err != nil {
		return r.fail(ctx, fmt.Errorf("ensure tables: %w", err))
	}

	loadPolicy := r.svc.loadPolicy
	loadPolicy.OnRetry = func(int, error, time.Duration) { r.svc.metrics.ObserveRetry("load") }
	r.loader = warehouse.NewLoader(wh, loadPolicy, r.log)
	r.recorder = audit.NewRecorder(r.loader, r.log)

	fetcher, err := r.svc.newFetcher(ctx, settings)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("open object store: %w", err))
	}
	defer closeQuietly(r.log, "fetcher", fetcher.Close)
	r.fetcher = fetcher

	files := r.plan(settings.Files)

	r.transition(StateFetchingFiles)
	for _, file := range files {
		if file.outcome.Status != domain.FileStatusFailed {
			r.fetch(ctx, file)
		}
	}

	if r.svc.referenceSnapshot {
		r.snapshotReferences(ctx, files)
	}

	for _, file := range files {
		if file.outcome.Status != domain.FileStatusFailed {
			r.prepare(file)
		}
	}

	r.transition(StateLoading)
	for _, file := range files {
		if file.ready {
			r.load(ctx, file)
		}
		r.finishFile(ctx, file)
	}

	r.transition(StateRecordingMetadata)
	r.run.Finalize(r.svc.now())
	if err := r.recorder.RecordRun(ctx, r.run); err != nil {
		return r.fail(ctx, fmt.Errorf("record run summary: %w", err))
	}

	r.transition(StateDone)
	r.log.Info("ingestion run finished",
		zap.String("status", string(r.run.Status)),
		zap.Int("files", len(r.run.Files)),
		zap.Int("rows_read", r.run.Totals.Read),
		zap.Int("rows_valid", r.run.Totals.Valid),
		zap.Int("rows_invalid", r.run.Totals.Invalid),
	)
	return nil
}

// plan maps configured names to kinds and orders them by processing rank.
// Names that map to no kind fail immediately.
func (r *runner) plan(names []string) []*plannedFile {
	files := make([]*plannedFile, 0, len(names))
	for _, name := range names {
		file := &plannedFile{outcome: domain.FileOutcome{FileName: name, StartedAt: r.svc.now()}}
		kind, err := domain.KindFromFileName(name)
		if err != nil {
			r.markFailed(file, domain.StageParse, err)
		} else {
			file.outcome.Kind = kind
		}
		files = append(files, file)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return rank(files[i]) < rank(files[j])
	})
	return files
}

func rank(file *plannedFile) int {
	if file.outcome.Kind == "" {
		return len(domain.ProcessingOrder) + 1
	}
	return file.outcome.Kind.Rank()
}

func (r *runner) fetch(ctx context.Context, file *plannedFile) {
	policy := r.svc.fetchPolicy
	policy.Retryable = storage.Retryable
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.svc.metrics.ObserveRetry("fetch")
		r.log.Warn("fetch failed, retrying",
			zap.String("file", file.outcome.FileName),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	outcome := retry.Do(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return r.fetcher.Fetch(ctx, r.settings.Bucket, file.outcome.FileName)
	})
	file.outcome.FetchAttempts = outcome.Attempts
	if !outcome.OK() {
		r.markFailed(file, domain.StageFetch, fmt.Errorf("fetch %s after %d attempt(s): %w",
			file.outcome.FileName, outcome.Attempts, outcome.Err))
		return
	}

	file.payload = outcome.Value
	r.log.Info("file fetched",
		zap.String("file", file.outcome.FileName),
		zap.Int("bytes", len(file.payload)),
		zap.Int("attempts", outcome.Attempts),
	)
}

// snapshotReferences unions keys already in the warehouse into the reference
// set for reference kinds without a fetched file in this run. A fetched file
// replaces its raw table, so stored keys would go stale. It runs before the
// first load of the run.
func (r *runner) snapshotReferences(ctx context.Context, files []*plannedFile) {
	fetched := make(map[domain.Kind]bool, len(files))
	for _, file := range files {
		if file.outcome.Status != domain.FileStatusFailed {
			fetched[file.outcome.Kind] = true
		}
	}

	for _, kind := range domain.ProcessingOrder {
		if !kind.IsReference() || fetched[kind] {
			continue
		}
		keys, err := r.loader.PrimaryKeys(ctx, kind)
		if err != nil {
			r.log.Warn("reference snapshot failed", zap.String("entity", string(kind)), zap.Error(err))
			continue
		}
		r.refs.Add(kind, keys...)
		r.log.Info("reference snapshot loaded", zap.String("entity", string(kind)), zap.Int("keys", len(keys)))
	}
}

// prepare parses, validates and routes a fetched file. Valid keys of reference
// kinds join the reference set for the kinds that follow.
func (r *runner) prepare(file *plannedFile) {
	kind := file.outcome.Kind
	log := r.log.With(zap.String("file", file.outcome.FileName), zap.String("entity", string(kind)))

	table, err := sheet.Parse(file.outcome.FileName, file.payload)
	if err != nil {
		r.markFailed(file, domain.StageParse, fmt.Errorf("parse %s: %w", file.outcome.FileName, err))
		return
	}
	if missing := validation.MissingColumns(kind, table); len(missing) > 0 {
		log.Warn("file is missing columns", zap.Strings("columns", missing))
	}

	r.transition(StateValidating)
	var refs *validation.References
	referenced := validation.ReferencedKinds(kind)
	if len(referenced) > 0 {
		refs = r.refs
	}
	results := validation.Validate(kind, table, refs)

	r.transition(StateRouting)
	file.routed = routing.Route(results)
	file.outcome.Counts = domain.Counts{
		Read:    file.routed.Read(),
		Valid:   len(file.routed.Valid),
		Invalid: len(file.routed.Invalid),
	}
	file.outcome.MaxID = file.routed.MaxID()
	file.outcome.BatchKey = BatchKey(kind, file.payload, r.refs.Digest(referenced...))
	file.ready = true

	if kind.IsReference() {
		r.refs.Add(kind, file.routed.IDs()...)
	}

	log.Info("file validated",
		zap.Int("rows_read", file.outcome.Counts.Read),
		zap.Int("rows_valid", file.outcome.Counts.Valid),
		zap.Int("rows_invalid", file.outcome.Counts.Invalid),
	)
}

// load writes a prepared file. Reference kinds replace their raw table;
// other kinds append only rows whose primary key is not stored yet. Every
// invalid table is replaced with the file's current rejects.
func (r *runner) load(ctx context.Context, file *plannedFile) {
	kind := file.outcome.Kind
	meta := rowMeta{
		RunID:      r.run.ID.String(),
		BatchKey:   file.outcome.BatchKey,
		SourceFile: file.outcome.FileName,
		IngestedAt: r.svc.now(),
	}

	valid := file.routed.Valid
	if !kind.IsReference() {
		stored, err := r.loader.PrimaryKeys(ctx, kind)
		if err != nil {
			r.markFailed(file, domain.StageLoad, err)
			return
		}
		valid = unstored(valid, stored)
		file.outcome.Existing = len(file.routed.Valid) - len(valid)
	}

	raw := rawBatch(kind, meta, valid)
	raw.Replace = kind.IsReference()
	invalid := invalidBatch(kind, meta, file.routed.Invalid)
	invalid.Replace = true

	attempted, applied := 0, 0
	invalidLanded := false
	var loadErr error
	for _, batch := range []warehouse.Batch{raw, invalid} {
		result, err := r.loader.Load(ctx, batch)
		if err != nil {
			loadErr = errors.Join(loadErr, err)
			continue
		}
		if batch.Table.Name == invalid.Table.Name {
			invalidLanded = true
		}
		if result.Attempts > 0 {
			attempted++
		}
		if result.Applied {
			applied++
		}
	}

	switch {
	case loadErr != nil:
		r.markFailed(file, domain.StageLoad, loadErr)
	case attempted > 0 && applied == 0:
		file.outcome.Status = domain.FileStatusUnchanged
	default:
		file.outcome.Status = domain.FileStatusLoaded
	}

	// Error entries mirror the invalid table; without it they would dangle.
	if invalidLanded && len(file.routed.Invalid) > 0 {
		entries := validationErrors(meta, *r.run, kind, file.routed.Invalid)
		_ = r.recorder.RecordErrors(ctx, meta.BatchKey, entries)
	}
}

// finishFile records the file outcome in the run, the metrics and the
// warehouse.
func (r *runner) finishFile(ctx context.Context, file *plannedFile) {
	file.outcome.FinishedAt = r.svc.now()
	outcome := file.outcome

	if outcome.Status == domain.FileStatusFailed {
		entry := audit.FileErrorEntry(r.run.ID, outcome, errorType(outcome.Stage), outcome.FinishedAt)
		_ = r.recorder.RecordErrors(ctx, "", []domain.ErrorEntry{entry})
	}
	_ = r.recorder.RecordFile(ctx, r.run.ID, outcome)

	r.run.AddFile(outcome)
	r.svc.metrics.ObserveFile(string(outcome.Kind), string(outcome.Status))
	r.svc.metrics.ObserveRows(string(outcome.Kind), outcome.Counts.Valid, outcome.Counts.Invalid)

	r.log.Info("file finished",
		zap.String("file", outcome.FileName),
		zap.String("status", string(outcome.Status)),
		zap.String("batch_key", outcome.BatchKey),
		zap.Int("rows_existing", outcome.Existing),
	)
}

func (r *runner) markFailed(file *plannedFile, stage domain.Stage, err error) {
	file.outcome.Status = domain.FileStatusFailed
	file.outcome.Stage = stage
	file.outcome.Error = err.Error()
	file.ready = false
	r.log.Error("file failed",
		zap.String("file", file.outcome.FileName),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
}

func errorType(stage domain.Stage) domain.ErrorType {
	switch stage {
	case domain.StageFetch:
		return domain.ErrorTypeFetch
	case domain.StageLoad:
		return domain.ErrorTypeLoad
	default:
		return domain.ErrorTypeParse
	}
}

func closeQuietly(log *zap.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn("close failed", zap.String("resource", what), zap.Error(err))
	}
}
