package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the overall outcome of an ingestion run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailure RunStatus = "failure"
)

// FileStatus is the outcome of one file within a run.
type FileStatus string

const (
	FileStatusLoaded FileStatus = "loaded"
	// FileStatusUnchanged marks a file whose batches were already present in
	// the warehouse from an earlier run.
	FileStatusUnchanged FileStatus = "unchanged"
	FileStatusFailed    FileStatus = "failed"
)

// Stage names the pipeline step a file failure happened in.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
	StageLoad  Stage = "load"
)

// Counts tracks per-file or per-run row totals. Read always equals
// Valid+Invalid once a file has been validated.
type Counts struct {
	Read    int `json:"read"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Read += other.Read
	c.Valid += other.Valid
	c.Invalid += other.Invalid
}

// Reconciles reports whether every read row was routed to exactly one side.
func (c Counts) Reconciles() bool {
	return c.Read == c.Valid+c.Invalid
}

// FileOutcome captures the result of processing one configured file.
type FileOutcome struct {
	FileName      string     `json:"file"`
	Kind          Kind       `json:"entity,omitempty"`
	Status        FileStatus `json:"status"`
	Stage         Stage      `json:"stage,omitempty"`
	Counts        Counts     `json:"counts"`
	FetchAttempts int        `json:"fetchAttempts,omitempty"`
	BatchKey      string     `json:"batchKey,omitempty"`
	MaxID         *int64     `json:"maxId,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    time.Time  `json:"finishedAt"`

	// Existing counts valid rows whose key was stored by an earlier run and
	// so were not appended again.
	Existing int `json:"existing,omitempty"`
}

// Succeeded reports whether the file's rows are in the warehouse.
func (o FileOutcome) Succeeded() bool {
	return o.Status == FileStatusLoaded || o.Status == FileStatusUnchanged
}

// Run represents one invocation of the pipeline.
type Run struct {
	ID         uuid.UUID     `json:"runId"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Files      []FileOutcome `json:"files"`
	Totals     Counts        `json:"totals"`
	Error      string        `json:"error,omitempty"`
}

// NewRun starts a run at the given time.
func NewRun(id uuid.UUID, startedAt time.Time) *Run {
	return &Run{
		ID:        id,
		StartedAt: startedAt,
		Files:     []FileOutcome{},
	}
}

// AddFile appends a file outcome and folds its counts into the totals.
func (r *Run) AddFile(outcome FileOutcome) {
	r.Files = append(r.Files, outcome)
	r.Totals.Add(outcome.Counts)
}

// Finalize derives the run status from the file outcomes.
func (r *Run) Finalize(finishedAt time.Time) {
	r.FinishedAt = finishedAt

	succeeded := 0
	for _, file := range r.Files {
		if file.Succeeded() {
			succeeded++
		}
	}

	switch {
	case succeeded == len(r.Files):
		r.Status = RunStatusSuccess
	case succeeded == 0:
		r.Status = RunStatusFailure
	default:
		r.Status = RunStatusPartial
	}
}

// Fail marks the run as failed with the given cause.
func (r *Run) Fail(finishedAt time.Time, err error) {
	r.FinishedAt = finishedAt
	r.Status = RunStatusFailure
	if err != nil {
		r.Error = err.Error()
	}
}
