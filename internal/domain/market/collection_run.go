package market

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// RunStatus represents the outcome of a collection run or one platform in it
// ---------------------------------------------------------------------------

// RunStatus represents the outcome of a collection run or one platform in it
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// IsValid returns true if the status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is final
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartial || s == RunStatusFailed
}

// ErrorStage says where in the pipeline an error entry was recorded
type ErrorStage string

const (
	StageFetch     ErrorStage = "fetch"
	StageParse     ErrorStage = "parse"
	StageValidate  ErrorStage = "validate"
	StagePersist   ErrorStage = "persist"
	StageCancelled ErrorStage = "cancelled"
)

// ErrorEntry is one line of a run's error summary
type ErrorEntry struct {
	Platform  Platform   `json:"platform"`
	Stage     ErrorStage `json:"stage"`
	ProductID string     `json:"product_id,omitempty"`
	Message   string     `json:"message"`
}

// ---------------------------------------------------------------------------
// PlatformResult records what one platform contributed to a run
// ---------------------------------------------------------------------------

// PlatformResult records what one platform contributed to a run
type PlatformResult struct {
	Platform    Platform      `json:"platform"`
	Status      RunStatus     `json:"status"`
	Attempts    int           `json:"attempts"`
	Fetched     int           `json:"fetched"`
	Persisted   int           `json:"persisted"`
	Duplicates  int           `json:"duplicates"`
	Skipped     int           `json:"skipped"`
	FailedCalls int           `json:"failed_calls"`
	Errors      []ErrorEntry  `json:"errors,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// NewPlatformResult creates an empty result for the platform
func NewPlatformResult(p Platform) *PlatformResult {
	return &PlatformResult{Platform: p, Status: RunStatusRunning}
}

// RecordItemError records a skipped item
func (r *PlatformResult) RecordItemError(stage ErrorStage, productID string, err error) {
	r.Skipped++
	r.Errors = append(r.Errors, ErrorEntry{
		Platform:  r.Platform,
		Stage:     stage,
		ProductID: productID,
		Message:   err.Error(),
	})
}

// RecordCallError records an adapter call that failed after its retries,
// without failing the whole platform
func (r *PlatformResult) RecordCallError(stage ErrorStage, err error) {
	r.FailedCalls++
	r.Errors = append(r.Errors, ErrorEntry{
		Platform: r.Platform,
		Stage:    stage,
		Message:  err.Error(),
	})
}

// Fail marks the platform as failed with a platform-level error
func (r *PlatformResult) Fail(stage ErrorStage, err error) {
	r.Status = RunStatusFailed
	r.Errors = append(r.Errors, ErrorEntry{
		Platform: r.Platform,
		Stage:    stage,
		Message:  err.Error(),
	})
}

// Settle derives the platform status from its counts unless it already failed
func (r *PlatformResult) Settle() {
	if r.Status == RunStatusFailed {
		return
	}
	switch {
	case r.Skipped == 0 && r.FailedCalls == 0:
		r.Status = RunStatusSuccess
	case r.Persisted+r.Duplicates > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusFailed
	}
}

// ---------------------------------------------------------------------------
// CollectionRun is one collection cycle across all enabled platforms
// ---------------------------------------------------------------------------

// CollectionRun is one collection cycle across all enabled platforms.
// It is mutable until Finalize and read-only afterwards.
type CollectionRun struct {
	ID           uuid.UUID                    `json:"id"`
	StartedAt    time.Time                    `json:"started_at"`
	FinishedAt   *time.Time                   `json:"finished_at,omitempty"`
	Status       RunStatus                    `json:"status"`
	Platforms    map[Platform]*PlatformResult `json:"platforms"`
	ErrorSummary []ErrorEntry                 `json:"error_summary"`
}

// NewCollectionRun starts a run at the given time
func NewCollectionRun(startedAt time.Time) *CollectionRun {
	return &CollectionRun{
		ID:           uuid.New(),
		StartedAt:    startedAt,
		Status:       RunStatusRunning,
		Platforms:    make(map[Platform]*PlatformResult),
		ErrorSummary: []ErrorEntry{},
	}
}

// IsFinalized returns true once Finalize has been called
func (r *CollectionRun) IsFinalized() bool {
	return r.FinishedAt != nil
}

// AddResult attaches a platform result to the run
func (r *CollectionRun) AddResult(res *PlatformResult) error {
	if r.IsFinalized() {
		return ErrRunFinalized
	}
	r.Platforms[res.Platform] = res
	return nil
}

// Finalize computes the aggregate status and freezes the run.
// No platforms at all counts as failed.
func (r *CollectionRun) Finalize(finishedAt time.Time) error {
	if r.IsFinalized() {
		return ErrRunFinalized
	}

	failed := 0
	allSuccess := true
	for _, p := range AllPlatforms() {
		res, ok := r.Platforms[p]
		if !ok {
			continue
		}
		if res.Status == RunStatusRunning {
			res.Settle()
		}
		if res.Status == RunStatusFailed {
			failed++
		}
		if res.Status != RunStatusSuccess {
			allSuccess = false
		}
		r.ErrorSummary = append(r.ErrorSummary, res.Errors...)
	}

	switch {
	case len(r.Platforms) == 0 || failed == len(r.Platforms):
		r.Status = RunStatusFailed
	case allSuccess:
		r.Status = RunStatusSuccess
	default:
		r.Status = RunStatusPartial
	}
	r.FinishedAt = &finishedAt
	return nil
}

// PersistedCount returns the number of new snapshots stored across platforms
func (r *CollectionRun) PersistedCount() int {
	n := 0
	for _, res := range r.Platforms {
		n += res.Persisted
	}
	return n
}

// DuplicateCount returns the number of items that matched an already stored
// snapshot across platforms
func (r *CollectionRun) DuplicateCount() int {
	n := 0
	for _, res := range r.Platforms {
		n += res.Duplicates
	}
	return n
}
