package model

import "time"

// LeadState is the per-lead retry state.
type LeadState string

const (
	LeadPending    LeadState = "pending"
	LeadAttempting LeadState = "attempting"
	LeadSucceeded  LeadState = "succeeded"
	LeadSkipped    LeadState = "skipped"
)

// Terminal reports whether no further transitions are possible.
func (s LeadState) Terminal() bool {
	return s == LeadSucceeded || s == LeadSkipped
}

// Disposition is the history-log wording of a lead's final outcome.
type Disposition string

const (
	DispositionEnriched Disposition = "Enriched"
	DispositionSkipped  Disposition = "Skipped"
	// DispositionFailed marks a lead whose data was found but whose form
	// write failed.
	DispositionFailed Disposition = "Failed"
)

// LeadResult is the terminal record for one lead.
type LeadResult struct {
	Lead        Lead           `json:"lead"`
	State       LeadState      `json:"state"`
	Attempts    int            `json:"attempts"`
	Final       AttemptOutcome `json:"final"`
	Written     bool           `json:"written"`
	WriteError  string         `json:"write_error,omitempty"`
	Disposition Disposition    `json:"disposition"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// RunStatus is the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
)

// Run is one pass of the pipeline over a lead list. Attempts are in the
// order they happened.
type Run struct {
	ID          string       `json:"id"`
	Status      RunStatus    `json:"status"`
	Total       int          `json:"total"`
	Succeeded   int          `json:"succeeded"`
	Skipped     int          `json:"skipped"`
	WriteFailed int          `json:"write_failed"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Attempts    []Attempt    `json:"attempts,omitempty"`
	Results     []LeadResult `json:"results,omitempty"`
}

// Tally recomputes the outcome counters from Results.
func (r *Run) Tally() {
	r.Succeeded, r.Skipped, r.WriteFailed = 0, 0, 0
	for _, res := range r.Results {
		switch res.Disposition {
		case DispositionEnriched:
			r.Succeeded++
		case DispositionSkipped:
			r.Skipped++
		case DispositionFailed:
			r.WriteFailed++
		}
	}
}
