package model

import "time"

// FailureReason classifies why an enrichment attempt did not succeed.
type FailureReason string

const (
	ReasonMissingProfile FailureReason = "missing-profile-data"
	ReasonMissingPattern FailureReason = "missing-email-pattern"
	ReasonFetchError     FailureReason = "fetch-error"
)

// OutcomeKind tags an AttemptOutcome.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// AttemptOutcome is the result of a single enrichment attempt. A success
// carries the extracted profile and pattern; a failure carries a reason.
type AttemptOutcome struct {
	Kind    OutcomeKind   `json:"kind"`
	Profile Profile       `json:"profile"`
	Pattern EmailPattern  `json:"pattern,omitempty"`
	Reason  FailureReason `json:"reason,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Succeeded builds a success outcome.
func Succeeded(profile Profile, pattern EmailPattern) AttemptOutcome {
	return AttemptOutcome{Kind: OutcomeSuccess, Profile: profile, Pattern: pattern}
}

// Failed builds a failure outcome. err may be nil for extraction misses.
func Failed(reason FailureReason, err error) AttemptOutcome {
	o := AttemptOutcome{Kind: OutcomeFailure, Reason: reason}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// OK reports whether the outcome is a success.
func (o AttemptOutcome) OK() bool { return o.Kind == OutcomeSuccess }

// Attempt records one attempt for a lead within a pipeline run.
type Attempt struct {
	Lead    Lead           `json:"lead"`
	Outcome AttemptOutcome `json:"outcome"`
	Number  int            `json:"attempt"`
	At      time.Time      `json:"timestamp"`
}
