package output

import (
	"licensemedic/internal/engine"
	"licensemedic/internal/violation"
)

// Status is the baseline status of a reported violation.
type Status string

const (
	// StatusOpen marks a violation that is not in the baseline.
	StatusOpen Status = "OPEN"
	// StatusSuppressed marks a violation accepted by the baseline.
	StatusSuppressed Status = "SUPPRESSED"
)

// Finding is a policy violation together with its baseline status.
type Finding struct {
	violation.PolicyViolation
	Status Status `json:"status"`
}

// Event types streamed by NDJSON sinks.
const (
	EventRunStarted        = "run.started"
	EventViolation         = "violation"
	EventWarning           = "evaluation.warning"
	EventCollectionPartial = "collection.partial"
	EventRunFinished       = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line), in order:
// run.started, then violation / evaluation.warning / collection.partial,
// then run.finished.
//
// JSON mode aggregates everything into a single Document instead.
type Event struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id,omitempty"`
	Ruleset string `json:"ruleset,omitempty"`
	*Finding
	Warning   *engine.EvaluationWarning `json:"warning,omitempty"`
	Error     string                    `json:"error,omitempty"`
	Artifacts int                       `json:"artifacts,omitempty"`
	Rules     int                       `json:"rules,omitempty"`
	Summary   *Summary                  `json:"summary,omitempty"`
}

// Summary closes a run.
type Summary struct {
	Artifacts    int `json:"artifacts"`
	Rules        int `json:"rules"`
	Open         int `json:"open"`
	Suppressed   int `json:"suppressed"`
	Warnings     int `json:"warnings"`
	Deduplicated int `json:"deduplicated"`
	Partial      int `json:"partial"`
	ExitCode     int `json:"exit_code"`
}

func eventFromFinding(f Finding) Event {
	return Event{Type: EventViolation, Finding: &f}
}

// WarningEvent wraps an evaluation warning for streaming.
func WarningEvent(w engine.EvaluationWarning) Event {
	return Event{Type: EventWarning, Warning: &w}
}

// PartialEvent reports a collection failure that did not abort the run.
func PartialEvent(err error) Event {
	return Event{Type: EventCollectionPartial, Error: err.Error()}
}
