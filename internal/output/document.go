package output

import (
	"encoding/json"
	"io"

	"licensemedic/internal/engine"
)

// Document is the aggregate form written by JSON sinks on Close.
type Document struct {
	RunID    string                     `json:"run_id,omitempty"`
	Ruleset  string                     `json:"ruleset,omitempty"`
	Findings []Finding                  `json:"findings"`
	Warnings []engine.EvaluationWarning `json:"warnings,omitempty"`
	Partial  []string                   `json:"partial,omitempty"`
	Summary  *Summary                   `json:"summary,omitempty"`
}

// add folds a sink input into the document. Unknown values are ignored.
func (d *Document) add(v any) {
	switch t := v.(type) {
	case Finding:
		d.Findings = append(d.Findings, t)
	case Event:
		if t.RunID != "" {
			d.RunID = t.RunID
		}
		if t.Ruleset != "" {
			d.Ruleset = t.Ruleset
		}
		switch t.Type {
		case EventViolation:
			if t.Finding != nil {
				d.Findings = append(d.Findings, *t.Finding)
			}
		case EventWarning:
			if t.Warning != nil {
				d.Warnings = append(d.Warnings, *t.Warning)
			}
		case EventCollectionPartial:
			d.Partial = append(d.Partial, t.Error)
		case EventRunFinished:
			if t.Summary != nil {
				s := *t.Summary
				d.Summary = &s
			}
		}
	}
}

// toEvent converts a sink input into its streaming form.
func toEvent(v any) (Event, bool) {
	switch t := v.(type) {
	case Event:
		return t, true
	case Finding:
		return eventFromFinding(t), true
	default:
		return Event{}, false
	}
}

func encodeDocument(w io.Writer, d Document) error {
	if d.Findings == nil {
		d.Findings = []Finding{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(d); err != nil {
		return err
	}
	return flushIfPossible(w)
}

func encodeEvent(w io.Writer, v any) error {
	e, ok := toEvent(v)
	if !ok {
		return nil
	}
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	return flushIfPossible(w)
}

type flusher interface {
	Flush() error
}

// flushIfPossible flushes buffered writers such as *bufio.Writer.
func flushIfPossible(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
