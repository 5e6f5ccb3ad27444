package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"licensemedic/internal/violation"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	doc             Document // For JSON output
	allowedStatuses map[Status]bool
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[Status]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[Status(strings.ToUpper(strings.TrimSpace(st)))] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

// filtered reports whether v is a finding excluded by the status filter.
func (s *ConsoleSink) filtered(v any) bool {
	if len(s.allowedStatuses) == 0 {
		return false
	}
	switch t := v.(type) {
	case Finding:
		return !s.allowedStatuses[t.Status]
	case Event:
		return t.Finding != nil && !s.allowedStatuses[t.Finding.Status]
	}
	return false
}

func (s *ConsoleSink) writeLocked(v any) error {
	if s.filtered(v) {
		return nil
	}

	switch s.format {
	case "json":
		s.doc.add(v)
		return nil
	case "ndjson":
		return encodeEvent(s.writer, v)
	case "text":
		line, ok := textLine(v)
		if !ok {
			return nil
		}
		if _, err := fmt.Fprintln(s.writer, line); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

var (
	openError  = color.New(color.FgRed, color.Bold).SprintFunc()
	openWarn   = color.New(color.FgYellow).SprintFunc()
	openInfo   = color.New(color.FgCyan).SprintFunc()
	suppressed = color.New(color.Faint).SprintFunc()
	bold       = color.New(color.Bold).SprintFunc()
)

func statusLabel(f Finding) string {
	label := "[" + string(f.Status) + "]"
	if f.Status == StatusSuppressed {
		return suppressed(label)
	}
	switch f.Severity {
	case violation.SeverityError:
		return openError(label)
	case violation.SeverityWarn:
		return openWarn(label)
	default:
		return openInfo(label)
	}
}

// textLine renders one human-readable console line. Lifecycle events other
// than warnings, partial collection and the final summary are not shown.
func textLine(v any) (string, bool) {
	if e, ok := v.(Event); ok && e.Finding != nil {
		v = *e.Finding
	}
	switch t := v.(type) {
	case Finding:
		line := fmt.Sprintf("%s %s %s: %s", statusLabel(t), t.Severity, bold(t.RuleID), t.Artifact)
		if t.Message != "" {
			line += " - " + t.Message
		}
		return line, true
	case Event:
		switch t.Type {
		case EventWarning:
			if t.Warning == nil {
				return "", false
			}
			return openWarn("[WARNING]") + " " + t.Warning.Error(), true
		case EventCollectionPartial:
			return openWarn("[PARTIAL]") + " " + t.Error, true
		case EventRunFinished:
			if t.Summary == nil {
				return "", false
			}
			sum := t.Summary
			return fmt.Sprintf("%s %d open, %d suppressed, %d warnings across %d artifacts and %d rules",
				bold("Summary:"), sum.Open, sum.Suppressed, sum.Warnings, sum.Artifacts, sum.Rules), true
		}
	}
	return "", false
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		return encodeDocument(s.writer, s.doc)
	case "text", "ndjson":
		return nil
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}
