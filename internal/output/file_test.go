package output

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"licensemedic/internal/violation"
)

func TestNewFileSink_Formats(t *testing.T) {
	tests := []struct {
		file    string
		format  string
		want    Format
		wantErr string
	}{
		{file: "out.json", want: FormatJSON},
		{file: "out.jsonl", want: FormatNDJSON},
		{file: "out.json", format: "NDJSON", want: FormatNDJSON},
		{file: "out.unknown", wantErr: "cannot infer output format"},
		{file: "out.json", format: "xml", wantErr: "unsupported output format"},
	}
	for _, tt := range tests {
		t.Run(tt.file+"/"+tt.format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			s, err := NewFileSink(path, tt.format)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("want error containing %q, got %v", tt.wantErr, err)
				}
				if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
					t.Fatalf("rejected sink must not create %s", path)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFileSink failed: %v", err)
			}
			if s.format != tt.want || s.path != path {
				t.Fatalf("got format %q path %q", s.format, s.path)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
		})
	}
}

func TestFileSink_JSON_AggregatesFindingsAndEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")

	s, err := NewFileSink(path, "json")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	if err := s.Write(Event{Type: EventRunStarted, RunID: "run-9"}); err != nil {
		t.Fatalf("Write event failed: %v", err)
	}
	if err := s.Write(testFinding("r1", "npm:a@1", violation.SeverityInfo, StatusOpen)); err != nil {
		t.Fatalf("Write finding failed: %v", err)
	}
	if err := s.Write(testFinding("r2", "npm:a@1", violation.SeverityError, StatusSuppressed)); err != nil {
		t.Fatalf("Write finding failed: %v", err)
	}
	if err := s.Write(PartialEvent(errors.New("acme/x: boom"))); err != nil {
		t.Fatalf("Write event failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var got Document
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v\nbody=%s", err, string(b))
	}
	if got.RunID != "run-9" {
		t.Fatalf("expected run id, got %q", got.RunID)
	}
	if len(got.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(got.Findings))
	}
	if got.Findings[0].RuleID != "r1" || got.Findings[1].Status != StatusSuppressed {
		t.Fatalf("unexpected findings order/content: %#v", got.Findings)
	}
	if len(got.Partial) != 1 || got.Partial[0] != "acme/x: boom" {
		t.Fatalf("unexpected partial: %v", got.Partial)
	}
}

func TestFileSink_NDJSON_StreamsEventsAndFindings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")

	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Write(Event{Type: EventRunStarted}); err != nil {
		t.Fatalf("Write event failed: %v", err)
	}

	// Each write lands on disk immediately.
	b1, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(b1), `"type":"run.started"`) || !strings.HasSuffix(string(b1), "\n") {
		t.Fatalf("expected run.started line after first Write, got %q", string(b1))
	}

	if err := s.Write(testFinding("r1", "npm:a@1", violation.SeverityWarn, StatusOpen)); err != nil {
		t.Fatalf("Write finding failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d\nbody=%s", len(lines), string(b))
	}

	var e2 Event
	if err := json.Unmarshal([]byte(lines[1]), &e2); err != nil {
		t.Fatalf("Unmarshal line 2 failed: %v", err)
	}
	if e2.Type != EventViolation || e2.Finding == nil {
		t.Fatalf("unexpected violation event: %#v", e2)
	}
	if e2.RuleID != "r1" || e2.Status != StatusOpen {
		t.Fatalf("unexpected finding payload: %#v", e2.Finding)
	}
}

func TestFileSink_CloseErrorNamesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")
	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink returned error: %v", err)
	}
	if err := s.closer.Close(); err != nil {
		t.Fatalf("close underlying file: %v", err)
	}
	err = s.Close()
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected close error naming %s, got %v", path, err)
	}
}
