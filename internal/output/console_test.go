package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"licensemedic/internal/engine"
	"licensemedic/internal/violation"
)

func TestConsoleSink_Filtering(t *testing.T) {
	open := testFinding("no-gpl", "npm:a@1", violation.SeverityError, StatusOpen)
	suppressed := testFinding("no-gpl", "npm:b@1", violation.SeverityError, StatusSuppressed)

	tests := []struct {
		name           string
		format         string
		filterStatuses []string
		input          Finding
		shouldWrite    bool
	}{
		{name: "text - no filter - open", format: "text", input: open, shouldWrite: true},
		{name: "text - no filter - suppressed", format: "text", input: suppressed, shouldWrite: true},
		{name: "text - filter OPEN - input SUPPRESSED", format: "text", filterStatuses: []string{"OPEN"}, input: suppressed, shouldWrite: false},
		{name: "text - filter OPEN - input OPEN", format: "text", filterStatuses: []string{"OPEN"}, input: open, shouldWrite: true},
		{name: "text - filter OPEN,SUPPRESSED - input SUPPRESSED", format: "text", filterStatuses: []string{"OPEN", "SUPPRESSED"}, input: suppressed, shouldWrite: true},
		{name: "json - filter OPEN - input SUPPRESSED", format: "json", filterStatuses: []string{"OPEN"}, input: suppressed, shouldWrite: false},
		{name: "json - filter OPEN - input OPEN", format: "json", filterStatuses: []string{"OPEN"}, input: open, shouldWrite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := NewConsoleSink(&buf, tt.format, tt.filterStatuses)

			if err := sink.Write(tt.input); err != nil {
				t.Fatalf("Write error: %v", err)
			}

			if tt.format == "json" {
				// JSON output is buffered until Close.
				want := 0
				if tt.shouldWrite {
					want = 1
				}
				if len(sink.doc.Findings) != want {
					t.Errorf("expected %d findings buffered, got %d", want, len(sink.doc.Findings))
				}
				return
			}

			wroteSomething := buf.Len() > 0
			if tt.shouldWrite && !wroteSomething {
				t.Errorf("expected output, got none")
			}
			if !tt.shouldWrite && wroteSomething {
				t.Errorf("expected no output, got: %q", buf.String())
			}
		})
	}
}

func TestConsoleSink_Filtering_CaseInsensitive(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", []string{"open"})

	if err := sink.Write(testFinding("no-gpl", "npm:a@1", violation.SeverityWarn, StatusOpen)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected output for case-insensitive match, got none")
	}
}

func TestConsoleSink_Text(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", nil)

	writes := []any{
		Event{Type: EventRunStarted, RunID: "run-1"},
		testFinding("no-gpl", "npm:a@1", violation.SeverityError, StatusOpen),
		WarningEvent(engine.EvaluationWarning{RuleID: "vulnerable", Artifact: "npm:b@1", Stage: engine.StageCondition, Detail: "malformed", Err: errors.New("malformed")}),
		PartialEvent(errors.New("acme/broken: fetch license file: 500")),
		Event{Type: EventRunFinished, Summary: &Summary{Artifacts: 2, Rules: 3, Open: 1, Warnings: 1, ExitCode: 2}},
	}
	for _, w := range writes {
		if err := sink.Write(w); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines (run.started is silent), got %d: %q", len(lines), buf.String())
	}
	for i, want := range []string{"no-gpl: npm:a@1 - npm:a@1 violates no-gpl", "[WARNING] rule vulnerable on npm:b@1", "[PARTIAL] acme/broken", "1 open, 0 suppressed, 1 warnings"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d: expected %q in %q", i, want, lines[i])
		}
	}
}

func TestConsoleSink_JSON_WritesDocumentOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "json", nil)

	_ = sink.Write(Event{Type: EventRunStarted, RunID: "run-1", Ruleset: "builtin:default"})
	_ = sink.Write(testFinding("no-gpl", "npm:a@1", violation.SeverityError, StatusOpen))
	_ = sink.Write(WarningEvent(engine.EvaluationWarning{RuleID: "r", Artifact: "a", Stage: engine.StageHash, Detail: "d"}))
	if buf.Len() != 0 {
		t.Fatalf("expected no output before Close, got %q", buf.String())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc.RunID != "run-1" || doc.Ruleset != "builtin:default" {
		t.Fatalf("unexpected run info: %+v", doc)
	}
	if len(doc.Findings) != 1 || doc.Findings[0].Status != StatusOpen || doc.Findings[0].Hash == "" {
		t.Fatalf("unexpected findings: %+v", doc.Findings)
	}
	if len(doc.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(doc.Warnings))
	}
}

func TestConsoleSink_Filtering_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "ndjson", []string{"OPEN"})

	if err := sink.Write(testFinding("no-gpl", "npm:a@1", violation.SeverityError, StatusSuppressed)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if buf.Len() > 0 {
		t.Errorf("expected no output for SUPPRESSED, got: %s", buf.String())
	}

	if err := sink.Write(testFinding("no-gpl", "npm:a@1", violation.SeverityError, StatusOpen)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"type":"violation"`, `"status":"OPEN"`, `"rule_id":"no-gpl"`, `"hash":"TMWMoKktXaxNAUS6/G+8AA=="`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestConsoleSink_UnsupportedFormat(t *testing.T) {
	sink := NewConsoleSink(&bytes.Buffer{}, "yaml", nil)
	if err := sink.Write(testFinding("r", "a", violation.SeverityInfo, StatusOpen)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConsoleSink_NDJSON_FlushesPerWrite(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	defer pw.Close()

	bw := bufio.NewWriterSize(pw, 64*1024)
	s := NewConsoleSink(bw, "ndjson", nil)

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		r := bufio.NewReader(pr)
		line, err := r.ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		lineCh <- line
	}()

	if err := s.Write(Event{Type: EventRunStarted, RunID: "run-1"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	select {
	case line := <-lineCh:
		if !strings.Contains(line, `"type":"run.started"`) || !strings.Contains(line, `"run_id":"run-1"`) {
			t.Fatalf("expected run.started event, got %q", line)
		}
	case err := <-errCh:
		t.Fatalf("read error: %v", err)
	case <-time.After(250 * time.Millisecond):
		t.Fatalf("timed out waiting for ndjson line; writer likely not flushing")
	}
}
