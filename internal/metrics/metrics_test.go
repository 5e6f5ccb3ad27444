package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"licensemedic/internal/engine"
	"licensemedic/internal/violation"
)

func testResult() engine.Result {
	return engine.Result{
		Violations: []violation.PolicyViolation{
			{RuleID: "no-gpl", Severity: violation.SeverityError, Hash: "h1"},
			{RuleID: "no-gpl", Severity: violation.SeverityError, Hash: "h2"},
			{RuleID: "copyright-missing", Severity: violation.SeverityWarn, Hash: "h3"},
		},
		Warnings: []engine.EvaluationWarning{
			{RuleID: "vulnerable", Artifact: "npm:a@1", Stage: engine.StageCondition},
		},
		Stats: engine.Stats{Artifacts: 4, Rules: 3, Deduplicated: 2, Allowed: 1},
	}
}

func TestCollector_ObserveEvaluation(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.ObserveEvaluation(testResult(), 20*time.Millisecond)
	c.ObserveEvaluation(testResult(), 40*time.Millisecond)

	if got := testutil.ToFloat64(c.evaluations); got != 2 {
		t.Errorf("evaluations: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(c.artifacts); got != 8 {
		t.Errorf("artifacts: want 8, got %v", got)
	}
	if got := testutil.ToFloat64(c.violations.WithLabelValues("no-gpl", "error")); got != 4 {
		t.Errorf("violations{no-gpl,error}: want 4, got %v", got)
	}
	if got := testutil.ToFloat64(c.violations.WithLabelValues("copyright-missing", "warn")); got != 2 {
		t.Errorf("violations{copyright-missing,warn}: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(c.warnings.WithLabelValues("vulnerable", "condition")); got != 2 {
		t.Errorf("warnings: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(c.deduplicated); got != 4 {
		t.Errorf("deduplicated: want 4, got %v", got)
	}
	if got := testutil.ToFloat64(c.allowed); got != 2 {
		t.Errorf("allowed: want 2, got %v", got)
	}
	if got := testutil.CollectAndCount(c.evaluationDuration); got != 1 {
		t.Errorf("duration histogram: want 1 series, got %d", got)
	}
}

func TestCollector_ObserveAudit(t *testing.T) {
	c := NewCollector(nil)
	at := time.Unix(1700000000, 0)
	c.ObserveAudit(1, at)
	c.ObserveAudit(42, at)

	if got := testutil.ToFloat64(c.auditRuns.WithLabelValues("1")); got != 1 {
		t.Errorf("audit_runs{1}: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(c.auditRuns.WithLabelValues("3")); got != 1 {
		t.Errorf("unknown exit codes should fold into 3, got %v", got)
	}
	if got := testutil.ToFloat64(c.lastAudit); got != 1700000000 {
		t.Errorf("last audit: want 1700000000, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveEvaluation(testResult(), time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `licensemedic_violations_total{rule_id="no-gpl",severity="error"} 2`) {
		t.Fatalf("expected violations series in body:\n%s", rec.Body.String())
	}
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveAudit(0, time.Now())

	path := filepath.Join(t.TempDir(), "licensemedic.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), `licensemedic_audit_runs_total{exit_code="0"} 1`) {
		t.Fatalf("unexpected textfile contents:\n%s", b)
	}
}
