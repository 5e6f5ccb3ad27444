package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"licensemedic/internal/violation"
)

// ReportSink renders a Markdown audit report on Close.
type ReportSink struct {
	path string
	file *os.File
	mu   sync.Mutex
	doc  Document

	artifacts int
	rules     int
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	f, err := createFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{
		path: path,
		file: f,
	}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := v.(Event); ok && e.Type == EventRunStarted {
		s.artifacts = e.Artifacts
		s.rules = e.Rules
	}
	s.doc.add(v)
	return nil
}

type ruleStats struct {
	RuleID     string
	Title      string
	Severity   violation.Severity
	Open       []Finding
	Suppressed int
}

type artifactStats struct {
	Artifact string
	Open     int
	Worst    violation.Severity
	Rules    map[string]struct{}
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	renderReport(&b, s.doc, s.artifacts, s.rules)

	if _, err := s.file.WriteString(b.String()); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func renderReport(b *strings.Builder, doc Document, artifacts, rulesCount int) {
	// 1. Aggregate
	perRule := make(map[string]*ruleStats)
	perArtifact := make(map[string]*artifactStats)
	openBySeverity := make(map[violation.Severity]int)
	suppressedBySeverity := make(map[violation.Severity]int)

	for _, f := range doc.Findings {
		rs, ok := perRule[f.RuleID]
		if !ok {
			rs = &ruleStats{RuleID: f.RuleID, Title: f.Title, Severity: f.Severity}
			perRule[f.RuleID] = rs
		}
		if f.Status == StatusSuppressed {
			rs.Suppressed++
			suppressedBySeverity[f.Severity]++
			continue
		}
		rs.Open = append(rs.Open, f)
		openBySeverity[f.Severity]++

		as, ok := perArtifact[f.Artifact]
		if !ok {
			as = &artifactStats{Artifact: f.Artifact, Rules: make(map[string]struct{})}
			perArtifact[f.Artifact] = as
		}
		as.Open++
		as.Rules[f.RuleID] = struct{}{}
		if f.Severity.Rank() > as.Worst.Rank() {
			as.Worst = f.Severity
		}
	}

	ruleList := make([]*ruleStats, 0, len(perRule))
	for _, rs := range perRule {
		ruleList = append(ruleList, rs)
	}
	sort.Slice(ruleList, func(i, j int) bool {
		if ruleList[i].Severity.Rank() != ruleList[j].Severity.Rank() {
			return ruleList[i].Severity.Rank() > ruleList[j].Severity.Rank()
		}
		if len(ruleList[i].Open) != len(ruleList[j].Open) {
			return len(ruleList[i].Open) > len(ruleList[j].Open)
		}
		return ruleList[i].RuleID < ruleList[j].RuleID
	})

	// 2. Build Report
	b.WriteString("# License Compliance Report\n\n")
	var runInfo []string
	if doc.RunID != "" {
		runInfo = append(runInfo, fmt.Sprintf("Run `%s`", doc.RunID))
	}
	if doc.Ruleset != "" {
		runInfo = append(runInfo, fmt.Sprintf("ruleset `%s`", doc.Ruleset))
	}
	if artifacts > 0 || rulesCount > 0 {
		runInfo = append(runInfo, fmt.Sprintf("%d artifacts evaluated against %d rules", artifacts, rulesCount))
	}
	if len(runInfo) > 0 {
		b.WriteString(strings.Join(runInfo, ", ") + ".\n\n")
	}

	// --- Summary ---
	b.WriteString("## Summary\n\n")
	b.WriteString("| Severity | Open | Suppressed |\n")
	b.WriteString("| --- | ---: | ---: |\n")
	for _, sev := range []violation.Severity{violation.SeverityError, violation.SeverityWarn, violation.SeverityInfo} {
		fmt.Fprintf(b, "| %s | %d | %d |\n", sev, openBySeverity[sev], suppressedBySeverity[sev])
	}
	b.WriteString("\n")
	if doc.Summary != nil {
		switch doc.Summary.ExitCode {
		case 0:
			b.WriteString("Result: **passed**.\n\n")
		case 1:
			b.WriteString("Result: **failed**, open violations at or above the failure threshold.\n\n")
		case 2:
			b.WriteString("Result: **incomplete**, some artifacts or rules could not be evaluated.\n\n")
		default:
			fmt.Fprintf(b, "Result: exit code %d.\n\n", doc.Summary.ExitCode)
		}
	}

	// --- Rules ---
	b.WriteString("## Rules with violations\n\n")
	if len(ruleList) == 0 {
		b.WriteString("No violations.\n\n")
	} else {
		b.WriteString("| Rule | Severity | Open | Suppressed | Affected artifacts |\n")
		b.WriteString("| --- | --- | ---: | ---: | --- |\n")
		for _, rs := range ruleList {
			name := fmt.Sprintf("**%s**", rs.RuleID)
			if rs.Title != "" {
				name += fmt.Sprintf("<br>_%s_", rs.Title)
			}
			fmt.Fprintf(b, "| %s | %s | %d | %d | %s |\n", name, rs.Severity, len(rs.Open), rs.Suppressed, formatArtifactList(uniqueArtifacts(rs.Open), 3))
		}
		b.WriteString("\n")
	}

	// --- Riskiest artifacts ---
	riskiest := topRiskiestArtifacts(perArtifact, 5)
	if len(riskiest) > 0 {
		b.WriteString("## Riskiest artifacts\n\n")
		b.WriteString("| Artifact | Open | Worst severity | Rules |\n")
		b.WriteString("| --- | ---: | --- | --- |\n")
		for _, as := range riskiest {
			ids := make([]string, 0, len(as.Rules))
			for id := range as.Rules {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			fmt.Fprintf(b, "| %s | %d | %s | %s |\n", as.Artifact, as.Open, as.Worst, strings.Join(ids, ", "))
		}
		b.WriteString("\n")
	}

	// --- Open violations ---
	b.WriteString("## Open violations\n\n")
	openRules := 0
	for _, rs := range ruleList {
		if len(rs.Open) == 0 {
			continue
		}
		openRules++
		fmt.Fprintf(b, "### %s (%s)\n", rs.RuleID, rs.Severity)
		for _, f := range rs.Open {
			fmt.Fprintf(b, "- **%s**", f.Artifact)
			if f.Message != "" {
				fmt.Fprintf(b, ": %s", f.Message)
			}
			fmt.Fprintf(b, " `%s`\n", f.Hash)
		}
		b.WriteString("\n")
	}
	if openRules == 0 {
		b.WriteString("- None\n\n")
	}

	// --- Baseline ---
	b.WriteString("## Suppressed by baseline\n\n")
	suppressedRules := 0
	for _, rs := range ruleList {
		if rs.Suppressed == 0 {
			continue
		}
		suppressedRules++
		fmt.Fprintf(b, "- **%s**: %d accepted\n", rs.RuleID, rs.Suppressed)
	}
	if suppressedRules == 0 {
		b.WriteString("- None\n")
	}
	b.WriteString("\n")

	// --- Warnings ---
	b.WriteString("## Evaluation warnings\n\n")
	if len(doc.Warnings) == 0 {
		b.WriteString("- None\n\n")
	} else {
		b.WriteString("These rule and artifact pairs could not be evaluated and are not reflected above.\n\n")
		byRule := make(map[string][]string)
		for _, w := range doc.Warnings {
			byRule[w.RuleID] = append(byRule[w.RuleID], fmt.Sprintf("%s (%s)", w.Artifact, w.Detail))
		}
		ids := make([]string, 0, len(byRule))
		for id := range byRule {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			affected := byRule[id]
			sort.Strings(affected)
			fmt.Fprintf(b, "- **%s**: %s\n", id, formatArtifactList(affected, 5))
		}
		b.WriteString("\n")
	}

	// --- Partial collection ---
	if len(doc.Partial) > 0 {
		b.WriteString("## Collection gaps\n\n")
		for _, p := range doc.Partial {
			fmt.Fprintf(b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
}

func uniqueArtifacts(findings []Finding) []string {
	seen := make(map[string]struct{}, len(findings))
	var out []string
	for _, f := range findings {
		if _, ok := seen[f.Artifact]; ok {
			continue
		}
		seen[f.Artifact] = struct{}{}
		out = append(out, f.Artifact)
	}
	sort.Strings(out)
	return out
}

func topRiskiestArtifacts(perArtifact map[string]*artifactStats, limit int) []*artifactStats {
	out := make([]*artifactStats, 0, len(perArtifact))
	for _, as := range perArtifact {
		out = append(out, as)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Worst.Rank() != out[j].Worst.Rank() {
			return out[i].Worst.Rank() > out[j].Worst.Rank()
		}
		if out[i].Open != out[j].Open {
			return out[i].Open > out[j].Open
		}
		return out[i].Artifact < out[j].Artifact
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// formatArtifactList renders at most limit entries, then "+N more".
func formatArtifactList(items []string, limit int) string {
	if len(items) == 0 {
		return "-"
	}
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(items[:limit], ", "), len(items)-limit)
}
