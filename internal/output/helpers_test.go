package output

import (
	"licensemedic/internal/violation"
)

func testFinding(ruleID, artifact string, sev violation.Severity, status Status) Finding {
	return Finding{
		PolicyViolation: violation.PolicyViolation{
			RuleID:   ruleID,
			Severity: sev,
			Message:  artifact + " violates " + ruleID,
			Artifact: artifact,
			Values:   []string{"GPL-3.0"},
			Hash:     "TMWMoKktXaxNAUS6/G+8AA==",
		},
		Status: status,
	}
}
