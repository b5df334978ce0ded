package wire

import "github.com/panthersecurity/panther/pkg/risk"

// ComputeRisk aggregates report findings into a score using the severity
// weights. Unknown severities weigh zero; validation rejects them upstream.
func ComputeRisk(findings []Finding) risk.Score {
	total := 0
	for _, f := range findings {
		total += risk.Severity(f.Severity).Weight()
	}
	return risk.NewScore(total)
}
