// Package risk models bounded risk scores and scan findings.
package risk

// Score is a risk value clamped to [0, 100]. Construct via NewScore; the
// stored value is always in range.
type Score struct {
	value int
}

// NewScore clamps v into [0, 100].
func NewScore(v int) Score {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return Score{value: v}
}

func (s Score) Value() int {
	return s.value
}

// Severity ranks a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Weight returns the scoring contribution of one finding at this severity.
// Unknown severities contribute nothing.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 5
	case SeverityMedium:
		return 10
	case SeverityHigh:
		return 20
	case SeverityCritical:
		return 30
	}
	return 0
}

// Finding is one scanner observation feeding the risk model. Evidence is
// arbitrary structured detail and may be nil.
type Finding struct {
	Category string
	Severity Severity
	Evidence map[string]interface{}
}

// ComputeFromFindings aggregates finding severities into a score.
func ComputeFromFindings(findings []Finding) Score {
	total := 0
	for _, f := range findings {
		total += f.Severity.Weight()
	}
	return NewScore(total)
}
