package risk

import "github.com/panthersecurity/panther/pkg/telemetry"

// Scorer turns an event and any accompanying findings into a risk score.
type Scorer interface {
	ScoreEvent(e telemetry.Event, findings []Finding) Score
}

// SignalScorer is the default client-side model: fixed weights per integrity
// signal plus a flat increment per finding. Weights are part of the deployed
// SDK behavior; changing them changes decisions in the field.
type SignalScorer struct{}

func (SignalScorer) ScoreEvent(e telemetry.Event, findings []Finding) Score {
	total := signalWeight(e)
	total += 5 * len(findings)
	return NewScore(total)
}

// WeightedScorer replaces the flat per-finding increment with severity
// weights so client scores line up with server-side report aggregation.
type WeightedScorer struct{}

func (WeightedScorer) ScoreEvent(e telemetry.Event, findings []Finding) Score {
	total := signalWeight(e)
	for _, f := range findings {
		total += f.Severity.Weight()
	}
	return NewScore(total)
}

func signalWeight(e telemetry.Event) int {
	total := 0
	if e.Signals.Jailbreak || e.Signals.Root {
		total += 40
	}
	if e.Signals.Debugger || e.Signals.Hooking {
		total += 30
	}
	if e.Signals.ProxyDetected {
		total += 20
	}
	if e.Attestation != nil && e.Attestation.Status == telemetry.AttestationFail {
		total += 30
	}
	return total
}

var (
	_ Scorer = SignalScorer{}
	_ Scorer = WeightedScorer{}
)
