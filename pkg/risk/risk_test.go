package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/panthersecurity/panther/pkg/telemetry"
)

func TestNewScore_Clamps(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-50, 0},
		{-1, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{101, 100},
		{5000, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NewScore(tc.in).Value(), "input %d", tc.in)
	}
}

func TestSeverity_Weight(t *testing.T) {
	assert.Equal(t, 5, SeverityLow.Weight())
	assert.Equal(t, 10, SeverityMedium.Weight())
	assert.Equal(t, 20, SeverityHigh.Weight())
	assert.Equal(t, 30, SeverityCritical.Weight())
	assert.Equal(t, 0, Severity("bogus").Weight())
}

func TestComputeFromFindings(t *testing.T) {
	findings := []Finding{
		{Category: "network", Severity: SeverityLow},
		{Category: "binary", Severity: SeverityMedium},
		{Category: "runtime", Severity: SeverityCritical},
	}
	assert.Equal(t, 45, ComputeFromFindings(findings).Value())
	assert.Equal(t, 0, ComputeFromFindings(nil).Value())

	// Four criticals saturate the scale.
	many := make([]Finding, 4)
	for i := range many {
		many[i] = Finding{Category: "x", Severity: SeverityCritical}
	}
	assert.Equal(t, 100, ComputeFromFindings(many).Value())
}

func eventWithSignals(s telemetry.IntegritySignals, att *telemetry.AttestationResult) telemetry.Event {
	return telemetry.Event{
		EventID:     "evt-1",
		AppID:       "fintech.mobile",
		AppVersion:  "1.0.0",
		Env:         "prod",
		Signals:     s,
		Attestation: att,
		Action:      telemetry.ActionContext{Name: "login"},
	}
}

func TestSignalScorer_Weights(t *testing.T) {
	scorer := SignalScorer{}

	clean := eventWithSignals(telemetry.BaselineSignals(), nil)
	assert.Equal(t, 0, scorer.ScoreEvent(clean, nil).Value())

	jb := eventWithSignals(telemetry.IntegritySignals{Jailbreak: true}, nil)
	assert.Equal(t, 40, scorer.ScoreEvent(jb, nil).Value())

	// Jailbreak and root share one weight bucket.
	rooted := eventWithSignals(telemetry.IntegritySignals{Jailbreak: true, Root: true}, nil)
	assert.Equal(t, 40, scorer.ScoreEvent(rooted, nil).Value())

	dbg := eventWithSignals(telemetry.IntegritySignals{Debugger: true}, nil)
	assert.Equal(t, 30, scorer.ScoreEvent(dbg, nil).Value())

	// Debugger and hooking share one weight bucket.
	both := eventWithSignals(telemetry.IntegritySignals{Debugger: true, Hooking: true}, nil)
	assert.Equal(t, 30, scorer.ScoreEvent(both, nil).Value())

	proxy := eventWithSignals(telemetry.IntegritySignals{ProxyDetected: true}, nil)
	assert.Equal(t, 20, scorer.ScoreEvent(proxy, nil).Value())

	failAtt := eventWithSignals(telemetry.BaselineSignals(), &telemetry.AttestationResult{
		Provider: telemetry.AttestationAppAttest,
		Status:   telemetry.AttestationFail,
	})
	assert.Equal(t, 30, scorer.ScoreEvent(failAtt, nil).Value())

	passAtt := eventWithSignals(telemetry.BaselineSignals(), &telemetry.AttestationResult{
		Provider: telemetry.AttestationAppAttest,
		Status:   telemetry.AttestationPass,
	})
	assert.Equal(t, 0, scorer.ScoreEvent(passAtt, nil).Value())
}

func TestSignalScorer_FindingsFlatIncrement(t *testing.T) {
	scorer := SignalScorer{}
	e := eventWithSignals(telemetry.BaselineSignals(), nil)

	findings := []Finding{
		{Category: "a", Severity: SeverityCritical},
		{Category: "b", Severity: SeverityLow},
		{Category: "c", Severity: SeverityLow},
	}
	// Flat +5 each regardless of severity.
	assert.Equal(t, 15, scorer.ScoreEvent(e, findings).Value())
}

func TestSignalScorer_Saturates(t *testing.T) {
	scorer := SignalScorer{}
	e := eventWithSignals(telemetry.IntegritySignals{
		Jailbreak:     true,
		Root:          true,
		Debugger:      true,
		Hooking:       true,
		ProxyDetected: true,
	}, &telemetry.AttestationResult{Provider: telemetry.AttestationNone, Status: telemetry.AttestationFail})

	findings := make([]Finding, 10)
	assert.Equal(t, 100, scorer.ScoreEvent(e, findings).Value())
}

func TestWeightedScorer_UsesSeverityWeights(t *testing.T) {
	scorer := WeightedScorer{}
	e := eventWithSignals(telemetry.IntegritySignals{ProxyDetected: true}, nil)

	findings := []Finding{
		{Category: "a", Severity: SeverityCritical},
		{Category: "b", Severity: SeverityLow},
	}
	// 20 (proxy) + 30 + 5.
	assert.Equal(t, 55, scorer.ScoreEvent(e, findings).Value())
}
