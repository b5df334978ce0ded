package policy

import (
	"github.com/panthersecurity/panther/pkg/risk"
	"github.com/panthersecurity/panther/pkg/telemetry"
)

// Evaluate walks the set's rules in order and returns the first matching
// rule's decision. A set with no matching rule allows the action.
func Evaluate(set Set, action telemetry.ActionContext, signals telemetry.IntegritySignals, attestation *telemetry.AttestationResult, score risk.Score) Decision {
	for _, rule := range set.Rules {
		if rule.Matches(action, signals, attestation, score, set.AppVersion) {
			return rule.Decision
		}
	}
	return Allow
}
