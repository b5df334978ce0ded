// Package policy implements the ordered-rule decision engine.
package policy

import (
	"github.com/panthersecurity/panther/pkg/risk"
	"github.com/panthersecurity/panther/pkg/telemetry"
)

// Decision is the outcome a policy rule prescribes. The constants are the
// wire encoding.
type Decision string

const (
	Allow   Decision = "ALLOW"
	StepUp  Decision = "STEP_UP"
	Degrade Decision = "DEGRADE"
	Deny    Decision = "DENY"
)

func (d Decision) Valid() bool {
	switch d {
	case Allow, StepUp, Degrade, Deny:
		return true
	}
	return false
}

// Conditions guard a rule. Nil fields are unconstrained, so the zero value
// matches any event state.
type Conditions struct {
	Attestation   *telemetry.AttestationStatus
	Debugger      *bool
	Hooking       *bool
	ProxyDetected *bool
	AppVersion    *string
	RiskScoreGTE  *int
}

// Rule maps one action to a decision when its conditions hold.
type Rule struct {
	Action     string
	Decision   Decision
	Conditions Conditions
}

// Set is the ordered rule list distributed for one (app, version, env) key.
// Rule order is significant: evaluation takes the first match.
type Set struct {
	PolicyID   string
	AppID      string
	AppVersion string
	Env        string
	Rules      []Rule
	Signature  string
	IssuedAt   string
}

// Matches checks the rule against an event's state. An attestation condition
// cannot be satisfied by an event that carries no attestation. The
// app_version condition compares against the policy set's own version field,
// which callers pass as policyAppVersion.
func (r Rule) Matches(action telemetry.ActionContext, signals telemetry.IntegritySignals, attestation *telemetry.AttestationResult, score risk.Score, policyAppVersion string) bool {
	if r.Action != action.Name {
		return false
	}
	c := r.Conditions
	if c.Attestation != nil {
		if attestation == nil {
			return false
		}
		if attestation.Status != *c.Attestation {
			return false
		}
	}
	if c.Debugger != nil && signals.Debugger != *c.Debugger {
		return false
	}
	if c.Hooking != nil && signals.Hooking != *c.Hooking {
		return false
	}
	if c.ProxyDetected != nil && signals.ProxyDetected != *c.ProxyDetected {
		return false
	}
	if c.AppVersion != nil && *c.AppVersion != policyAppVersion {
		return false
	}
	if c.RiskScoreGTE != nil && score.Value() < *c.RiskScoreGTE {
		return false
	}
	return true
}
