package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/panthersecurity/panther/pkg/policy"
	"github.com/panthersecurity/panther/pkg/risk"
	"github.com/panthersecurity/panther/pkg/telemetry"
)

// EventToWire converts a stamped event to its wire shape. Both stamps must be
// present; the pipeline is the only place they are set.
func EventToWire(e telemetry.Event) (*TelemetryEvent, error) {
	if e.Timestamp == nil {
		return nil, errors.New("telemetry.timestamp is required")
	}
	if e.Signature == "" {
		return nil, errors.New("telemetry.signature is required")
	}
	out := &TelemetryEvent{
		EventID:    e.EventID,
		AppID:      e.AppID,
		AppVersion: e.AppVersion,
		Env:        e.Env,
		Device:     deviceToWire(e.Device),
		Signals:    signalsToWire(e.Signals),
		Action:     actionToWire(e.Action),
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		Signature:  e.Signature,
		SigVersion: e.SigVersion,
	}
	if e.Session != nil {
		s := sessionToWire(*e.Session)
		out.Session = &s
	}
	if e.Attestation != nil {
		a := attestationToWire(*e.Attestation)
		out.Attestation = &a
	}
	return out, nil
}

// EventFromWire converts an ingested event back to the domain model.
func EventFromWire(e *TelemetryEvent) (telemetry.Event, error) {
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return telemetry.Event{}, fmt.Errorf("parse telemetry timestamp: %w", err)
	}
	out := telemetry.Event{
		EventID:    e.EventID,
		AppID:      e.AppID,
		AppVersion: e.AppVersion,
		Env:        e.Env,
		Device:     deviceFromWire(e.Device),
		Signals:    signalsFromWire(e.Signals),
		Action:     actionFromWire(e.Action),
		Timestamp:  &ts,
		Signature:  e.Signature,
		SigVersion: e.SigVersion,
	}
	if e.Session != nil {
		s := sessionFromWire(*e.Session)
		out.Session = &s
	}
	if e.Attestation != nil {
		a := attestationFromWire(*e.Attestation)
		out.Attestation = &a
	}
	return out, nil
}

func deviceToWire(d telemetry.DeviceInfo) DeviceInfo {
	return DeviceInfo{Platform: string(d.Platform), OSVersion: d.OSVersion, Model: d.Model}
}

func deviceFromWire(d DeviceInfo) telemetry.DeviceInfo {
	return telemetry.DeviceInfo{Platform: telemetry.Platform(d.Platform), OSVersion: d.OSVersion, Model: d.Model}
}

func sessionToWire(s telemetry.SessionInfo) SessionInfo {
	out := SessionInfo{SessionID: s.SessionID}
	if s.UserIDHash != "" {
		h := s.UserIDHash
		out.UserIDHash = &h
	}
	return out
}

func sessionFromWire(s SessionInfo) telemetry.SessionInfo {
	out := telemetry.SessionInfo{SessionID: s.SessionID}
	if s.UserIDHash != nil {
		out.UserIDHash = *s.UserIDHash
	}
	return out
}

func signalsToWire(s telemetry.IntegritySignals) IntegritySignals {
	return IntegritySignals{
		Jailbreak:     s.Jailbreak,
		Root:          s.Root,
		Debugger:      s.Debugger,
		Hooking:       s.Hooking,
		ProxyDetected: s.ProxyDetected,
	}
}

func signalsFromWire(s IntegritySignals) telemetry.IntegritySignals {
	return telemetry.IntegritySignals{
		Jailbreak:     s.Jailbreak,
		Root:          s.Root,
		Debugger:      s.Debugger,
		Hooking:       s.Hooking,
		ProxyDetected: s.ProxyDetected,
	}
}

func attestationToWire(a telemetry.AttestationResult) AttestationResult {
	out := AttestationResult{Provider: string(a.Provider), Result: string(a.Status)}
	if a.Timestamp != "" {
		ts := a.Timestamp
		out.Timestamp = &ts
	}
	return out
}

func attestationFromWire(a AttestationResult) telemetry.AttestationResult {
	out := telemetry.AttestationResult{
		Provider: telemetry.AttestationProvider(a.Provider),
		Status:   telemetry.AttestationStatus(a.Result),
	}
	if a.Timestamp != nil {
		out.Timestamp = *a.Timestamp
	}
	return out
}

func actionToWire(a telemetry.ActionContext) ActionContext {
	out := ActionContext{Name: a.Name}
	if a.Context != "" {
		c := a.Context
		out.Context = &c
	}
	return out
}

func actionFromWire(a ActionContext) telemetry.ActionContext {
	out := telemetry.ActionContext{Name: a.Name}
	if a.Context != nil {
		out.Context = *a.Context
	}
	return out
}

// PolicyToWire converts a domain policy set to its wire document.
func PolicyToWire(set policy.Set) *Policy {
	rules := make([]PolicyRule, 0, len(set.Rules))
	for _, r := range set.Rules {
		rules = append(rules, ruleToWire(r))
	}
	return &Policy{
		PolicyID:   set.PolicyID,
		AppID:      set.AppID,
		AppVersion: set.AppVersion,
		Env:        set.Env,
		Rules:      rules,
		Signature:  set.Signature,
		IssuedAt:   set.IssuedAt,
	}
}

// PolicyFromWire converts a wire policy document to the domain set.
func PolicyFromWire(p *Policy) policy.Set {
	rules := make([]policy.Rule, 0, len(p.Rules))
	for _, r := range p.Rules {
		rules = append(rules, ruleFromWire(r))
	}
	return policy.Set{
		PolicyID:   p.PolicyID,
		AppID:      p.AppID,
		AppVersion: p.AppVersion,
		Env:        p.Env,
		Rules:      rules,
		Signature:  p.Signature,
		IssuedAt:   p.IssuedAt,
	}
}

func ruleToWire(r policy.Rule) PolicyRule {
	c := conditionsToWire(r.Conditions)
	return PolicyRule{
		Action:     r.Action,
		Decision:   string(r.Decision),
		Conditions: &c,
	}
}

func ruleFromWire(r PolicyRule) policy.Rule {
	out := policy.Rule{Action: r.Action, Decision: policy.Decision(r.Decision)}
	if r.Conditions != nil {
		out.Conditions = conditionsFromWire(*r.Conditions)
	}
	return out
}

func conditionsToWire(c policy.Conditions) PolicyConditions {
	out := PolicyConditions{
		Debugger:      c.Debugger,
		Hooking:       c.Hooking,
		ProxyDetected: c.ProxyDetected,
		AppVersion:    c.AppVersion,
	}
	if c.Attestation != nil {
		s := string(*c.Attestation)
		out.Attestation = &s
	}
	if c.RiskScoreGTE != nil && *c.RiskScoreGTE >= 0 {
		v := uint32(*c.RiskScoreGTE)
		out.RiskScoreGTE = &v
	}
	return out
}

func conditionsFromWire(c PolicyConditions) policy.Conditions {
	out := policy.Conditions{
		Debugger:      c.Debugger,
		Hooking:       c.Hooking,
		ProxyDetected: c.ProxyDetected,
		AppVersion:    c.AppVersion,
	}
	if c.Attestation != nil {
		s := telemetry.AttestationStatus(*c.Attestation)
		out.Attestation = &s
	}
	if c.RiskScoreGTE != nil {
		v := int(*c.RiskScoreGTE)
		out.RiskScoreGTE = &v
	}
	return out
}

// FindingToWire converts a domain finding, marshalling evidence when present.
func FindingToWire(f risk.Finding) (Finding, error) {
	out := Finding{Category: f.Category, Severity: string(f.Severity)}
	if f.Evidence != nil {
		raw, err := json.Marshal(f.Evidence)
		if err != nil {
			return Finding{}, fmt.Errorf("marshal finding evidence: %w", err)
		}
		out.Evidence = raw
	}
	return out, nil
}

// FindingFromWire converts a wire finding. Evidence is carried only when it
// is a JSON object; other shapes pass through storage untouched but have no
// domain representation.
func FindingFromWire(f Finding) risk.Finding {
	out := risk.Finding{Category: f.Category, Severity: risk.Severity(f.Severity)}
	if len(f.Evidence) > 0 {
		var m map[string]interface{}
		if err := json.Unmarshal(f.Evidence, &m); err == nil {
			out.Evidence = m
		}
	}
	return out
}
