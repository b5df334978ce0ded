package wire

import (
	"fmt"
	"strings"

	"github.com/panthersecurity/panther/pkg/policy"
	"github.com/panthersecurity/panther/pkg/risk"
	"github.com/panthersecurity/panther/pkg/telemetry"
)

// ValidateTelemetryEvent checks required fields and enum values. The message
// strings are stable: mobile clients surface them verbatim in debug builds.
func ValidateTelemetryEvent(e *TelemetryEvent) error {
	if err := nonEmpty("event_id", e.EventID); err != nil {
		return err
	}
	if err := nonEmpty("app_id", e.AppID); err != nil {
		return err
	}
	if err := nonEmpty("app_version", e.AppVersion); err != nil {
		return err
	}
	if err := nonEmpty("env", e.Env); err != nil {
		return err
	}
	if err := nonEmpty("device.os_version", e.Device.OSVersion); err != nil {
		return err
	}
	if err := nonEmpty("device.model", e.Device.Model); err != nil {
		return err
	}
	if err := nonEmpty("action.name", e.Action.Name); err != nil {
		return err
	}
	if err := nonEmpty("timestamp", e.Timestamp); err != nil {
		return err
	}
	if err := nonEmpty("signature", e.Signature); err != nil {
		return err
	}
	if !telemetry.Platform(e.Device.Platform).Valid() {
		return fmt.Errorf("device.platform is invalid")
	}
	if e.Attestation != nil {
		if !telemetry.AttestationProvider(e.Attestation.Provider).Valid() {
			return fmt.Errorf("attestation.provider is invalid")
		}
		if !telemetry.AttestationStatus(e.Attestation.Result).Valid() {
			return fmt.Errorf("attestation.result is invalid")
		}
	}
	if e.SigVersion != 0 && e.SigVersion != 1 && e.SigVersion != 2 {
		return fmt.Errorf("sig_version is invalid")
	}
	return nil
}

// ValidatePolicy checks a policy document before it is stored or served.
func ValidatePolicy(p *Policy) error {
	if err := nonEmpty("policy_id", p.PolicyID); err != nil {
		return err
	}
	if err := nonEmpty("app_id", p.AppID); err != nil {
		return err
	}
	if err := nonEmpty("app_version", p.AppVersion); err != nil {
		return err
	}
	if err := nonEmpty("env", p.Env); err != nil {
		return err
	}
	if err := nonEmpty("signature", p.Signature); err != nil {
		return err
	}
	if err := nonEmpty("issued_at", p.IssuedAt); err != nil {
		return err
	}
	if len(p.Rules) == 0 {
		return fmt.Errorf("policy.rules must not be empty")
	}
	for _, rule := range p.Rules {
		if err := nonEmpty("policy.rule.action", rule.Action); err != nil {
			return err
		}
		if !policy.Decision(rule.Decision).Valid() {
			return fmt.Errorf("policy.rule.decision is invalid")
		}
		if rule.Conditions != nil && rule.Conditions.Attestation != nil {
			if !telemetry.AttestationStatus(*rule.Conditions.Attestation).Valid() {
				return fmt.Errorf("policy.rule.conditions.attestation is invalid")
			}
		}
	}
	return nil
}

// ValidateReportUpload checks a CI report before it is persisted.
func ValidateReportUpload(r *ReportUpload) error {
	if err := nonEmpty("report_id", r.ReportID); err != nil {
		return err
	}
	if err := nonEmpty("app_id", r.AppID); err != nil {
		return err
	}
	if err := nonEmpty("env", r.Env); err != nil {
		return err
	}
	if err := nonEmpty("source", r.Source); err != nil {
		return err
	}
	if err := nonEmpty("artifacts.format", r.Artifacts.Format); err != nil {
		return err
	}
	if err := nonEmpty("artifacts.payload", r.Artifacts.Payload); err != nil {
		return err
	}
	if err := nonEmpty("timestamp", r.Timestamp); err != nil {
		return err
	}
	for _, f := range r.Findings {
		if err := nonEmpty("finding.category", f.Category); err != nil {
			return err
		}
		if !risk.Severity(f.Severity).Valid() {
			return fmt.Errorf("finding.severity is invalid")
		}
	}
	return nil
}

func nonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	return nil
}
