// Package wire defines the JSON shapes exchanged between SDKs, agents, and
// the backend services, together with strict decoding, validation, and the
// conversions to and from the domain types. The JSON layout is a compatibility
// contract with deployed mobile clients and must only change additively.
package wire

import "encoding/json"

// DeviceInfo describes the reporting device on the wire.
type DeviceInfo struct {
	Platform  string `json:"platform"`
	OSVersion string `json:"os_version"`
	Model     string `json:"model"`
}

// SessionInfo is the optional session block of a telemetry event.
type SessionInfo struct {
	SessionID  string  `json:"session_id"`
	UserIDHash *string `json:"user_id_hash,omitempty"`
}

// IntegritySignals carries the five boolean detections. All five are always
// emitted; clients that cannot probe a signal report false.
type IntegritySignals struct {
	Jailbreak     bool `json:"jailbreak"`
	Root          bool `json:"root"`
	Debugger      bool `json:"debugger"`
	Hooking       bool `json:"hooking"`
	ProxyDetected bool `json:"proxy_detected"`
}

// AttestationResult is the platform attestation block. The wire field is
// "result"; the domain calls it Status.
type AttestationResult struct {
	Provider  string  `json:"provider"`
	Result    string  `json:"result"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// ActionContext names the action an event was captured for.
type ActionContext struct {
	Name    string  `json:"name"`
	Context *string `json:"context,omitempty"`
}

// TelemetryEvent is the ingestion payload for POST /v1/telemetry/events.
// sig_version is absent for the legacy colon-joined signing payload and 2 for
// the canonical JSON scheme.
type TelemetryEvent struct {
	EventID     string             `json:"event_id"`
	AppID       string             `json:"app_id"`
	AppVersion  string             `json:"app_version"`
	Env         string             `json:"env"`
	Device      DeviceInfo         `json:"device"`
	Session     *SessionInfo       `json:"session,omitempty"`
	Signals     IntegritySignals   `json:"signals"`
	Attestation *AttestationResult `json:"attestation,omitempty"`
	Action      ActionContext      `json:"action"`
	Timestamp   string             `json:"timestamp"`
	Signature   string             `json:"signature"`
	SigVersion  int                `json:"sig_version,omitempty"`
}

// PolicyConditions mirrors the optional rule predicates. risk_score_gte is
// unsigned so negative thresholds fail at decode rather than validating.
type PolicyConditions struct {
	Attestation   *string `json:"attestation,omitempty"`
	Debugger      *bool   `json:"debugger,omitempty"`
	Hooking       *bool   `json:"hooking,omitempty"`
	ProxyDetected *bool   `json:"proxy_detected,omitempty"`
	AppVersion    *string `json:"app_version,omitempty"`
	RiskScoreGTE  *uint32 `json:"risk_score_gte,omitempty"`
}

// PolicyRule is one ordered rule. A missing conditions object decodes to the
// match-everything condition set; encoding always writes the object out.
type PolicyRule struct {
	Action     string            `json:"action"`
	Decision   string            `json:"decision"`
	Conditions *PolicyConditions `json:"conditions,omitempty"`
}

// Policy is the stored and served policy document.
type Policy struct {
	PolicyID   string       `json:"policy_id"`
	AppID      string       `json:"app_id"`
	AppVersion string       `json:"app_version"`
	Env        string       `json:"env"`
	Rules      []PolicyRule `json:"rules"`
	Signature  string       `json:"signature"`
	IssuedAt   string       `json:"issued_at"`
}

// PolicyUpsert is the body of POST /v1/policies. device_platform is a free
// routing string and deliberately not checked against the platform enum, so
// operators can scope policies to platforms that do not emit telemetry yet.
type PolicyUpsert struct {
	DevicePlatform string `json:"device_platform"`
	Policy         Policy `json:"policy"`
}

// PolicyUpsertResponse acknowledges a stored policy.
type PolicyUpsertResponse struct {
	Status   string `json:"status"`
	StoredAt string `json:"stored_at"`
}

// Finding is one scanner result inside a report upload. Evidence is free-form
// JSON and passes through uninterpreted.
type Finding struct {
	Category string          `json:"category"`
	Severity string          `json:"severity"`
	Evidence json.RawMessage `json:"evidence,omitempty"`
}

// PipelineInfo identifies the CI run a report came from.
type PipelineInfo struct {
	Provider string `json:"provider"`
	RunID    string `json:"run_id"`
}

// ReportArtifacts carries the report body; payload is base64 of the format
// named in format.
type ReportArtifacts struct {
	Format  string `json:"format"`
	Payload string `json:"payload"`
}

// ReportUpload is the body of POST /v1/reports/upload.
type ReportUpload struct {
	ReportID  string          `json:"report_id"`
	AppID     string          `json:"app_id"`
	Env       string          `json:"env"`
	Source    string          `json:"source"`
	Pipeline  *PipelineInfo   `json:"pipeline,omitempty"`
	Artifacts ReportArtifacts `json:"artifacts"`
	Findings  []Finding       `json:"findings,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// StatusOK is the generic success body.
type StatusOK struct {
	Status string `json:"status"`
}

// StatusAccepted acknowledges an idempotent ingest.
type StatusAccepted struct {
	Status string `json:"status"`
}
