// Package telemetry defines the device integrity event model and the
// emission pipeline that stamps, signs, and ships events.
package telemetry

import "time"

// Platform identifies the mobile OS an event originates from.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// DeviceInfo describes the reporting device.
type DeviceInfo struct {
	Platform  Platform
	OSVersion string
	Model     string
}

// SessionInfo carries an optional session correlation handle. UserIDHash is a
// salted hash, never a raw identifier.
type SessionInfo struct {
	SessionID  string
	UserIDHash string
}

// IntegritySignals is the fixed set of boolean detections a client reports.
// Jailbreak and Root are distinct flags so iOS and Android probes map cleanly.
type IntegritySignals struct {
	Jailbreak     bool
	Root          bool
	Debugger      bool
	Hooking       bool
	ProxyDetected bool
}

// BaselineSignals returns the all-clear signal set.
func BaselineSignals() IntegritySignals {
	return IntegritySignals{}
}

// AttestationProvider names the platform attestation scheme.
type AttestationProvider string

const (
	AttestationAppAttest     AttestationProvider = "appattest"
	AttestationPlayIntegrity AttestationProvider = "playintegrity"
	AttestationNone          AttestationProvider = "none"
)

func (p AttestationProvider) Valid() bool {
	switch p {
	case AttestationAppAttest, AttestationPlayIntegrity, AttestationNone:
		return true
	}
	return false
}

// AttestationStatus is the verdict of a platform attestation check.
type AttestationStatus string

const (
	AttestationPass    AttestationStatus = "pass"
	AttestationFail    AttestationStatus = "fail"
	AttestationUnknown AttestationStatus = "unknown"
)

func (s AttestationStatus) Valid() bool {
	switch s {
	case AttestationPass, AttestationFail, AttestationUnknown:
		return true
	}
	return false
}

// AttestationResult is the outcome of an attestation check. Timestamp is the
// provider's own stamp, carried as an opaque string.
type AttestationResult struct {
	Provider  AttestationProvider
	Status    AttestationStatus
	Timestamp string
}

// ActionContext names the app action an event was captured for, with an
// optional free-form context string.
type ActionContext struct {
	Name    string
	Context string
}

// Event is one integrity report. Timestamp and Signature are absent until the
// pipeline stamps them; SigVersion 0 means the legacy signing scheme and is
// omitted on the wire.
type Event struct {
	EventID     string
	AppID       string
	AppVersion  string
	Env         string
	Device      DeviceInfo
	Session     *SessionInfo
	Signals     IntegritySignals
	Attestation *AttestationResult
	Action      ActionContext
	Timestamp   *time.Time
	Signature   string
	SigVersion  int
}

// SigningPayload returns the legacy signing payload: the five identity fields
// joined by colons. The byte layout is a wire contract shared with the mobile
// SDKs and must not change.
func (e Event) SigningPayload() string {
	return e.EventID + ":" + e.AppID + ":" + e.AppVersion + ":" + e.Env + ":" + e.Action.Name
}

// Auth carries the per-emission API token. An empty token falls back to the
// transport's configured default.
type Auth struct {
	APIToken string
}

// Envelope pairs a stamped event with its auth material for transport.
type Envelope struct {
	Event Event
	Auth  Auth
}
