package wire

import (
	"errors"
	"time"

	"github.com/panthersecurity/panther/pkg/canonicalize"
	"github.com/panthersecurity/panther/pkg/telemetry"
)

// CanonicalScheme is signing scheme v2: the payload is the RFC 8785 canonical
// form of the event's wire object with the signature field absent and
// sig_version present. Unlike the legacy colon-joined payload it covers every
// field, so replaying a signature onto altered signals is detectable.
type CanonicalScheme struct{}

// Version reports 2. The pipeline stamps it on the event before calling
// Payload, so the signed bytes and the wire document agree.
func (CanonicalScheme) Version() int { return 2 }

// signingView is TelemetryEvent without the signature field. Keeping it as a
// separate struct pins the signed layout even if the wire type grows.
type signingView struct {
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
	SigVersion  int                `json:"sig_version"`
}

func (CanonicalScheme) Payload(e telemetry.Event) ([]byte, error) {
	if e.Timestamp == nil {
		return nil, errors.New("telemetry.timestamp is required")
	}
	view := signingView{
		EventID:    e.EventID,
		AppID:      e.AppID,
		AppVersion: e.AppVersion,
		Env:        e.Env,
		Device:     deviceToWire(e.Device),
		Signals:    signalsToWire(e.Signals),
		Action:     actionToWire(e.Action),
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		SigVersion: 2,
	}
	if e.Session != nil {
		s := sessionToWire(*e.Session)
		view.Session = &s
	}
	if e.Attestation != nil {
		a := attestationToWire(*e.Attestation)
		view.Attestation = &a
	}
	return canonicalize.JCS(view)
}

var _ telemetry.SigningScheme = CanonicalScheme{}
