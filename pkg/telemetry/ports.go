package telemetry

import (
	"context"
	"time"
)

// Clock supplies event timestamps. Injectable so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Sink delivers stamped envelopes to a backend.
type Sink interface {
	Send(ctx context.Context, env Envelope) error
}

// SigningScheme produces the byte payload a signer commits to. Version is
// stamped on emitted events; version 0 is the legacy scheme, which puts no
// sig_version field on the wire.
type SigningScheme interface {
	Version() int
	Payload(e Event) ([]byte, error)
}

type legacyScheme struct{}

func (legacyScheme) Version() int {
	return 0
}

func (legacyScheme) Payload(e Event) ([]byte, error) {
	return []byte(e.SigningPayload()), nil
}

// LegacyScheme signs the colon-joined identity payload. This is the default
// and matches what deployed mobile SDKs emit.
var LegacyScheme SigningScheme = legacyScheme{}

var _ Clock = SystemClock{}
