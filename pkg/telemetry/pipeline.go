package telemetry

import (
	"context"
	"fmt"

	"github.com/panthersecurity/panther/pkg/crypto"
)

// Pipeline stamps, signs, and ships events. A signer or sink failure aborts
// the emission; on success the returned envelope carries a timestamp and a
// signature.
type Pipeline struct {
	clock  Clock
	signer crypto.Signer
	sink   Sink
	scheme SigningScheme
}

// NewPipeline wires the emission ports. A nil scheme selects LegacyScheme.
func NewPipeline(clock Clock, signer crypto.Signer, sink Sink, scheme SigningScheme) *Pipeline {
	if scheme == nil {
		scheme = LegacyScheme
	}
	return &Pipeline{clock: clock, signer: signer, sink: sink, scheme: scheme}
}

// Emit stamps the event with the clock's time, signs the scheme's payload,
// sends the envelope through the sink, and returns it.
func (p *Pipeline) Emit(ctx context.Context, event Event, auth Auth) (Envelope, error) {
	now := p.clock.Now()
	event.Timestamp = &now
	if v := p.scheme.Version(); v > 0 {
		event.SigVersion = v
	}

	payload, err := p.scheme.Payload(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("signing payload: %w", err)
	}
	sig, err := p.signer.Sign(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("sign telemetry: %w", err)
	}
	event.Signature = sig

	env := Envelope{Event: event, Auth: auth}
	if err := p.sink.Send(ctx, env); err != nil {
		return Envelope{}, fmt.Errorf("send telemetry: %w", err)
	}
	return env, nil
}
