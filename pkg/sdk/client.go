package sdk

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/panthersecurity/panther/pkg/crypto"
	"github.com/panthersecurity/panther/pkg/policy"
	"github.com/panthersecurity/panther/pkg/risk"
	"github.com/panthersecurity/panther/pkg/telemetry"
)

// Transport is the client's view of the control plane: policy reads and
// telemetry writes.
type Transport interface {
	FetchPolicy(ctx context.Context, appID, appVersion, env string, platform telemetry.Platform) (policy.Set, error)
	Send(ctx context.Context, env telemetry.Envelope) error
}

// Client wires the SDK ports around one app identity. The zero defaults are
// the deployed client behavior: system clock, stub signature, signal scorer,
// legacy signing scheme, HTTP transport.
type Client struct {
	config    Config
	transport Transport
	clock     telemetry.Clock
	signer    crypto.Signer
	scorer    risk.Scorer
	scheme    telemetry.SigningScheme
}

// New builds a Client over the default HTTP transport. Chain the With*
// setters to swap ports.
func New(cfg Config) *Client {
	return &Client{
		config:    cfg,
		transport: NewHTTPClient(HTTPConfig{BaseURL: cfg.BaseURL, APIToken: cfg.APIToken}),
		clock:     telemetry.SystemClock{},
		signer:    crypto.NoopSigner{},
		scorer:    risk.SignalScorer{},
		scheme:    telemetry.LegacyScheme,
	}
}

// WithClock overrides the clock for testing.
func (c *Client) WithClock(clock telemetry.Clock) *Client {
	c.clock = clock
	return c
}

// WithSigner overrides the event signer.
func (c *Client) WithSigner(signer crypto.Signer) *Client {
	c.signer = signer
	return c
}

// WithScorer overrides the risk scorer.
func (c *Client) WithScorer(scorer risk.Scorer) *Client {
	c.scorer = scorer
	return c
}

// WithScheme overrides the signing scheme. wire.CanonicalScheme opts emitted
// events into sig_version 2.
func (c *Client) WithScheme(scheme telemetry.SigningScheme) *Client {
	c.scheme = scheme
	return c
}

// WithTransport replaces the control-plane transport.
func (c *Client) WithTransport(t Transport) *Client {
	c.transport = t
	return c
}

// WithHTTPClient swaps the http.Client inside the default transport. It is a
// no-op after WithTransport.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if t, ok := c.transport.(*HTTPClient); ok {
		t.client = hc
	}
	return c
}

// NewEvent assembles an unstamped event for the configured identity. The
// pipeline fills timestamp and signature on emit.
func (c *Client) NewEvent(action string, signals telemetry.IntegritySignals, attestation *telemetry.AttestationResult, session *telemetry.SessionInfo) telemetry.Event {
	return telemetry.Event{
		EventID:     uuid.NewString(),
		AppID:       c.config.AppID,
		AppVersion:  c.config.AppVersion,
		Env:         c.config.Env,
		Device:      c.config.Device,
		Session:     session,
		Signals:     signals,
		Attestation: attestation,
		Action:      telemetry.ActionContext{Name: action},
	}
}

// EmitEvent stamps, signs, and ships the event, returning the sent envelope.
func (c *Client) EmitEvent(ctx context.Context, event telemetry.Event) (telemetry.Envelope, error) {
	pipeline := telemetry.NewPipeline(c.clock, c.signer, c.transport, c.scheme)
	return pipeline.Emit(ctx, event, telemetry.Auth{APIToken: c.config.APIToken})
}

// FetchPolicy pulls the current policy for the configured identity.
func (c *Client) FetchPolicy(ctx context.Context) (policy.Set, error) {
	return c.transport.FetchPolicy(ctx, c.config.AppID, c.config.AppVersion, c.config.Env, c.config.Platform)
}

// Decide scores the state and evaluates the action against an already
// fetched policy set. Callers that cache policy use this directly.
func (c *Client) Decide(set policy.Set, action string, signals telemetry.IntegritySignals, attestation *telemetry.AttestationResult, findings []risk.Finding) (policy.Decision, risk.Score) {
	score := c.scorer.ScoreEvent(telemetry.Event{Signals: signals, Attestation: attestation}, findings)
	decision := policy.Evaluate(set, telemetry.ActionContext{Name: action}, signals, attestation, score)
	return decision, score
}

// DecideAction fetches the current policy and decides the action in one
// call.
func (c *Client) DecideAction(ctx context.Context, action string, signals telemetry.IntegritySignals, attestation *telemetry.AttestationResult, findings []risk.Finding) (policy.Decision, risk.Score, error) {
	set, err := c.FetchPolicy(ctx)
	if err != nil {
		return "", risk.Score{}, err
	}
	decision, score := c.Decide(set, action, signals, attestation, findings)
	return decision, score, nil
}

// ValidatePinning reports whether an observed SPKI hash is acceptable at the
// given time. A client with no pinning configured accepts everything.
func (c *Client) ValidatePinning(observed string, now time.Time) bool {
	if c.config.Pinning == nil {
		return true
	}
	return c.config.Pinning.Pinset().IsAllowed(observed, now)
}

// BaselineSignals returns the all-clear signal set.
func BaselineSignals() telemetry.IntegritySignals {
	return telemetry.BaselineSignals()
}
