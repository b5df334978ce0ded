package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/panthersecurity/panther/pkg/policy"
	"github.com/panthersecurity/panther/pkg/telemetry"
	"github.com/panthersecurity/panther/pkg/wire"
)

// HTTPConfig points the transport at a control plane.
type HTTPConfig struct {
	BaseURL  string
	APIToken string
}

// HTTPClient is the default Transport: it talks to policyd and telemetryd
// over HTTP with bearer auth.
type HTTPClient struct {
	client *http.Client
	config HTTPConfig
}

// NewHTTPClient builds a transport with a 30-second request timeout.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: 30 * time.Second},
		config: cfg,
	}
}

// FetchPolicy GETs the current policy for the identity. Unknown identities
// receive the server's default policy, so a success always carries a usable
// set.
func (h *HTTPClient) FetchPolicy(ctx context.Context, appID, appVersion, env string, platform telemetry.Platform) (policy.Set, error) {
	u, err := url.Parse(h.endpoint("/v1/policies/current"))
	if err != nil {
		return policy.Set{}, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("app_id", appID)
	q.Set("app_version", appVersion)
	q.Set("env", env)
	q.Set("device_platform", string(platform))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return policy.Set{}, fmt.Errorf("failed to build policy request: %w", err)
	}
	h.authorize(req, "")

	resp, err := h.client.Do(req)
	if err != nil {
		return policy.Set{}, fmt.Errorf("policy fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return policy.Set{}, fmt.Errorf("policy fetch failed: %s", resp.Status)
	}

	var dto wire.Policy
	if err := wire.DecodeStrict(resp.Body, &dto); err != nil {
		return policy.Set{}, fmt.Errorf("failed to decode policy: %w", err)
	}
	return wire.PolicyFromWire(&dto), nil
}

// Send converts the envelope's event to its wire shape, validates it, and
// posts it. Validation runs client-side so a rejectable event never leaves
// the device. The envelope's token overrides the configured one.
func (h *HTTPClient) Send(ctx context.Context, env telemetry.Envelope) error {
	event, err := wire.EventToWire(env.Event)
	if err != nil {
		return err
	}
	if err := wire.ValidateTelemetryEvent(event); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("/v1/telemetry/events"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req, env.Auth.APIToken)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry send failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telemetry send failed: %s", resp.Status)
	}
	return nil
}

// UpsertPolicy stores a policy document through the admin endpoint. Operator
// tooling uses it; mobile clients never call it.
func (h *HTTPClient) UpsertPolicy(ctx context.Context, upsert wire.PolicyUpsert) (wire.PolicyUpsertResponse, error) {
	body, err := json.Marshal(upsert)
	if err != nil {
		return wire.PolicyUpsertResponse{}, fmt.Errorf("failed to encode policy upsert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("/v1/policies"), bytes.NewReader(body))
	if err != nil {
		return wire.PolicyUpsertResponse{}, fmt.Errorf("failed to build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req, "")

	resp, err := h.client.Do(req)
	if err != nil {
		return wire.PolicyUpsertResponse{}, fmt.Errorf("policy upsert failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return wire.PolicyUpsertResponse{}, fmt.Errorf("policy upsert failed: %s", resp.Status)
	}

	var ack wire.PolicyUpsertResponse
	if err := wire.DecodeStrict(resp.Body, &ack); err != nil {
		return wire.PolicyUpsertResponse{}, fmt.Errorf("failed to decode upsert response: %w", err)
	}
	return ack, nil
}

func (h *HTTPClient) endpoint(path string) string {
	return strings.TrimRight(h.config.BaseURL, "/") + path
}

func (h *HTTPClient) authorize(req *http.Request, override string) {
	token := override
	if token == "" {
		token = h.config.APIToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

var _ Transport = (*HTTPClient)(nil)
