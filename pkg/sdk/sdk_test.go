package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panthersecurity/panther/pkg/policy"
	"github.com/panthersecurity/panther/pkg/risk"
	"github.com/panthersecurity/panther/pkg/telemetry"
	"github.com/panthersecurity/panther/pkg/wire"
)

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time {
	return c.at
}

type stubTransport struct {
	set policy.Set
}

func (s stubTransport) FetchPolicy(context.Context, string, string, string, telemetry.Platform) (policy.Set, error) {
	return s.set, nil
}

func (s stubTransport) Send(context.Context, telemetry.Envelope) error {
	return nil
}

func testConfig(baseURL string) Config {
	return Config{
		AppID:      "fintech.mobile",
		AppVersion: "2.0.0",
		Env:        "prod",
		Platform:   telemetry.PlatformIOS,
		BaseURL:    baseURL,
		APIToken:   "s3cret",
		Device: telemetry.DeviceInfo{
			Platform:  telemetry.PlatformIOS,
			OSVersion: "17.4",
			Model:     "iPhone15,2",
		},
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panther.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_id: fintech.mobile
app_version: "2.0.0"
env: prod
platform: ios
base_url: https://panther.example.com
api_token: s3cret
device:
  os_version: "17.4"
  model: iPhone15,2
pinning:
  current_spki_hashes: ["sha256/AAA"]
  previous_spki_hashes: ["sha256/BBB"]
  rotated_at: "2024-03-01T00:00:00Z"
  rotation_window_days: 30
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "fintech.mobile", cfg.AppID)
	require.Equal(t, "2.0.0", cfg.AppVersion)
	require.Equal(t, telemetry.PlatformIOS, cfg.Platform)
	require.Equal(t, "https://panther.example.com", cfg.BaseURL)
	require.Equal(t, "s3cret", cfg.APIToken)
	require.Equal(t, "iPhone15,2", cfg.Device.Model)

	// The device block had no platform of its own.
	require.Equal(t, telemetry.PlatformIOS, cfg.Device.Platform)

	require.NotNil(t, cfg.Pinning)
	require.Equal(t, []string{"sha256/AAA"}, cfg.Pinning.CurrentSPKIHashes)
	require.NotNil(t, cfg.Pinning.RotationWindowDays)
	require.Equal(t, 30, *cfg.Pinning.RotationWindowDays)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "failed to read client config")
}

func TestPinningConfigPinset(t *testing.T) {
	days := 30
	cfg := PinningConfig{
		CurrentSPKIHashes:  []string{"sha256/AAA"},
		PreviousSPKIHashes: []string{"sha256/BBB"},
		RotatedAt:          "2024-03-01T00:00:00Z",
		RotationWindowDays: &days,
	}

	pinset := cfg.Pinset()
	require.NotNil(t, pinset.RotatedAt)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *pinset.RotatedAt)

	cfg.RotatedAt = "not a timestamp"
	require.Nil(t, cfg.Pinset().RotatedAt)

	cfg.RotatedAt = ""
	require.Nil(t, cfg.Pinset().RotatedAt)
}

func TestValidatePinning(t *testing.T) {
	rotated := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	days := 30
	cfg := testConfig("http://localhost:8082")
	cfg.Pinning = &PinningConfig{
		CurrentSPKIHashes:  []string{"sha256/AAA"},
		PreviousSPKIHashes: []string{"sha256/BBB"},
		RotatedAt:          rotated.Format(time.RFC3339),
		RotationWindowDays: &days,
	}
	client := New(cfg)

	require.True(t, client.ValidatePinning("sha256/AAA", rotated.AddDate(1, 0, 0)))
	require.True(t, client.ValidatePinning("sha256/BBB", rotated.AddDate(0, 0, 5)))
	require.False(t, client.ValidatePinning("sha256/BBB", rotated.AddDate(0, 0, 40)))
	require.False(t, client.ValidatePinning("sha256/CCC", rotated))

	unpinned := New(testConfig("http://localhost:8082"))
	require.True(t, unpinned.ValidatePinning("sha256/anything", time.Now()))
}

func TestFetchPolicySendsIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/policies/current", r.URL.Path)
		assert.Equal(t, "fintech.mobile", r.URL.Query().Get("app_id"))
		assert.Equal(t, "2.0.0", r.URL.Query().Get("app_version"))
		assert.Equal(t, "prod", r.URL.Query().Get("env"))
		assert.Equal(t, "ios", r.URL.Query().Get("device_platform"))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"policy_id": "policy_live",
			"app_id": "fintech.mobile",
			"app_version": "2.0.0",
			"env": "prod",
			"rules": [{"action": "login", "decision": "DENY", "conditions": {"debugger": true}}],
			"signature": "stub",
			"issued_at": "2024-03-01T00:00:00Z"
		}`))
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	set, err := client.FetchPolicy(context.Background())
	require.NoError(t, err)
	require.Equal(t, "policy_live", set.PolicyID)
	require.Len(t, set.Rules, 1)
	require.Equal(t, policy.Deny, set.Rules[0].Decision)
	require.NotNil(t, set.Rules[0].Conditions.Debugger)
	require.True(t, *set.Rules[0].Conditions.Debugger)
}

func TestFetchPolicyTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/policies/current", r.URL.Path)
		_, _ = w.Write([]byte(`{"policy_id":"p","app_id":"a","app_version":"1","env":"e","rules":[],"signature":"s","issued_at":"t"}`))
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL + "/"))
	_, err := client.FetchPolicy(context.Background())
	require.NoError(t, err)
}

func TestFetchPolicyFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	_, err := client.FetchPolicy(context.Background())
	require.ErrorContains(t, err, "policy fetch failed: 500")
}

func TestEmitEventStampsAndSigns(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var got wire.TelemetryEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/telemetry/events", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL)).WithClock(fixedClock{at: at})
	event := client.NewEvent("login", BaselineSignals(), nil, nil)

	env, err := client.EmitEvent(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, env.Event.Timestamp)
	require.True(t, env.Event.Timestamp.Equal(at))
	require.Equal(t, "stub-signature", env.Event.Signature)
	require.Equal(t, "s3cret", env.Auth.APIToken)

	require.Equal(t, event.EventID, got.EventID)
	require.Equal(t, "2024-03-01T10:00:00Z", got.Timestamp)
	require.Equal(t, "stub-signature", got.Signature)
	require.Zero(t, got.SigVersion)
}

func TestEmitEventCanonicalScheme(t *testing.T) {
	var got wire.TelemetryEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL)).WithScheme(wire.CanonicalScheme{})
	event := client.NewEvent("login", BaselineSignals(), nil, nil)

	env, err := client.EmitEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, 2, env.Event.SigVersion)
	require.Equal(t, 2, got.SigVersion)
}

func TestEmitEventSendFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	_, err := client.EmitEvent(context.Background(), client.NewEvent("login", BaselineSignals(), nil, nil))
	require.ErrorContains(t, err, "telemetry send failed: 503")
}

func TestSendValidatesBeforePosting(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	event := telemetry.Event{
		EventID:    "evt_bad",
		AppID:      "fintech.mobile",
		AppVersion: "2.0.0",
		Env:        "prod",
		Device: telemetry.DeviceInfo{
			Platform:  telemetry.PlatformIOS,
			OSVersion: "17.4",
			Model:     "iPhone15,2",
		},
		Timestamp: &at,
		Signature: "sig",
	}

	transport := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	err := transport.Send(context.Background(), telemetry.Envelope{Event: event})
	require.EqualError(t, err, "action.name must not be empty")
	require.Zero(t, hits.Load())
}

func TestSendEnvelopeTokenOverridesConfig(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	event := telemetry.Event{
		EventID:    "evt_tok",
		AppID:      "fintech.mobile",
		AppVersion: "2.0.0",
		Env:        "prod",
		Device: telemetry.DeviceInfo{
			Platform:  telemetry.PlatformIOS,
			OSVersion: "17.4",
			Model:     "iPhone15,2",
		},
		Action:    telemetry.ActionContext{Name: "login"},
		Timestamp: &at,
		Signature: "sig",
	}

	transport := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIToken: "config-token"})

	require.NoError(t, transport.Send(context.Background(), telemetry.Envelope{
		Event: event,
		Auth:  telemetry.Auth{APIToken: "override-token"},
	}))
	require.Equal(t, "Bearer override-token", auth)

	require.NoError(t, transport.Send(context.Background(), telemetry.Envelope{Event: event}))
	require.Equal(t, "Bearer config-token", auth)
}

func TestUpsertPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/policies", r.URL.Path)

		var req wire.PolicyUpsert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "policy_ops", req.Policy.PolicyID)

		_, _ = w.Write([]byte(`{"status":"ok","stored_at":"2024-03-01T10:00:00.000000000Z"}`))
	}))
	defer srv.Close()

	transport := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIToken: "s3cret"})
	ack, err := transport.UpsertPolicy(context.Background(), wire.PolicyUpsert{
		DevicePlatform: "ios",
		Policy:         wire.Policy{PolicyID: "policy_ops"},
	})
	require.NoError(t, err)
	require.Equal(t, "ok", ack.Status)
	require.Equal(t, "2024-03-01T10:00:00.000000000Z", ack.StoredAt)
}

func TestUpsertPolicyFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	transport := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := transport.UpsertPolicy(context.Background(), wire.PolicyUpsert{})
	require.ErrorContains(t, err, "policy upsert failed: 400")
}

func TestDecideActionWithStubTransport(t *testing.T) {
	debugging := true
	stub := stubTransport{set: policy.Set{
		PolicyID:   "policy_live",
		AppID:      "fintech.mobile",
		AppVersion: "2.0.0",
		Env:        "prod",
		Rules: []policy.Rule{{
			Action:     "login",
			Decision:   policy.StepUp,
			Conditions: policy.Conditions{Debugger: &debugging},
		}},
	}}

	client := New(testConfig("http://localhost:8082")).WithTransport(stub)

	decision, score, err := client.DecideAction(context.Background(),
		"login", telemetry.IntegritySignals{Debugger: true}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, policy.StepUp, decision)
	require.Equal(t, 30, score.Value())

	decision, score, err = client.DecideAction(context.Background(),
		"login", BaselineSignals(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, policy.Allow, decision)
	require.Zero(t, score.Value())
}

func TestNewEventFillsIdentity(t *testing.T) {
	client := New(testConfig("http://localhost:8082"))
	session := telemetry.SessionInfo{SessionID: "sess_1"}

	event := client.NewEvent("checkout", telemetry.IntegritySignals{Hooking: true}, nil, &session)
	require.NoError(t, uuid.Validate(event.EventID))
	require.Equal(t, "fintech.mobile", event.AppID)
	require.Equal(t, "2.0.0", event.AppVersion)
	require.Equal(t, "prod", event.Env)
	require.Equal(t, "iPhone15,2", event.Device.Model)
	require.Equal(t, "checkout", event.Action.Name)
	require.True(t, event.Signals.Hooking)
	require.Same(t, &session, event.Session)
	require.Nil(t, event.Timestamp)
	require.Empty(t, event.Signature)
}

func TestWithHTTPClientIsNoopAfterWithTransport(t *testing.T) {
	client := New(testConfig("http://localhost:8082")).
		WithTransport(stubTransport{}).
		WithHTTPClient(&http.Client{})

	require.IsType(t, stubTransport{}, client.transport)
}

func TestWithScorerOverridesScoring(t *testing.T) {
	client := New(testConfig("http://localhost:8082")).
		WithTransport(stubTransport{}).
		WithScorer(risk.WeightedScorer{})

	_, score, err := client.DecideAction(context.Background(), "login", BaselineSignals(), nil,
		[]risk.Finding{{Category: "perimeter", Severity: risk.SeverityCritical}})
	require.NoError(t, err)

	// The weighted scorer prices a critical finding at 30, not the flat 5.
	require.Equal(t, 30, score.Value())
}
