package ingestserver

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panthersecurity/panther/pkg/api"
	"github.com/panthersecurity/panther/pkg/store"
	"github.com/panthersecurity/panther/pkg/wire"
)

const ingestTarget = "/v1/telemetry/events"

type testServer struct {
	*Server
	handler http.Handler
	db      *sql.DB
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()

	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	events, err := store.NewSQLiteEventStore(db)
	require.NoError(t, err)

	opts := Options{Events: events}
	if mutate != nil {
		mutate(&opts)
	}

	s := New(opts)
	return &testServer{Server: s, handler: s.Handler(), db: db}
}

func (ts *testServer) do(t *testing.T, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) api.ProblemDetail {
	t.Helper()
	var p api.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func eventBody(eventID string) wire.TelemetryEvent {
	return wire.TelemetryEvent{
		EventID:    eventID,
		AppID:      "fintech.mobile",
		AppVersion: "2.0.0",
		Env:        "prod",
		Device: wire.DeviceInfo{
			Platform:  "ios",
			OSVersion: "17.4",
			Model:     "iPhone15,2",
		},
		Signals: wire.IntegritySignals{Debugger: true},
		Attestation: &wire.AttestationResult{
			Provider: "appattest",
			Result:   "pass",
		},
		Action:     wire.ActionContext{Name: "login"},
		Timestamp:  "2024-03-01T10:00:00Z",
		Signature:  "a1b2c3",
		SigVersion: 2,
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthzSkipsAuth(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.APIToken = "s3cret" })

	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestRequiresToken(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.APIToken = "s3cret" })

	rec := ts.do(t, http.MethodPost, ingestTarget, eventBody("evt_auth"), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", rec.Body.String())

	rec = ts.do(t, http.MethodPost, ingestTarget, eventBody("evt_auth"), map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestAccepted(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, ingestTarget, eventBody("evt_1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngestIsIdempotent(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, ingestTarget, eventBody("evt_dup"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var firstReceivedAt string
	row := ts.db.QueryRow(`SELECT received_at FROM events WHERE event_id = ?`, "evt_dup")
	require.NoError(t, row.Scan(&firstReceivedAt))

	// Replay with a different env: same event_id, so the first write wins.
	replay := eventBody("evt_dup")
	replay.Env = "staging"
	rec = ts.do(t, http.MethodPost, ingestTarget, replay, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	var count int
	row = ts.db.QueryRow(`SELECT COUNT(*) FROM events`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)

	var payload, receivedAt string
	row = ts.db.QueryRow(`SELECT payload, received_at FROM events WHERE event_id = ?`, "evt_dup")
	require.NoError(t, row.Scan(&payload, &receivedAt))
	require.Contains(t, payload, `"env":"prod"`)
	require.Equal(t, firstReceivedAt, receivedAt)
}

func TestIngestValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	for name, tc := range map[string]struct {
		mutate func(*wire.TelemetryEvent)
		detail string
	}{
		"missing event id": {
			mutate: func(e *wire.TelemetryEvent) { e.EventID = "" },
			detail: "event_id must not be empty",
		},
		"unknown platform": {
			mutate: func(e *wire.TelemetryEvent) { e.Device.Platform = "windows" },
			detail: "device.platform is invalid",
		},
		"bad attestation result": {
			mutate: func(e *wire.TelemetryEvent) { e.Attestation.Result = "maybe" },
			detail: "attestation.result is invalid",
		},
		"bad sig version": {
			mutate: func(e *wire.TelemetryEvent) { e.SigVersion = 3 },
			detail: "sig_version is invalid",
		},
	} {
		event := eventBody("evt_invalid")
		tc.mutate(&event)

		rec := ts.do(t, http.MethodPost, ingestTarget, event, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, tc.detail, decodeProblem(t, rec).Detail, name)
	}

	var count int
	row := ts.db.QueryRow(`SELECT COUNT(*) FROM events`)
	require.NoError(t, row.Scan(&count))
	require.Zero(t, count)
}

func TestIngestRejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t, nil)

	raw, err := json.Marshal(eventBody("evt_extra"))
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	body["risk_score"] = 85

	rec := ts.do(t, http.MethodPost, ingestTarget, body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid request body", decodeProblem(t, rec).Detail)
}

func TestIngestRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, ingestTarget, strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid request body", decodeProblem(t, rec).Detail)
}

func TestIngestRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t, nil)

	huge := strings.Repeat("x", 3<<20)
	event := eventBody("evt_huge")
	event.Action.Context = &huge

	rec := ts.do(t, http.MethodPost, ingestTarget, event, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid request body", decodeProblem(t, rec).Detail)
}

func TestIngestAcceptsUnparseableTimestamp(t *testing.T) {
	ts := newTestServer(t, nil)

	// The stamp is stored as an opaque string; only non-emptiness is checked.
	event := eventBody("evt_oddstamp")
	event.Timestamp = "last tuesday"

	rec := ts.do(t, http.MethodPost, ingestTarget, event, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var count int
	row := ts.db.QueryRow(`SELECT COUNT(*) FROM events`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)

	for target, method := range map[string]string{
		ingestTarget: http.MethodGet,
		"/healthz":   http.MethodPost,
	} {
		rec := ts.do(t, method, target, nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, target)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json", target)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, ingestTarget, eventBody("evt_rid"), map[string]string{"X-Request-ID": "req-ingest-1"})
	require.Equal(t, "req-ingest-1", rec.Header().Get("X-Request-ID"))
}
