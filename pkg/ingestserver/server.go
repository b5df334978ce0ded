// Package ingestserver implements the telemetryd HTTP surface: a single
// authenticated intake endpoint that records signed device events at most
// once per event_id.
package ingestserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/panthersecurity/panther/pkg/api"
	"github.com/panthersecurity/panther/pkg/auth"
	"github.com/panthersecurity/panther/pkg/observability"
	"github.com/panthersecurity/panther/pkg/risk"
	"github.com/panthersecurity/panther/pkg/store"
	"github.com/panthersecurity/panther/pkg/wire"
)

// maxBodyBytes caps POST bodies; an oversized request fails strict decoding
// and answers 400. An event is a few kilobytes, so anything near the cap is
// malformed or hostile.
const maxBodyBytes = 2 << 20

// Options wires the server's collaborators. Events is required; everything
// else has a working nil default.
type Options struct {
	Events store.EventStore
	Obs    *observability.Provider
	Logger *slog.Logger

	// APIToken guards /v1 routes when non-empty. /healthz is never guarded.
	APIToken string
}

// Server holds the telemetryd handler state.
type Server struct {
	events store.EventStore
	scorer risk.Scorer
	obs    *observability.Provider
	logger *slog.Logger
	token  string
}

// New builds a Server from opts, filling nil collaborators with inert
// defaults.
func New(opts Options) *Server {
	s := &Server{
		events: opts.Events,
		scorer: risk.SignalScorer{},
		obs:    opts.Obs,
		logger: opts.Logger,
		token:  opts.APIToken,
	}
	if s.obs == nil {
		s.obs, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "ingestserver")
	}
	return s
}

// Handler returns the full telemetryd route tree. Every route carries the
// request-ID middleware; the ingest route additionally carries the token
// check and per-route instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/telemetry/events", s.route("/v1/telemetry/events", http.HandlerFunc(s.handleIngest)))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return auth.RequestIDMiddleware(mux)
}

// route layers instrumentation outside the token check so rejected requests
// still show up in the RED metrics.
func (s *Server) route(pattern string, h http.Handler) http.Handler {
	return s.obs.Middleware(pattern, auth.TokenMiddleware(s.token)(h))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	api.WriteJSON(w, http.StatusOK, wire.StatusOK{Status: "ok"})
}

// handleIngest accepts one signed telemetry event. The first write for an
// event_id wins; replays answer 200 without touching the stored row, so
// clients can retry sends blindly.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var event wire.TelemetryEvent
	if err := wire.DecodeStrict(r.Body, &event); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := wire.ValidateTelemetryEvent(&event); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}

	inserted, err := s.events.Insert(r.Context(), &event)
	if err != nil {
		s.logger.Error("failed to store telemetry event", "event_id", event.EventID, "error", err)
		api.WriteInternal(w, err)
		return
	}

	s.annotate(r.Context(), &event)
	s.logger.Debug("telemetry event ingested",
		"event_id", event.EventID,
		"app_id", event.AppID,
		"env", event.Env,
		"duplicate", !inserted,
	)
	api.WriteJSON(w, http.StatusOK, wire.StatusOK{Status: "ok"})
}

// annotate tags the request span with the event identity and its signal
// risk score. The stored payload keeps the raw timestamp string, so a stamp
// the domain model cannot parse only costs the score attribute.
func (s *Server) annotate(ctx context.Context, event *wire.TelemetryEvent) {
	evt, err := wire.EventFromWire(event)
	if err != nil {
		observability.AddSpanEvent(ctx, "telemetry.ingested",
			observability.AttrEventID.String(event.EventID),
			observability.AttrAppID.String(event.AppID),
			observability.AttrEnv.String(event.Env),
		)
		return
	}
	score := s.scorer.ScoreEvent(evt, nil)
	observability.AddSpanEvent(ctx, "telemetry.ingested",
		observability.TelemetryIngestOperation(event.EventID, event.AppID, event.Env, uint32(score.Value()))...,
	)
}
