// Package policyserver implements the policyd HTTP surface: policy
// distribution and administration, CI report intake, and the default-policy
// fallback that keeps unconfigured apps on a safe posture.
package policyserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/panthersecurity/panther/pkg/api"
	"github.com/panthersecurity/panther/pkg/archive"
	"github.com/panthersecurity/panther/pkg/audit"
	"github.com/panthersecurity/panther/pkg/auth"
	"github.com/panthersecurity/panther/pkg/observability"
	"github.com/panthersecurity/panther/pkg/store"
	"github.com/panthersecurity/panther/pkg/wire"
)

// maxBodyBytes caps POST bodies; an oversized request fails strict decoding
// and answers 400.
const maxBodyBytes = 2 << 20

// Options wires the server's collaborators. Policies and Reports are
// required; everything else has a working nil default.
type Options struct {
	Policies store.PolicyStore
	Reports  store.ReportStore
	Cache    store.PolicyCache // nil disables caching
	Archive  archive.Store     // nil disables artifact archival
	Audit    audit.Logger      // nil discards audit records
	Obs      *observability.Provider
	Logger   *slog.Logger

	// APIToken guards /v1 routes when non-empty. /healthz is never guarded.
	APIToken string

	// VerifyKey, when set, requires policy signatures to be HS256 JWS
	// documents whose policy_hash claim matches the policy contents.
	VerifyKey []byte

	// SeedFile optionally replaces the built-in default policy at startup.
	SeedFile string
}

// Server holds the policyd handler state.
type Server struct {
	policies  store.PolicyStore
	reports   store.ReportStore
	cache     store.PolicyCache
	archive   archive.Store
	audit     audit.Logger
	obs       *observability.Provider
	logger    *slog.Logger
	token     string
	verifyKey []byte
	seedFile  string
}

// New builds a Server from opts, filling nil collaborators with inert
// defaults.
func New(opts Options) *Server {
	s := &Server{
		policies:  opts.Policies,
		reports:   opts.Reports,
		cache:     opts.Cache,
		archive:   opts.Archive,
		audit:     opts.Audit,
		obs:       opts.Obs,
		logger:    opts.Logger,
		token:     opts.APIToken,
		verifyKey: opts.VerifyKey,
		seedFile:  opts.SeedFile,
	}
	if s.cache == nil {
		s.cache = store.NopPolicyCache{}
	}
	if s.audit == nil {
		s.audit = audit.Nop()
	}
	if s.obs == nil {
		s.obs, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "policyserver")
	}
	return s
}

// Handler returns the full policyd route tree. Every route carries the
// request-ID middleware; /v1 routes additionally carry the token check and
// per-route instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/policies/current", s.route("/v1/policies/current", http.HandlerFunc(s.handleCurrentPolicy)))
	mux.Handle("/v1/policies", s.route("/v1/policies", http.HandlerFunc(s.handlePolicies)))
	mux.Handle("/v1/policies/versions", s.route("/v1/policies/versions", http.HandlerFunc(s.handlePolicyVersions)))
	mux.Handle("/v1/reports/upload", s.route("/v1/reports/upload", http.HandlerFunc(s.handleReportUpload)))
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
