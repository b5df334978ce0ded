package policyserver

import (
	"net/http"
	"net/url"

	"github.com/panthersecurity/panther/pkg/api"
	"github.com/panthersecurity/panther/pkg/audit"
	"github.com/panthersecurity/panther/pkg/observability"
	"github.com/panthersecurity/panther/pkg/store"
	"github.com/panthersecurity/panther/pkg/wire"
)

// requiredPolicyParams is checked in order so the 400 names the first
// missing parameter deterministically.
var requiredPolicyParams = []string{"app_id", "app_version", "env", "device_platform"}

func (s *Server) handleCurrentPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	for _, name := range requiredPolicyParams {
		if q.Get(name) == "" {
			api.WriteBadRequest(w, name+" query parameter is required")
			return
		}
	}

	ctx := r.Context()
	key := store.PolicyKey{
		AppID:          q.Get("app_id"),
		AppVersion:     q.Get("app_version"),
		Env:            q.Get("env"),
		DevicePlatform: q.Get("device_platform"),
	}

	if cached, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("policy cache read failed", "error", err)
	} else if cached != nil {
		observability.AddSpanEvent(ctx, "policy.cache.hit", observability.AttrCacheHit.Bool(true))
		api.WriteJSON(w, http.StatusOK, cached)
		return
	}

	current, err := s.policies.GetCurrent(ctx, key)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	if current == nil {
		// Unknown and unreadable policies both fall back to the default,
		// scoped to the caller's identity rather than the seeded one.
		api.WriteJSON(w, http.StatusOK, DefaultPolicy(key.AppID, key.AppVersion, key.Env))
		return
	}

	if err := s.cache.Set(ctx, key, current); err != nil {
		s.logger.Warn("policy cache write failed", "error", err)
	}
	api.WriteJSON(w, http.StatusOK, current)
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listPolicies(w, r)
	case http.MethodPost:
		s.upsertPolicy(w, r)
	default:
		api.WriteMethodNotAllowed(w)
	}
}

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	records, err := s.policies.ListCurrent(r.Context(), policyFilter(r.URL.Query()))
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, records)
}

func (s *Server) upsertPolicy(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req wire.PolicyUpsert
	if err := wire.DecodeStrict(r.Body, &req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := wire.ValidatePolicy(&req.Policy); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}
	if len(s.verifyKey) > 0 {
		if err := verifyPolicySignature(s.verifyKey, &req.Policy); err != nil {
			api.WriteBadRequest(w, err.Error())
			return
		}
	}

	ctx := r.Context()
	storedAt, err := s.policies.Upsert(ctx, req.DevicePlatform, &req.Policy)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	key := store.PolicyKey{
		AppID:          req.Policy.AppID,
		AppVersion:     req.Policy.AppVersion,
		Env:            req.Policy.Env,
		DevicePlatform: req.DevicePlatform,
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Warn("policy cache invalidate failed", "error", err)
	}

	if err := s.audit.Record(ctx, audit.EventPolicy, "policy.upsert", req.Policy.PolicyID, map[string]interface{}{
		"app_id":          req.Policy.AppID,
		"app_version":     req.Policy.AppVersion,
		"env":             req.Policy.Env,
		"device_platform": req.DevicePlatform,
		"stored_at":       storedAt,
	}); err != nil {
		s.logger.Warn("audit record failed", "error", err)
	}

	api.WriteJSON(w, http.StatusOK, wire.PolicyUpsertResponse{Status: "ok", StoredAt: storedAt})
}

func (s *Server) handlePolicyVersions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}

	filter := policyFilter(r.URL.Query())
	filter.PolicyID = r.URL.Query().Get("policy_id")

	records, err := s.policies.ListVersions(r.Context(), filter)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, records)
}

func policyFilter(q url.Values) store.PolicyFilter {
	return store.PolicyFilter{
		AppID:          q.Get("app_id"),
		AppVersion:     q.Get("app_version"),
		Env:            q.Get("env"),
		DevicePlatform: q.Get("device_platform"),
	}
}
