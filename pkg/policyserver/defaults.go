package policyserver

import (
	"context"
	"fmt"
	"time"

	"github.com/panthersecurity/panther/pkg/audit"
	"github.com/panthersecurity/panther/pkg/policy"
	"github.com/panthersecurity/panther/pkg/policyfile"
	"github.com/panthersecurity/panther/pkg/store"
	"github.com/panthersecurity/panther/pkg/wire"
)

// seedIdentity is where the built-in default policy is planted at first boot.
var seedIdentity = store.PolicyKey{
	AppID:          "fintech.mobile",
	AppVersion:     "1.0.0",
	Env:            "prod",
	DevicePlatform: "ios",
}

// DefaultPolicy synthesizes the fallback policy for an app identity: step-up
// on login while no debugger, hooking, or proxy is detected. Served whenever
// no stored policy matches, and planted at first boot.
func DefaultPolicy(appID, appVersion, env string) *wire.Policy {
	no := false
	return &wire.Policy{
		PolicyID:   "policy_default",
		AppID:      appID,
		AppVersion: appVersion,
		Env:        env,
		Rules: []wire.PolicyRule{{
			Action:   "login",
			Decision: string(policy.StepUp),
			Conditions: &wire.PolicyConditions{
				Debugger:      &no,
				Hooking:       &no,
				ProxyDetected: &no,
			},
		}},
		Signature: "stub",
		IssuedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Seed plants the startup policies. With a seed file configured, every entry
// is upserted and any failure aborts startup; seed files pin issued_at, so
// re-running them is idempotent. Without one, the built-in default is planted
// for the demo identity only when nothing is stored there yet, because its
// fresh issued_at would otherwise grow history on every restart.
func (s *Server) Seed(ctx context.Context) error {
	if s.seedFile != "" {
		return s.seedFromFile(ctx)
	}

	current, err := s.policies.GetCurrent(ctx, seedIdentity)
	if err != nil {
		return fmt.Errorf("failed to check for seeded policy: %w", err)
	}
	if current != nil {
		return nil
	}

	p := DefaultPolicy(seedIdentity.AppID, seedIdentity.AppVersion, seedIdentity.Env)
	storedAt, err := s.policies.Upsert(ctx, seedIdentity.DevicePlatform, p)
	if err != nil {
		return fmt.Errorf("failed to seed default policy: %w", err)
	}

	s.logger.Info("seeded default policy",
		"app_id", seedIdentity.AppID,
		"device_platform", seedIdentity.DevicePlatform,
		"stored_at", storedAt,
	)
	return s.recordSeed(ctx, p.PolicyID, seedIdentity.DevicePlatform, storedAt)
}

func (s *Server) seedFromFile(ctx context.Context) error {
	seeds, err := policyfile.Load(s.seedFile)
	if err != nil {
		return err
	}

	for _, seed := range seeds {
		p := seed.Policy
		storedAt, err := s.policies.Upsert(ctx, seed.DevicePlatform, &p)
		if err != nil {
			return fmt.Errorf("failed to seed policy %s: %w", p.PolicyID, err)
		}
		key := store.PolicyKey{
			AppID:          p.AppID,
			AppVersion:     p.AppVersion,
			Env:            p.Env,
			DevicePlatform: seed.DevicePlatform,
		}
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn("policy cache invalidate failed", "error", err)
		}
		if err := s.recordSeed(ctx, p.PolicyID, seed.DevicePlatform, storedAt); err != nil {
			return err
		}
	}

	s.logger.Info("seeded policies from file", "path", s.seedFile, "count", len(seeds))
	return nil
}

func (s *Server) recordSeed(ctx context.Context, policyID, platform, storedAt string) error {
	if err := s.audit.Record(ctx, audit.EventSystem, "policy.seed", policyID, map[string]interface{}{
		"device_platform": platform,
		"stored_at":       storedAt,
	}); err != nil {
		s.logger.Warn("audit record failed", "error", err)
	}
	return nil
}
