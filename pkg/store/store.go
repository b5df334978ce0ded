// Package store persists policies, policy version history, telemetry
// events, and scan reports. SQLite (pure Go) is the default backend;
// Postgres serves deployments that set DATABASE_URL. Both dialects share
// one schema: current policies are replaced in place, policy_versions is
// append-only history, and events and reports are insert-if-absent.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/panthersecurity/panther/pkg/wire"
)

// StampLayout is the fixed-width UTC layout for stored_at and received_at
// columns. Every stamp carries nine fractional digits so the lexical
// ORDER BY on version listings is also chronological.
const StampLayout = "2006-01-02T15:04:05.000000000Z"

// Stamp formats t for a storage column.
func Stamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

// PolicyKey identifies one current-policy row.
type PolicyKey struct {
	AppID          string
	AppVersion     string
	Env            string
	DevicePlatform string
}

// PolicyFilter narrows list results. Empty fields match every row; set
// fields must match exactly.
type PolicyFilter struct {
	PolicyID       string
	AppID          string
	AppVersion     string
	Env            string
	DevicePlatform string
}

func (f PolicyFilter) matches(devicePlatform string, p *wire.Policy) bool {
	if f.PolicyID != "" && p.PolicyID != f.PolicyID {
		return false
	}
	if f.AppID != "" && p.AppID != f.AppID {
		return false
	}
	if f.AppVersion != "" && p.AppVersion != f.AppVersion {
		return false
	}
	if f.Env != "" && p.Env != f.Env {
		return false
	}
	if f.DevicePlatform != "" && devicePlatform != f.DevicePlatform {
		return false
	}
	return true
}

// PolicyRecord pairs a current policy with the platform it is scoped to.
type PolicyRecord struct {
	DevicePlatform string      `json:"device_platform"`
	Policy         wire.Policy `json:"policy"`
}

// PolicyVersionRecord is one row of the append-only policy history.
type PolicyVersionRecord struct {
	DevicePlatform string      `json:"device_platform"`
	Policy         wire.Policy `json:"policy"`
	StoredAt       string      `json:"stored_at"`
}

// PolicyStore persists current policies and their version history.
//
// Upsert replaces the current policy for (app_id, app_version, env,
// device_platform) and appends a history row; re-storing a policy whose
// (policy_id, issued_at, device_platform) is already recorded replaces
// current but leaves history untouched. GetCurrent returns (nil, nil)
// when no decodable row exists. List results are never nil so handlers
// encode an empty JSON array rather than null.
type PolicyStore interface {
	Upsert(ctx context.Context, devicePlatform string, p *wire.Policy) (storedAt string, err error)
	GetCurrent(ctx context.Context, key PolicyKey) (*wire.Policy, error)
	ListCurrent(ctx context.Context, filter PolicyFilter) ([]PolicyRecord, error)
	ListVersions(ctx context.Context, filter PolicyFilter) ([]PolicyVersionRecord, error)
}

// EventStore persists telemetry events at most once per event_id.
// Insert reports whether a fresh row was written; replays return false
// and leave the stored payload untouched.
type EventStore interface {
	Insert(ctx context.Context, e *wire.TelemetryEvent) (inserted bool, err error)
}

// ReportStore persists scan reports at most once per report_id.
type ReportStore interface {
	Insert(ctx context.Context, r *wire.ReportUpload) (inserted bool, err error)
}

// decodePolicyPayload decodes a stored policy document. Rows written by
// older builds whose payload no longer decodes strictly are surfaced as
// absent rather than failing the read.
func decodePolicyPayload(payload string) *wire.Policy {
	var p wire.Policy
	if err := wire.DecodeStrictBytes([]byte(payload), &p); err != nil {
		return nil
	}
	return &p
}

func collectPolicyRecords(rows *sql.Rows, filter PolicyFilter) ([]PolicyRecord, error) {
	records := []PolicyRecord{}
	for rows.Next() {
		var platform, payload string
		if err := rows.Scan(&platform, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan policy row: %w", err)
		}
		p := decodePolicyPayload(payload)
		if p == nil || !filter.matches(platform, p) {
			continue
		}
		records = append(records, PolicyRecord{DevicePlatform: platform, Policy: *p})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func collectVersionRecords(rows *sql.Rows, filter PolicyFilter) ([]PolicyVersionRecord, error) {
	records := []PolicyVersionRecord{}
	for rows.Next() {
		var platform, payload, storedAt string
		if err := rows.Scan(&platform, &payload, &storedAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy version row: %w", err)
		}
		p := decodePolicyPayload(payload)
		if p == nil || !filter.matches(platform, p) {
			continue
		}
		records = append(records, PolicyVersionRecord{DevicePlatform: platform, Policy: *p, StoredAt: storedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
