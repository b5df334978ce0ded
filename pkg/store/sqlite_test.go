package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panthersecurity/panther/pkg/wire"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testPolicy(policyID, issuedAt string) *wire.Policy {
	return &wire.Policy{
		PolicyID:   policyID,
		AppID:      "fintech.mobile",
		AppVersion: "1.0.0",
		Env:        "prod",
		Rules: []wire.PolicyRule{{
			Action:   "login",
			Decision: "STEP_UP",
		}},
		Signature: "stub",
		IssuedAt:  issuedAt,
	}
}

func testEvent(eventID string) *wire.TelemetryEvent {
	return &wire.TelemetryEvent{
		EventID:    eventID,
		AppID:      "fintech.mobile",
		AppVersion: "1.0.0",
		Env:        "prod",
		Device: wire.DeviceInfo{
			Platform:  "ios",
			OSVersion: "17.4",
			Model:     "iPhone15,2",
		},
		Action:    wire.ActionContext{Name: "login"},
		Timestamp: "2024-01-01T00:00:00Z",
		Signature: "sig",
	}
}

func testReport(reportID string) *wire.ReportUpload {
	return &wire.ReportUpload{
		ReportID: reportID,
		AppID:    "fintech.mobile",
		Env:      "prod",
		Source:   "ci",
		Artifacts: wire.ReportArtifacts{
			Format:  "json",
			Payload: "e30=",
		},
		Timestamp: "2024-01-01T00:00:00Z",
	}
}

func TestSQLitePolicyStore_UpsertAndGetCurrent(t *testing.T) {
	s, err := NewSQLitePolicyStore(openTestDB(t))
	require.NoError(t, err)

	p := testPolicy("policy_v1", "2024-01-01T00:00:00Z")
	storedAt, err := s.Upsert(context.Background(), "ios", p)
	require.NoError(t, err)
	_, err = time.Parse(StampLayout, storedAt)
	require.NoError(t, err, "stored_at should use the fixed-width stamp layout")

	got, err := s.GetCurrent(context.Background(), PolicyKey{
		AppID: "fintech.mobile", AppVersion: "1.0.0", Env: "prod", DevicePlatform: "ios",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p, got)
}

func TestSQLitePolicyStore_GetCurrent_Missing(t *testing.T) {
	s, err := NewSQLitePolicyStore(openTestDB(t))
	require.NoError(t, err)

	got, err := s.GetCurrent(context.Background(), PolicyKey{
		AppID: "other.app", AppVersion: "9.9.9", Env: "prod", DevicePlatform: "ios",
	})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLitePolicyStore_UpsertReplacesCurrentAndAppendsHistory(t *testing.T) {
	s, err := NewSQLitePolicyStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	v1 := testPolicy("policy_v1", "2024-01-01T00:00:00Z")
	_, err = s.Upsert(ctx, "ios", v1)
	require.NoError(t, err)

	// Distinct stamps keep the DESC ordering observable.
	time.Sleep(2 * time.Millisecond)

	v2 := testPolicy("policy_v2", "2024-02-01T00:00:00Z")
	v2.Rules[0].Decision = "DENY"
	_, err = s.Upsert(ctx, "ios", v2)
	require.NoError(t, err)

	current, err := s.GetCurrent(ctx, PolicyKey{
		AppID: "fintech.mobile", AppVersion: "1.0.0", Env: "prod", DevicePlatform: "ios",
	})
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "policy_v2", current.PolicyID)

	versions, err := s.ListVersions(ctx, PolicyFilter{})
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "policy_v2", versions[0].Policy.PolicyID, "newest version first")
	assert.Equal(t, "policy_v1", versions[1].Policy.PolicyID)
	assert.True(t, versions[0].StoredAt > versions[1].StoredAt)

	byID, err := s.ListVersions(ctx, PolicyFilter{PolicyID: "policy_v1"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "policy_v1", byID[0].Policy.PolicyID)
}

func TestSQLitePolicyStore_ReupsertSameVersionKeepsHistory(t *testing.T) {
	s, err := NewSQLitePolicyStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	p := testPolicy("policy_v1", "2024-01-01T00:00:00Z")
	first, err := s.Upsert(ctx, "ios", p)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	again, err := s.Upsert(ctx, "ios", p)
	require.NoError(t, err)
	assert.NotEqual(t, first, again, "current row is still replaced")

	versions, err := s.ListVersions(ctx, PolicyFilter{})
	require.NoError(t, err)
	require.Len(t, versions, 1, "history stays append-only")
	assert.Equal(t, first, versions[0].StoredAt, "history keeps the first stamp")
}

func TestSQLitePolicyStore_CorruptPayloadSurfacesAsAbsent(t *testing.T) {
	db := openTestDB(t)
	s, err := NewSQLitePolicyStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Upsert(ctx, "ios", testPolicy("policy_v1", "2024-01-01T00:00:00Z"))
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO policies (app_id, app_version, env, device_platform, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		"broken.app", "1.0.0", "prod", "ios", "{not json", Stamp(time.Now()))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO policy_versions (policy_id, issued_at, app_id, app_version, env, device_platform, payload, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"policy_broken", "2024-01-01T00:00:00Z", "broken.app", "1.0.0", "prod", "ios", "{not json", Stamp(time.Now()))
	require.NoError(t, err)

	got, err := s.GetCurrent(ctx, PolicyKey{
		AppID: "broken.app", AppVersion: "1.0.0", Env: "prod", DevicePlatform: "ios",
	})
	require.NoError(t, err)
	assert.Nil(t, got, "undecodable current row reads as absent")

	current, err := s.ListCurrent(ctx, PolicyFilter{})
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "fintech.mobile", current[0].Policy.AppID)

	versions, err := s.ListVersions(ctx, PolicyFilter{})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "policy_v1", versions[0].Policy.PolicyID)
}

func TestSQLitePolicyStore_ListCurrentFilters(t *testing.T) {
	s, err := NewSQLitePolicyStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	iosProd := testPolicy("policy_ios", "2024-01-01T00:00:00Z")
	_, err = s.Upsert(ctx, "ios", iosProd)
	require.NoError(t, err)

	androidProd := testPolicy("policy_android", "2024-01-01T00:00:00Z")
	_, err = s.Upsert(ctx, "android", androidProd)
	require.NoError(t, err)

	staging := testPolicy("policy_staging", "2024-01-01T00:00:00Z")
	staging.Env = "staging"
	_, err = s.Upsert(ctx, "ios", staging)
	require.NoError(t, err)

	all, err := s.ListCurrent(ctx, PolicyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	android, err := s.ListCurrent(ctx, PolicyFilter{DevicePlatform: "android"})
	require.NoError(t, err)
	require.Len(t, android, 1)
	assert.Equal(t, "policy_android", android[0].Policy.PolicyID)

	iosStaging, err := s.ListCurrent(ctx, PolicyFilter{DevicePlatform: "ios", Env: "staging"})
	require.NoError(t, err)
	require.Len(t, iosStaging, 1)
	assert.Equal(t, "policy_staging", iosStaging[0].Policy.PolicyID)

	none, err := s.ListCurrent(ctx, PolicyFilter{AppID: "unknown.app"})
	require.NoError(t, err)
	assert.NotNil(t, none, "empty result encodes as [] not null")
	assert.Len(t, none, 0)
}

func TestSQLiteEventStore_InsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	s, err := NewSQLiteEventStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	inserted, err := s.Insert(ctx, testEvent("evt-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	var firstReceived string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT received_at FROM events WHERE event_id = ?`, "evt-1").Scan(&firstReceived))

	time.Sleep(2 * time.Millisecond)

	replay := testEvent("evt-1")
	replay.Env = "staging"
	inserted, err = s.Insert(ctx, replay)
	require.NoError(t, err)
	assert.False(t, inserted)

	var payload, received string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT payload, received_at FROM events WHERE event_id = ?`, "evt-1").Scan(&payload, &received))
	assert.Contains(t, payload, `"env":"prod"`, "first write wins")
	assert.Equal(t, firstReceived, received)

	inserted, err = s.Insert(ctx, testEvent("evt-2"))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestSQLiteReportStore_InsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	s, err := NewSQLiteReportStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	inserted, err := s.Insert(ctx, testReport("rpt-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Insert(ctx, testReport("rpt-1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStamp_FixedWidthAndLexicallyOrdered(t *testing.T) {
	early := Stamp(time.Date(2024, 1, 1, 0, 0, 0, 5, time.UTC))
	late := Stamp(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC))

	assert.Equal(t, "2024-01-01T00:00:00.000000005Z", early)
	assert.Len(t, late, len(early))
	assert.True(t, early < late)
}
