package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/panthersecurity/panther/pkg/wire"
)

// OpenSQLite opens the SQLite database at path, creating parent
// directories as needed. Pass ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc sqlite allows a single writer; one pooled connection avoids
	// SQLITE_BUSY under concurrent handlers and keeps :memory: databases
	// from splitting per connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLitePolicyStore keeps current policies and their append-only version
// history in SQLite.
type SQLitePolicyStore struct {
	db *sql.DB
}

func NewSQLitePolicyStore(db *sql.DB) (*SQLitePolicyStore, error) {
	s := &SQLitePolicyStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLitePolicyStore) migrate() error {
	queries := []string{`
	CREATE TABLE IF NOT EXISTS policies (
		app_id TEXT NOT NULL,
		app_version TEXT NOT NULL,
		env TEXT NOT NULL,
		device_platform TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (app_id, app_version, env, device_platform)
	);`, `
	CREATE TABLE IF NOT EXISTS policy_versions (
		policy_id TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		app_id TEXT NOT NULL,
		app_version TEXT NOT NULL,
		env TEXT NOT NULL,
		device_platform TEXT NOT NULL,
		payload TEXT NOT NULL,
		stored_at TEXT NOT NULL,
		PRIMARY KEY (policy_id, issued_at, device_platform)
	);`}
	for _, query := range queries {
		if _, err := s.db.ExecContext(context.Background(), query); err != nil {
			return fmt.Errorf("failed to migrate policy tables: %w", err)
		}
	}
	return nil
}

// Upsert replaces the current policy for its key and appends a history
// row in the same transaction. History insertion is INSERT OR IGNORE:
// an already-recorded (policy_id, issued_at, device_platform) stays as
// first written.
func (s *SQLitePolicyStore) Upsert(ctx context.Context, devicePlatform string, p *wire.Policy) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode policy: %w", err)
	}
	storedAt := Stamp(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin policy upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO policies (app_id, app_version, env, device_platform, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.AppID, p.AppVersion, p.Env, devicePlatform, string(payload), storedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store policy: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO policy_versions (policy_id, issued_at, app_id, app_version, env, device_platform, payload, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PolicyID, p.IssuedAt, p.AppID, p.AppVersion, p.Env, devicePlatform, string(payload), storedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store policy version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit policy upsert: %w", err)
	}
	return storedAt, nil
}

// GetCurrent returns the current policy for key, or (nil, nil) when no
// decodable row exists.
func (s *SQLitePolicyStore) GetCurrent(ctx context.Context, key PolicyKey) (*wire.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM policies
		WHERE app_id = ? AND app_version = ? AND env = ? AND device_platform = ?`,
		key.AppID, key.AppVersion, key.Env, key.DevicePlatform,
	)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch policy: %w", err)
	}
	return decodePolicyPayload(payload), nil
}

// ListCurrent returns all current policies matching filter. Rows whose
// payload no longer decodes are skipped.
func (s *SQLitePolicyStore) ListCurrent(ctx context.Context, filter PolicyFilter) ([]PolicyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_platform, payload FROM policies`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectPolicyRecords(rows, filter)
}

// ListVersions returns the policy history matching filter, newest first.
func (s *SQLitePolicyStore) ListVersions(ctx context.Context, filter PolicyFilter) ([]PolicyVersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_platform, payload, stored_at FROM policy_versions
		ORDER BY stored_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy versions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectVersionRecords(rows, filter)
}

// SQLiteEventStore persists telemetry events keyed by event_id.
type SQLiteEventStore struct {
	db *sql.DB
}

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) migrate() error {
	_, err := s.db.ExecContext(context.Background(), `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		received_at TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("failed to migrate events table: %w", err)
	}
	return nil
}

// Insert stores the event unless one with the same event_id exists. The
// first write wins; a replay returns false with the stored row untouched.
func (s *SQLiteEventStore) Insert(ctx context.Context, e *wire.TelemetryEvent) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("failed to encode event: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (event_id, payload, received_at)
		VALUES (?, ?, ?)`,
		e.EventID, string(payload), Stamp(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("failed to store event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read event insert result: %w", err)
	}
	return n > 0, nil
}

// SQLiteReportStore persists scan reports keyed by report_id.
type SQLiteReportStore struct {
	db *sql.DB
}

func NewSQLiteReportStore(db *sql.DB) (*SQLiteReportStore, error) {
	s := &SQLiteReportStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteReportStore) migrate() error {
	_, err := s.db.ExecContext(context.Background(), `
	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		received_at TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("failed to migrate reports table: %w", err)
	}
	return nil
}

// Insert stores the report unless one with the same report_id exists.
func (s *SQLiteReportStore) Insert(ctx context.Context, r *wire.ReportUpload) (bool, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("failed to encode report: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reports (report_id, payload, received_at)
		VALUES (?, ?, ?)`,
		r.ReportID, string(payload), Stamp(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("failed to store report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read report insert result: %w", err)
	}
	return n > 0, nil
}
