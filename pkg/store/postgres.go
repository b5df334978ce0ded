package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/panthersecurity/panther/pkg/wire"
)

// OpenPostgres connects using a lib/pq connection string, typically the
// DATABASE_URL value.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	return db, nil
}

// PostgresPolicyStore is the Postgres dialect of PolicyStore. The schema
// matches SQLite; only placeholders and conflict clauses differ.
type PostgresPolicyStore struct {
	db *sql.DB
}

func NewPostgresPolicyStore(db *sql.DB) (*PostgresPolicyStore, error) {
	s := &PostgresPolicyStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresPolicyStore) migrate() error {
	queries := []string{`
	CREATE TABLE IF NOT EXISTS policies (
		app_id TEXT NOT NULL,
		app_version TEXT NOT NULL,
		env TEXT NOT NULL,
		device_platform TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (app_id, app_version, env, device_platform)
	)`, `
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
	)`}
	for _, query := range queries {
		if _, err := s.db.ExecContext(context.Background(), query); err != nil {
			return fmt.Errorf("failed to migrate policy tables: %w", err)
		}
	}
	return nil
}

// Upsert replaces the current policy row and appends history in one
// transaction, mirroring the SQLite store.
func (s *PostgresPolicyStore) Upsert(ctx context.Context, devicePlatform string, p *wire.Policy) (string, error) {
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
		INSERT INTO policies (app_id, app_version, env, device_platform, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (app_id, app_version, env, device_platform) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		p.AppID, p.AppVersion, p.Env, devicePlatform, string(payload), storedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store policy: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO policy_versions (policy_id, issued_at, app_id, app_version, env, device_platform, payload, stored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (policy_id, issued_at, device_platform) DO NOTHING`,
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

func (s *PostgresPolicyStore) GetCurrent(ctx context.Context, key PolicyKey) (*wire.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM policies
		WHERE app_id = $1 AND app_version = $2 AND env = $3 AND device_platform = $4`,
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

func (s *PostgresPolicyStore) ListCurrent(ctx context.Context, filter PolicyFilter) ([]PolicyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_platform, payload FROM policies`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectPolicyRecords(rows, filter)
}

func (s *PostgresPolicyStore) ListVersions(ctx context.Context, filter PolicyFilter) ([]PolicyVersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_platform, payload, stored_at FROM policy_versions
		ORDER BY stored_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy versions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectVersionRecords(rows, filter)
}

// PostgresEventStore is the Postgres dialect of EventStore.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) (*PostgresEventStore, error) {
	s := &PostgresEventStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresEventStore) migrate() error {
	_, err := s.db.ExecContext(context.Background(), `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		received_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to migrate events table: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) Insert(ctx context.Context, e *wire.TelemetryEvent) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("failed to encode event: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, payload, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
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

// PostgresReportStore is the Postgres dialect of ReportStore.
type PostgresReportStore struct {
	db *sql.DB
}

func NewPostgresReportStore(db *sql.DB) (*PostgresReportStore, error) {
	s := &PostgresReportStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresReportStore) migrate() error {
	_, err := s.db.ExecContext(context.Background(), `
	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		received_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to migrate reports table: %w", err)
	}
	return nil
}

func (s *PostgresReportStore) Insert(ctx context.Context, r *wire.ReportUpload) (bool, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("failed to encode report: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (report_id, payload, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (report_id) DO NOTHING`,
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
