// Package store persists terminal incidents and their traces to PostgreSQL.
// The schema is managed by golang-migrate with migrations embedded into the
// binary, so deployments never need migration files on disk.
package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx driver for database/sql

	"github.com/codeready-toolchain/responder/pkg/coordinator"
	"github.com/codeready-toolchain/responder/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrNotFound is returned when an incident or trace does not exist.
var ErrNotFound = errors.New("not found")

// Config holds PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the pgx-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store is safe for concurrent use; it owns a database/sql pool.
type Store struct {
	db *stdsql.DB
}

var _ coordinator.Store = (*Store)(nil)

// Open connects, configures the pool, and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := stdsql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection, useful for tests.
func NewFromDB(db *stdsql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *stdsql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func runMigrations(db *stdsql.DB, dbName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver: m.Close() would also close the database
	// driver and with it the shared *sql.DB.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

// SaveIncident upserts the terminal incident artifacts and its trace in one
// transaction. Re-saving the same incident id replaces the previous row.
func (s *Store) SaveIncident(ctx context.Context, result coordinator.Result, trace *models.Trace) error {
	row, err := encodeResult(result)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO incidents (incident_id, trace_id, status, analysis, plan, summary, records, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (incident_id) DO UPDATE SET
			trace_id = EXCLUDED.trace_id,
			status   = EXCLUDED.status,
			analysis = EXCLUDED.analysis,
			plan     = EXCLUDED.plan,
			summary  = EXCLUDED.summary,
			records  = EXCLUDED.records,
			context  = EXCLUDED.context`,
		result.IncidentID, result.TraceID, string(result.Status), result.Analysis,
		row.plan, row.summary, row.records, row.bundle)
	if err != nil {
		return fmt.Errorf("failed to save incident %s: %w", result.IncidentID, err)
	}

	if trace != nil {
		entries, err := json.Marshal(trace.Entries())
		if err != nil {
			return fmt.Errorf("failed to encode trace: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO traces (trace_id, incident_id, entries)
			VALUES ($1, $2, $3)
			ON CONFLICT (trace_id) DO UPDATE SET entries = EXCLUDED.entries`,
			trace.ID, result.IncidentID, entries)
		if err != nil {
			return fmt.Errorf("failed to save trace %s: %w", trace.ID, err)
		}
	}

	return tx.Commit()
}

// GetIncident loads one stored incident.
func (s *Store) GetIncident(ctx context.Context, incidentID string) (coordinator.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT incident_id, trace_id, status, analysis, plan, summary, records, context
		FROM incidents WHERE incident_id = $1`, incidentID)
	result, err := scanIncident(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return coordinator.Result{}, fmt.Errorf("incident %s: %w", incidentID, ErrNotFound)
	}
	return result, err
}

// ListIncidents returns the most recent incidents, newest first.
func (s *Store) ListIncidents(ctx context.Context, limit int) ([]coordinator.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT incident_id, trace_id, status, analysis, plan, summary, records, context
		FROM incidents ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []coordinator.Result
	for rows.Next() {
		result, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// GetTrace loads the stored trace entries for an incident.
func (s *Store) GetTrace(ctx context.Context, incidentID string) ([]models.TraceEntry, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT entries FROM traces WHERE incident_id = $1`, incidentID).Scan(&raw)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, fmt.Errorf("trace for incident %s: %w", incidentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}

	var entries []models.TraceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode trace entries: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan removes incidents (and, via cascade, their traces) created
// before the cutoff. Returns the number of incidents removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM incidents WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old incidents: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

type encodedResult struct {
	plan, summary, records, bundle []byte
}

func encodeResult(result coordinator.Result) (encodedResult, error) {
	var row encodedResult
	var err error
	if row.plan, err = json.Marshal(result.Plan); err != nil {
		return row, fmt.Errorf("failed to encode plan: %w", err)
	}
	if row.summary, err = json.Marshal(result.Summary); err != nil {
		return row, fmt.Errorf("failed to encode summary: %w", err)
	}
	if row.records, err = json.Marshal(result.Records); err != nil {
		return row, fmt.Errorf("failed to encode records: %w", err)
	}
	if row.bundle, err = json.Marshal(result.Bundle); err != nil {
		return row, fmt.Errorf("failed to encode context bundle: %w", err)
	}
	return row, nil
}

func scanIncident(sc scanner) (coordinator.Result, error) {
	var result coordinator.Result
	var status string
	var plan, summary, records, bundle []byte

	if err := sc.Scan(&result.IncidentID, &result.TraceID, &status,
		&result.Analysis, &plan, &summary, &records, &bundle); err != nil {
		return result, err
	}
	result.Status = models.IncidentStatus(status)

	if err := json.Unmarshal(plan, &result.Plan); err != nil {
		return result, fmt.Errorf("failed to decode plan: %w", err)
	}
	if err := json.Unmarshal(summary, &result.Summary); err != nil {
		return result, fmt.Errorf("failed to decode summary: %w", err)
	}
	if len(records) > 0 {
		if err := json.Unmarshal(records, &result.Records); err != nil {
			return result, fmt.Errorf("failed to decode records: %w", err)
		}
	}
	if len(bundle) > 0 {
		if err := json.Unmarshal(bundle, &result.Bundle); err != nil {
			return result, fmt.Errorf("failed to decode context bundle: %w", err)
		}
	}
	return result, nil
}
