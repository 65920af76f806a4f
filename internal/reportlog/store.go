// Package reportlog provides PostgreSQL-backed archival of abuse reports.
// The archive is an audit trail for moderator review; the live ban counters
// live in the directory store, so a database outage never blocks a report
// from counting.
package reportlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/pairline/pairline/internal/history"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Report is one archived abuse report with the conversation tail attached
// for moderator review.
type Report struct {
	ReporterID string
	ReportedID string
	ChatID     string
	Messages   []history.Message
}

// Store archives abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, runs pending migrations, and returns the
// store.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("reportlog: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("reportlog: ping: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle without running migrations.
// Tests use this against a prepared schema.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("reportlog: migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("reportlog: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("reportlog: migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("reportlog: migrate up: %w", err)
	}
	return nil
}

// Create inserts a report. The message tail is marshalled to JSONB; an
// empty tail stores NULL.
func (s *Store) Create(ctx context.Context, report *Report) error {
	var messagesJSON []byte
	if len(report.Messages) > 0 {
		var err error
		messagesJSON, err = json.Marshal(report.Messages)
		if err != nil {
			return fmt.Errorf("reportlog: marshal messages: %w", err)
		}
	}

	const query = `
		INSERT INTO abuse_reports (reporter_id, reported_id, chat_id, messages)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query,
		report.ReporterID,
		report.ReportedID,
		report.ChatID,
		messagesJSON,
	)
	if err != nil {
		return fmt.Errorf("reportlog: insert: %w", err)
	}
	return nil
}

// CountRecent returns how many reports were filed against a user within the
// window.
func (s *Store) CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM abuse_reports
		WHERE reported_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, reportedID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("reportlog: count recent: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
