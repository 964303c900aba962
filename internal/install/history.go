package install

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrJobNotFound is returned when a job id is not in the history
var ErrJobNotFound = errors.New("install job not found")

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const createTable = `
	CREATE TABLE IF NOT EXISTS install_jobs (
		id TEXT PRIMARY KEY,
		package TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP
	)
`

// History stores install jobs in a SQL database
type History struct {
	db     *sql.DB
	driver string
}

// OpenHistory opens the database, verifies the connection and creates the
// jobs table if needed
func OpenHistory(ctx context.Context, driver, dsn string) (*History, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported history driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open install history: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to install history: %w", err)
	}

	h := NewHistory(db, driver)
	if err := h.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// NewHistory wraps an open database
func NewHistory(db *sql.DB, driver string) *History {
	return &History{db: db, driver: driver}
}

// Migrate creates the jobs table if it does not exist
func (h *History) Migrate(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create install_jobs table: %w", err)
	}
	return nil
}

// Record inserts job or updates its mutable columns
func (h *History) Record(ctx context.Context, job *Job) error {
	query := h.rebind(`
		INSERT INTO install_jobs (id, package, status, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`)

	_, err := h.db.ExecContext(ctx, query,
		job.ID.String(), job.Package, string(job.Status), job.Error,
		job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record install job: %w", err)
	}
	return nil
}

// Get returns the job with the given id
func (h *History) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := h.rebind(`
		SELECT id, package, status, error, created_at, started_at, completed_at
		FROM install_jobs
		WHERE id = ?
	`)

	job, err := scanJob(h.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load install job: %w", err)
	}
	return job, nil
}

// Recent returns up to limit jobs, newest first
func (h *History) Recent(ctx context.Context, limit int) ([]*Job, error) {
	query := h.rebind(`
		SELECT id, package, status, error, created_at, started_at, completed_at
		FROM install_jobs
		ORDER BY created_at DESC
		LIMIT ?
	`)

	rows, err := h.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list install jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan install job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		job         Job
		id          string
		status      string
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	if err := s.Scan(&id, &job.Package, &status, &errMsg, &job.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	job.ID = parsed
	job.Status = Status(status)
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	job.StartedAt = nullTime(startedAt)
	job.CompletedAt = nullTime(completedAt)
	return &job, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// rebind rewrites ? placeholders to $n for postgres
func (h *History) rebind(query string) string {
	if h.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
