package install

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockHistory(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *History) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewHistory(db, DriverPostgres)
}

func TestHistory_RecordPostgres(t *testing.T) {
	db, mock, history := setupMockHistory(t)
	defer db.Close()

	job := NewJob("paper-button")

	mock.ExpectExec(`INSERT INTO install_jobs .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)\s+ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(job.ID.String(), "paper-button", "pending", nil, job.CreatedAt, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, history.Record(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_RecordError(t *testing.T) {
	db, mock, history := setupMockHistory(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO install_jobs`).WillReturnError(errors.New("connection reset"))

	err := history.Record(context.Background(), NewJob("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHistory_GetPostgres(t *testing.T) {
	db, mock, history := setupMockHistory(t)
	defer db.Close()

	id := uuid.New()
	created := time.Date(2016, 1, 2, 3, 4, 5, 0, time.UTC)
	started := created.Add(time.Second)

	rows := sqlmock.NewRows([]string{"id", "package", "status", "error", "created_at", "started_at", "completed_at"}).
		AddRow(id.String(), "paper-button", "running", nil, created, started, nil)
	mock.ExpectQuery(`SELECT .* FROM install_jobs\s+WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(rows)

	job, err := history.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Nil(t, job.Error)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, started, *job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_GetNotFound(t *testing.T) {
	db, mock, history := setupMockHistory(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM install_jobs`).WillReturnError(sql.ErrNoRows)

	_, err := history.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestHistory_Rebind(t *testing.T) {
	pg := NewHistory(nil, DriverPostgres)
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := NewHistory(nil, DriverSQLite)
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestHistory_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	history, err := OpenHistory(ctx, DriverSQLite, filepath.Join(t.TempDir(), "installs.db"))
	require.NoError(t, err)
	defer history.Close()

	older := NewJob("iron-ajax")
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	require.NoError(t, history.Record(ctx, older))

	job := NewJob("paper-button")
	require.NoError(t, history.Record(ctx, job))

	job.start()
	job.finish(errors.New("ENOTFOUND"))
	require.NoError(t, history.Record(ctx, job))

	loaded, err := history.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, loaded.Status)
	require.NotNil(t, loaded.Error)
	assert.Equal(t, "ENOTFOUND", *loaded.Error)
	assert.NotNil(t, loaded.StartedAt)
	assert.NotNil(t, loaded.CompletedAt)

	recent, err := history.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, job.ID, recent[0].ID)
	assert.Equal(t, older.ID, recent[1].ID)

	_, err = history.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestHistory_QueueRecorder(t *testing.T) {
	ctx := context.Background()
	history, err := OpenHistory(ctx, DriverSQLite, filepath.Join(t.TempDir(), "installs.db"))
	require.NoError(t, err)
	defer history.Close()

	q := NewQueue(InstallerFunc(func(context.Context, string) error { return nil }), WithRecorder(history))
	defer q.Close()

	ticket, err := q.Submit(ctx, "paper-input")
	require.NoError(t, err)
	require.NoError(t, ticket.Wait(ctx))

	loaded, err := history.Get(ctx, ticket.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, loaded.Status)
}

func TestOpenHistory_UnsupportedDriver(t *testing.T) {
	_, err := OpenHistory(context.Background(), "mysql", "")
	assert.Error(t, err)
}
