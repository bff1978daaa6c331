package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brushhour/fieldclock/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_InsertOperation_Dedupes(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	op := model.QueuedOperation{
		EventID:    "1700000000000-aaa",
		Type:       model.OpClockIn,
		Payload:    []byte(`{}`),
		EnqueuedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO queued_operations`).
		WithArgs(op.EventID, "clock_in", op.Payload, pgxmock.AnyArg(), 0, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	inserted, err := s.InsertOperation(context.Background(), op)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Conflict: zero rows affected means the key already exists.
	mock.ExpectExec(`INSERT INTO queued_operations`).
		WithArgs(op.EventID, "clock_in", op.Payload, pgxmock.AnyArg(), 0, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	inserted, err = s.InsertOperation(context.Background(), op)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAttempt_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE queued_operations SET retry_count = retry_count \+ 1`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.RecordAttempt(context.Background(), "missing", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedLocation_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT reading FROM cached_location`).
		WillReturnError(pgx.ErrNoRows)

	r, err := s.GetCachedLocation(context.Background())
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveOverride_AlreadyResolved(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE override_requests SET status`).
		WithArgs("approved", pgxmock.AnyArg(), "sup-1", "", "ov-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	updated, err := s.ResolveOverride(context.Background(), "ov-1", model.OverrideApproved, "sup-1", "", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOverride_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, event_id, worker_id, job_id, supervisor_id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetOverride(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountOperations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM queued_operations`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.CountOperations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
