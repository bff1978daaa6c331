package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/brushhour/fieldclock/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool, for shared kiosk deployments.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS queued_operations (
	event_id        TEXT PRIMARY KEY,
	op_type         TEXT NOT NULL,
	payload         BYTEA NOT NULL,
	enqueued_at     TIMESTAMPTZ NOT NULL,
	retry_count     INT NOT NULL DEFAULT 0,
	last_attempt_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS alert_debounce (
	worker_id     TEXT NOT NULL,
	job_id        TEXT NOT NULL,
	last_shown_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (worker_id, job_id)
);

CREATE TABLE IF NOT EXISTS geofence_evaluations (
	id            TEXT PRIMARY KEY,
	time_entry_id TEXT NOT NULL,
	verdict       JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS override_requests (
	id            TEXT PRIMARY KEY,
	event_id      TEXT,
	worker_id     TEXT NOT NULL,
	job_id        TEXT NOT NULL,
	supervisor_id TEXT NOT NULL,
	reason        TEXT NOT NULL,
	location      JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	requested_at  TIMESTAMPTZ NOT NULL,
	resolved_at   TIMESTAMPTZ,
	resolved_by   TEXT,
	deny_reason   TEXT
);

CREATE TABLE IF NOT EXISTS cached_location (
	id      INT PRIMARY KEY CHECK (id = 1),
	reading JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS job_sites (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	address     TEXT,
	geofence    JSONB NOT NULL,
	shift_start TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queued_operations_enqueued_at ON queued_operations(enqueued_at);
CREATE INDEX IF NOT EXISTS idx_geofence_evaluations_time_entry ON geofence_evaluations(time_entry_id);
CREATE INDEX IF NOT EXISTS idx_override_requests_supervisor ON override_requests(supervisor_id, status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertOperation(ctx context.Context, op model.QueuedOperation) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO queued_operations (event_id, op_type, payload, enqueued_at, retry_count, last_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (event_id) DO NOTHING`,
		op.EventID, string(op.Type), op.Payload, op.EnqueuedAt.UTC(), op.RetryCount, nullableTime(op.LastAttemptAt),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert operation")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListOperations(ctx context.Context) ([]model.QueuedOperation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, op_type, payload, enqueued_at, retry_count, last_attempt_at
		 FROM queued_operations ORDER BY enqueued_at, event_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list operations")
	}
	defer rows.Close()

	var ops []model.QueuedOperation
	for rows.Next() {
		var op model.QueuedOperation
		var opType string
		var lastAttempt *time.Time
		if err := rows.Scan(&op.EventID, &opType, &op.Payload, &op.EnqueuedAt, &op.RetryCount, &lastAttempt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan operation")
		}
		op.Type = model.OperationType(opType)
		op.LastAttemptAt = lastAttempt
		ops = append(ops, op)
	}
	return ops, eris.Wrap(rows.Err(), "postgres: iterate operations")
}

func (s *PostgresStore) DeleteOperation(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM queued_operations WHERE event_id = $1`, eventID)
	return eris.Wrapf(err, "postgres: delete operation %s", eventID)
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, eventID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queued_operations SET retry_count = retry_count + 1, last_attempt_at = $1 WHERE event_id = $2`,
		at.UTC(), eventID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record attempt %s", eventID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "operation %s", eventID)
	}
	return nil
}

func (s *PostgresStore) CountOperations(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queued_operations`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count operations")
}

func (s *PostgresStore) ClearOperations(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM queued_operations`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear operations")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetAlertDebounce(ctx context.Context, workerID, jobID string) (*model.AlertDebounceRecord, error) {
	var rec model.AlertDebounceRecord
	err := s.pool.QueryRow(ctx,
		`SELECT worker_id, job_id, last_shown_at FROM alert_debounce WHERE worker_id = $1 AND job_id = $2`,
		workerID, jobID,
	).Scan(&rec.WorkerID, &rec.JobID, &rec.LastShownAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get alert debounce")
	}
	return &rec, nil
}

func (s *PostgresStore) PutAlertDebounce(ctx context.Context, rec model.AlertDebounceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_debounce (worker_id, job_id, last_shown_at) VALUES ($1, $2, $3)
		 ON CONFLICT (worker_id, job_id) DO UPDATE SET last_shown_at = EXCLUDED.last_shown_at`,
		rec.WorkerID, rec.JobID, rec.LastShownAt.UTC(),
	)
	return eris.Wrap(err, "postgres: put alert debounce")
}

func (s *PostgresStore) AppendEvaluation(ctx context.Context, timeEntryID string, v model.GeofenceVerdict) error {
	verdictJSON, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verdict")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO geofence_evaluations (id, time_entry_id, verdict, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), timeEntryID, verdictJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: append evaluation")
}

func (s *PostgresStore) ListEvaluations(ctx context.Context, timeEntryID string) ([]model.GeofenceVerdict, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT verdict FROM geofence_evaluations WHERE time_entry_id = $1 ORDER BY created_at, id`,
		timeEntryID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evaluations")
	}
	defer rows.Close()

	var verdicts []model.GeofenceVerdict
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evaluation")
		}
		var v model.GeofenceVerdict
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal verdict")
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, eris.Wrap(rows.Err(), "postgres: iterate evaluations")
}

func (s *PostgresStore) InsertOverride(ctx context.Context, req model.OverrideRequest) error {
	locJSON, err := json.Marshal(req.Location)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal override location")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO override_requests (id, event_id, worker_id, job_id, supervisor_id, reason, location, status, requested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.EventID, req.WorkerID, req.JobID, req.SupervisorID, req.Reason, locJSON, string(req.Status), req.RequestedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert override")
}

func (s *PostgresStore) GetOverride(ctx context.Context, id string) (*model.OverrideRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, event_id, worker_id, job_id, supervisor_id, reason, location, status, requested_at, resolved_at, resolved_by, deny_reason
		 FROM override_requests WHERE id = $1`,
		id,
	)
	req, err := scanOverridePG(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (s *PostgresStore) ResolveOverride(ctx context.Context, id string, status model.OverrideStatus, supervisorID, denyReason string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE override_requests SET status = $1, resolved_at = $2, resolved_by = $3, deny_reason = $4
		 WHERE id = $5 AND status = 'pending'`,
		string(status), at.UTC(), supervisorID, denyReason, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: resolve override %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListPendingOverrides(ctx context.Context, supervisorID string) ([]model.OverrideRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, worker_id, job_id, supervisor_id, reason, location, status, requested_at, resolved_at, resolved_by, deny_reason
		 FROM override_requests WHERE supervisor_id = $1 AND status = 'pending' ORDER BY requested_at`,
		supervisorID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending overrides")
	}
	defer rows.Close()

	var reqs []model.OverrideRequest
	for rows.Next() {
		req, err := scanOverridePG(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, eris.Wrap(rows.Err(), "postgres: iterate pending overrides")
}

func (s *PostgresStore) GetCachedLocation(ctx context.Context) (*model.LocationReading, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT reading FROM cached_location WHERE id = 1`).Scan(&raw)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached location")
	}
	var r model.LocationReading
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached location")
	}
	return &r, nil
}

func (s *PostgresStore) PutCachedLocation(ctx context.Context, r model.LocationReading) error {
	readingJSON, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cached location")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO cached_location (id, reading) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET reading = EXCLUDED.reading`,
		readingJSON,
	)
	return eris.Wrap(err, "postgres: put cached location")
}

func (s *PostgresStore) UpsertJobSite(ctx context.Context, site model.JobSite) error {
	geofenceJSON, err := json.Marshal(site.Geofence)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal geofence")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_sites (id, name, address, geofence, shift_start, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			geofence = EXCLUDED.geofence,
			shift_start = EXCLUDED.shift_start,
			updated_at = EXCLUDED.updated_at`,
		site.ID, site.Name, site.Address, geofenceJSON, nullableTime(site.ShiftStart),
		site.CreatedAt.UTC(), site.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert job site %s", site.ID)
}

func (s *PostgresStore) GetJobSite(ctx context.Context, id string) (*model.JobSite, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, address, geofence, shift_start, created_at, updated_at FROM job_sites WHERE id = $1`,
		id,
	)
	site, err := scanJobSitePG(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return site, err
}

func (s *PostgresStore) ListJobSites(ctx context.Context) ([]model.JobSite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address, geofence, shift_start, created_at, updated_at FROM job_sites ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list job sites")
	}
	defer rows.Close()

	var sites []model.JobSite
	for rows.Next() {
		site, err := scanJobSitePG(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: iterate job sites")
}

// pgx scan helpers; these keep the raw pgx error so callers can map ErrNoRows.

func scanOverridePG(row pgx.Row) (*model.OverrideRequest, error) {
	var req model.OverrideRequest
	var locJSON []byte
	var status string
	var resolvedAt *time.Time
	var eventID, resolvedBy, denyReason sql.NullString

	err := row.Scan(&req.ID, &eventID, &req.WorkerID, &req.JobID, &req.SupervisorID, &req.Reason,
		&locJSON, &status, &req.RequestedAt, &resolvedAt, &resolvedBy, &denyReason)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan override")
	}

	req.Status = model.OverrideStatus(status)
	if eventID.Valid {
		req.EventID = eventID.String
	}
	if err := json.Unmarshal(locJSON, &req.Location); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal override location")
	}
	req.ResolvedAt = resolvedAt
	if resolvedBy.Valid {
		req.ResolvedBy = resolvedBy.String
	}
	if denyReason.Valid {
		req.DenyReason = denyReason.String
	}
	return &req, nil
}

func scanJobSitePG(row pgx.Row) (*model.JobSite, error) {
	var site model.JobSite
	var address sql.NullString
	var geofenceJSON []byte
	var shiftStart *time.Time

	err := row.Scan(&site.ID, &site.Name, &address, &geofenceJSON, &shiftStart, &site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan job site")
	}

	if address.Valid {
		site.Address = address.String
	}
	if err := json.Unmarshal(geofenceJSON, &site.Geofence); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal geofence")
	}
	site.ShiftStart = shiftStart
	return &site, nil
}
