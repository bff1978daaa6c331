package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brushhour/fieldclock/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS queued_operations (
	event_id        TEXT PRIMARY KEY,
	op_type         TEXT NOT NULL,
	payload         BLOB NOT NULL,
	enqueued_at     DATETIME NOT NULL,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	last_attempt_at DATETIME
);

CREATE TABLE IF NOT EXISTS alert_debounce (
	worker_id     TEXT NOT NULL,
	job_id        TEXT NOT NULL,
	last_shown_at DATETIME NOT NULL,
	PRIMARY KEY (worker_id, job_id)
);

CREATE TABLE IF NOT EXISTS geofence_evaluations (
	id            TEXT PRIMARY KEY,
	time_entry_id TEXT NOT NULL,
	verdict       TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS override_requests (
	id            TEXT PRIMARY KEY,
	event_id      TEXT,
	worker_id     TEXT NOT NULL,
	job_id        TEXT NOT NULL,
	supervisor_id TEXT NOT NULL,
	reason        TEXT NOT NULL,
	location      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	requested_at  DATETIME NOT NULL,
	resolved_at   DATETIME,
	resolved_by   TEXT,
	deny_reason   TEXT
);

CREATE TABLE IF NOT EXISTS cached_location (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	reading TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_sites (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	address     TEXT,
	geofence    TEXT NOT NULL,
	shift_start DATETIME,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queued_operations_enqueued_at ON queued_operations(enqueued_at);
CREATE INDEX IF NOT EXISTS idx_geofence_evaluations_time_entry ON geofence_evaluations(time_entry_id);
CREATE INDEX IF NOT EXISTS idx_override_requests_supervisor ON override_requests(supervisor_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertOperation(ctx context.Context, op model.QueuedOperation) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO queued_operations (event_id, op_type, payload, enqueued_at, retry_count, last_attempt_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		op.EventID, string(op.Type), op.Payload, op.EnqueuedAt.UTC(), op.RetryCount, nullableTime(op.LastAttemptAt),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert operation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert operation rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListOperations(ctx context.Context) ([]model.QueuedOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, op_type, payload, enqueued_at, retry_count, last_attempt_at
		 FROM queued_operations ORDER BY enqueued_at, event_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list operations")
	}
	defer rows.Close()

	var ops []model.QueuedOperation
	for rows.Next() {
		var op model.QueuedOperation
		var opType string
		var lastAttempt sql.NullTime
		if err := rows.Scan(&op.EventID, &opType, &op.Payload, &op.EnqueuedAt, &op.RetryCount, &lastAttempt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan operation")
		}
		op.Type = model.OperationType(opType)
		if lastAttempt.Valid {
			t := lastAttempt.Time
			op.LastAttemptAt = &t
		}
		ops = append(ops, op)
	}
	return ops, eris.Wrap(rows.Err(), "sqlite: iterate operations")
}

func (s *SQLiteStore) DeleteOperation(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queued_operations WHERE event_id = ?`, eventID)
	return eris.Wrapf(err, "sqlite: delete operation %s", eventID)
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queued_operations SET retry_count = retry_count + 1, last_attempt_at = ? WHERE event_id = ?`,
		at.UTC(), eventID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record attempt %s", eventID)
	}
	return checkRowsAffected(res, "operation", eventID)
}

func (s *SQLiteStore) CountOperations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_operations`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count operations")
}

func (s *SQLiteStore) ClearOperations(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queued_operations`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear operations")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: clear operations rows affected")
}

func (s *SQLiteStore) GetAlertDebounce(ctx context.Context, workerID, jobID string) (*model.AlertDebounceRecord, error) {
	var rec model.AlertDebounceRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT worker_id, job_id, last_shown_at FROM alert_debounce WHERE worker_id = ? AND job_id = ?`,
		workerID, jobID,
	).Scan(&rec.WorkerID, &rec.JobID, &rec.LastShownAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get alert debounce")
	}
	return &rec, nil
}

func (s *SQLiteStore) PutAlertDebounce(ctx context.Context, rec model.AlertDebounceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_debounce (worker_id, job_id, last_shown_at) VALUES (?, ?, ?)
		 ON CONFLICT (worker_id, job_id) DO UPDATE SET last_shown_at = excluded.last_shown_at`,
		rec.WorkerID, rec.JobID, rec.LastShownAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: put alert debounce")
}

func (s *SQLiteStore) AppendEvaluation(ctx context.Context, timeEntryID string, v model.GeofenceVerdict) error {
	verdictJSON, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verdict")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO geofence_evaluations (id, time_entry_id, verdict, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), timeEntryID, string(verdictJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: append evaluation")
}

func (s *SQLiteStore) ListEvaluations(ctx context.Context, timeEntryID string) ([]model.GeofenceVerdict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT verdict FROM geofence_evaluations WHERE time_entry_id = ? ORDER BY created_at, id`,
		timeEntryID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evaluations")
	}
	defer rows.Close()

	var verdicts []model.GeofenceVerdict
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evaluation")
		}
		var v model.GeofenceVerdict
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal verdict")
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, eris.Wrap(rows.Err(), "sqlite: iterate evaluations")
}

func (s *SQLiteStore) InsertOverride(ctx context.Context, req model.OverrideRequest) error {
	locJSON, err := json.Marshal(req.Location)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal override location")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO override_requests (id, event_id, worker_id, job_id, supervisor_id, reason, location, status, requested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.EventID, req.WorkerID, req.JobID, req.SupervisorID, req.Reason, string(locJSON), string(req.Status), req.RequestedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert override")
}

func (s *SQLiteStore) GetOverride(ctx context.Context, id string) (*model.OverrideRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, event_id, worker_id, job_id, supervisor_id, reason, location, status, requested_at, resolved_at, resolved_by, deny_reason
		 FROM override_requests WHERE id = ?`,
		id,
	)
	return scanOverride(row)
}

func (s *SQLiteStore) ResolveOverride(ctx context.Context, id string, status model.OverrideStatus, supervisorID, denyReason string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE override_requests SET status = ?, resolved_at = ?, resolved_by = ?, deny_reason = ?
		 WHERE id = ? AND status = 'pending'`,
		string(status), at.UTC(), supervisorID, denyReason, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: resolve override %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: resolve override rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListPendingOverrides(ctx context.Context, supervisorID string) ([]model.OverrideRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, worker_id, job_id, supervisor_id, reason, location, status, requested_at, resolved_at, resolved_by, deny_reason
		 FROM override_requests WHERE supervisor_id = ? AND status = 'pending' ORDER BY requested_at`,
		supervisorID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending overrides")
	}
	defer rows.Close()

	var reqs []model.OverrideRequest
	for rows.Next() {
		req, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, eris.Wrap(rows.Err(), "sqlite: iterate pending overrides")
}

func (s *SQLiteStore) GetCachedLocation(ctx context.Context) (*model.LocationReading, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT reading FROM cached_location WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached location")
	}
	var r model.LocationReading
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached location")
	}
	return &r, nil
}

func (s *SQLiteStore) PutCachedLocation(ctx context.Context, r model.LocationReading) error {
	readingJSON, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cached location")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cached_location (id, reading) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET reading = excluded.reading`,
		string(readingJSON),
	)
	return eris.Wrap(err, "sqlite: put cached location")
}

func (s *SQLiteStore) UpsertJobSite(ctx context.Context, site model.JobSite) error {
	geofenceJSON, err := json.Marshal(site.Geofence)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal geofence")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_sites (id, name, address, geofence, shift_start, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			geofence = excluded.geofence,
			shift_start = excluded.shift_start,
			updated_at = excluded.updated_at`,
		site.ID, site.Name, site.Address, string(geofenceJSON), nullableTime(site.ShiftStart),
		site.CreatedAt.UTC(), site.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert job site %s", site.ID)
}

func (s *SQLiteStore) GetJobSite(ctx context.Context, id string) (*model.JobSite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, geofence, shift_start, created_at, updated_at FROM job_sites WHERE id = ?`,
		id,
	)
	return scanJobSite(row)
}

func (s *SQLiteStore) ListJobSites(ctx context.Context) ([]model.JobSite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, geofence, shift_start, created_at, updated_at FROM job_sites ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list job sites")
	}
	defer rows.Close()

	var sites []model.JobSite
	for rows.Next() {
		site, err := scanJobSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: iterate job sites")
}

// helpers

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOverride(row scannable) (*model.OverrideRequest, error) {
	var req model.OverrideRequest
	var locJSON, status string
	var resolvedAt sql.NullTime
	var eventID, resolvedBy, denyReason sql.NullString

	err := row.Scan(&req.ID, &eventID, &req.WorkerID, &req.JobID, &req.SupervisorID, &req.Reason,
		&locJSON, &status, &req.RequestedAt, &resolvedAt, &resolvedBy, &denyReason)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan override")
	}

	req.Status = model.OverrideStatus(status)
	if eventID.Valid {
		req.EventID = eventID.String
	}
	if err := json.Unmarshal([]byte(locJSON), &req.Location); err != nil {
		return nil, eris.Wrap(err, "unmarshal override location")
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		req.ResolvedBy = resolvedBy.String
	}
	if denyReason.Valid {
		req.DenyReason = denyReason.String
	}
	return &req, nil
}

func scanJobSite(row scannable) (*model.JobSite, error) {
	var site model.JobSite
	var address sql.NullString
	var geofenceJSON string
	var shiftStart sql.NullTime

	err := row.Scan(&site.ID, &site.Name, &address, &geofenceJSON, &shiftStart, &site.CreatedAt, &site.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan job site")
	}

	if address.Valid {
		site.Address = address.String
	}
	if err := json.Unmarshal([]byte(geofenceJSON), &site.Geofence); err != nil {
		return nil, eris.Wrap(err, "unmarshal geofence")
	}
	if shiftStart.Valid {
		t := shiftStart.Time
		site.ShiftStart = &t
	}
	return &site, nil
}
