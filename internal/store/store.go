// Package store implements the durable execution core's persistence
// layer: a single-writer, WAL-mode SQLite database holding one row per
// Job. Every exported method is short, and each change to a jobs row is
// one atomic statement (the job_events audit row that some methods add
// is written by a separate statement afterwards); conditional
// transitions (Claim, ResetExpired) evaluate their predicate inside the
// same statement SQLite executes as an implicit transaction, so two
// callers racing on the same id can never both succeed.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"jobqueue/internal/models"
)

// ErrAlreadyExists is returned by Insert on a primary key collision.
// Not expected to occur in practice since ids are random 128-bit
// values, but the store surfaces it rather than panicking.
var ErrAlreadyExists = errors.New("store: job already exists")

// ErrNotFound is returned when a job id has no matching row.
var ErrNotFound = errors.New("store: job not found")

// Store wraps a pooled *sql.DB connection to the jobs database.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at path, applies migrations, and
// bounds the connection pool to poolSize. WAL journaling mode allows
// many concurrent readers alongside the single serialized writer.
func Open(path string, poolSize int) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_loc=UTC&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if poolSize <= 0 {
		poolSize = 8
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert creates a row with status=pending, attempts=0, and nulls
// elsewhere. Returns ErrAlreadyExists on id collision.
func (s *Store) Insert(id, text string, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, status, text, attempts, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, id, models.StatusPending, text, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return s.recordEvent(id, "inserted", "job submitted", now)
}

// Claim conditionally grants a worker exclusive execution rights over a
// job: it succeeds only if the row is pending and holds no unexpired
// lease. A started/processing row whose lease expired is not claimable
// here; ResetExpired must first return it to pending. This single
// conditional UPDATE is the sole
// primitive that grants exclusive rights; it must never be replaced by
// a read followed by a write; that would reopen the race window Claim
// is built to close.
func (s *Store) Claim(id, workerLabel string, leaseUntil, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, processing_by = ?, lease_until = ?, updated_at = ?
		WHERE id = ?
			AND status = ?
			AND (lease_until IS NULL OR lease_until < ?)
	`, models.StatusStarted, workerLabel, leaseUntil, now, id, models.StatusPending, now)
	if err != nil {
		return false, err
	}
	claimed, err := affectedOne(res)
	if err != nil || !claimed {
		return claimed, err
	}
	return true, s.recordEvent(id, "claimed", "claimed by "+workerLabel, now)
}

// MarkProcessing transitions a started job to processing.
func (s *Store) MarkProcessing(id string, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, models.StatusProcessing, now, id, models.StatusStarted)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ExtendLease pushes the lease deadline forward without touching status.
// Unlike the other conditional operations it has no status precondition;
// spec.md §4.1 is silent on one here, and a worker only ever calls this
// while it still holds the lease it's extending.
func (s *Store) ExtendLease(id string, newLeaseUntil, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE jobs SET lease_until = ?, updated_at = ? WHERE id = ?
	`, newLeaseUntil, now, id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Complete finalizes a job as done, storing the transform result and
// clearing the lease. Idempotent at the row level: a second Complete
// call for the same id (a duplicate execution after lease expiry) is a
// harmless no-op since the transform is deterministic and the affected
// row already carries the same result_chars.
func (s *Store) Complete(id string, resultChars int64, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, result_chars = ?, processing_by = NULL, lease_until = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, models.StatusDone, resultChars, now, id, models.StatusStarted, models.StatusProcessing)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.recordEvent(id, "completed", fmt.Sprintf("result_chars=%d", resultChars), now)
}

// RecordRetry increments attempts, records the error, and resets the
// job to pending. It does not enqueue the id; the caller re-offers it
// to the Queue.
func (s *Store) RecordRetry(id, errMsg string, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, attempts = attempts + 1, last_error = ?,
			processing_by = NULL, lease_until = NULL, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`, models.StatusPending, errMsg, now, id, models.StatusDone, models.StatusFailed)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.recordEvent(id, "retry", errMsg, now)
}

// RecordFailed marks a job permanently failed. It does not perform an
// attempts = attempts + 1 arithmetic bump the way RecordRetry does;
// the caller has already computed the final attempts count (the one
// that crossed MAX_RETRIES) and passes it straight through, satisfying
// I4 without a second increment.
func (s *Store) RecordFailed(id, errMsg string, finalAttempts int, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, attempts = ?, last_error = ?, processing_by = NULL, lease_until = NULL, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`, models.StatusFailed, finalAttempts, errMsg, now, id, models.StatusDone, models.StatusFailed)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.recordEvent(id, "failed", errMsg, now)
}

// FetchText retrieves the immutable text payload for a job.
func (s *Store) FetchText(id string) (string, error) {
	var text string
	err := s.db.QueryRow(`SELECT text FROM jobs WHERE id = ?`, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return text, err
}

// GetAttempts returns the current attempts counter, used by a worker to
// compute new_attempts before deciding between RecordRetry and
// RecordFailed.
func (s *Store) GetAttempts(id string) (int, error) {
	var attempts int
	err := s.db.QueryRow(`SELECT attempts FROM jobs WHERE id = ?`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return attempts, err
}

// GetView returns the read-only, user-visible snapshot of a job.
func (s *Store) GetView(id string) (models.View, error) {
	j, err := s.get(id)
	if err != nil {
		return models.View{}, err
	}
	return j.ToView(), nil
}

func (s *Store) get(id string) (*models.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, status, text, result_chars, attempts, last_error, processing_by, lease_until, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	j := new(models.Job)
	var resultChars sql.NullInt64
	var lastError, processingBy sql.NullString
	var leaseUntil sql.NullTime
	err := row.Scan(&j.ID, &j.Status, &j.Text, &resultChars, &j.Attempts, &lastError, &processingBy, &leaseUntil, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if resultChars.Valid {
		j.ResultChars = &resultChars.Int64
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	if processingBy.Valid {
		j.ProcessingBy = &processingBy.String
	}
	if leaseUntil.Valid {
		t := leaseUntil.Time
		j.LeaseUntil = &t
	}
	return j, nil
}

// ScanExpiredLeases returns ids of jobs whose lease has expired: status
// in {started, processing} and lease_until < now. Bounded by limit.
func (s *Store) ScanExpiredLeases(now time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM jobs
		WHERE status IN (?, ?) AND lease_until < ?
		ORDER BY lease_until ASC
		LIMIT ?
	`, models.StatusStarted, models.StatusProcessing, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResetExpired conditionally resets an expired-lease job back to
// pending. Re-checks the same predicate ScanExpiredLeases used, so a
// worker that extended its lease between the scan and the reset wins
// the race and the reset becomes a no-op.
func (s *Store) ResetExpired(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, processing_by = NULL, lease_until = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?) AND lease_until < ?
	`, models.StatusPending, now, id, models.StatusStarted, models.StatusProcessing, now)
	if err != nil {
		return false, err
	}
	reset, err := affectedOne(res)
	if err != nil || !reset {
		return reset, err
	}
	return true, s.recordEvent(id, "reaped", "lease expired, reset to pending", now)
}

// ListByStatus returns up to limit jobs in the given status, most
// recently updated first. An operational/debugging surface (see
// SPEC_FULL.md §12), not part of the core state machine.
func (s *Store) ListByStatus(status models.Status, limit int) ([]models.View, error) {
	rows, err := s.db.Query(`
		SELECT id, status, text, result_chars, attempts, last_error, processing_by, lease_until, created_at, updated_at
		FROM jobs WHERE status = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var views []models.View
	for rows.Next() {
		j := new(models.Job)
		var resultChars sql.NullInt64
		var lastError, processingBy sql.NullString
		var leaseUntil sql.NullTime
		if err := rows.Scan(&j.ID, &j.Status, &j.Text, &resultChars, &j.Attempts, &lastError, &processingBy, &leaseUntil, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		if resultChars.Valid {
			j.ResultChars = &resultChars.Int64
		}
		if lastError.Valid {
			j.LastError = &lastError.String
		}
		views = append(views, j.ToView())
	}
	return views, rows.Err()
}

func (s *Store) recordEvent(jobID, kind, detail string, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO job_events (job_id, kind, detail, recorded_at) VALUES (?, ?, ?, ?)
	`, jobID, kind, detail, now)
	return err
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
