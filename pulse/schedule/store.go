package schedule

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
)

// JobStore is the persistence the scheduler needs. *Store satisfies it.
type JobStore interface {
	LookupJob(ctx context.Context, id string) (*Job, error)
	GetDueJobs(ctx context.Context, now time.Time) ([]*Job, error)
	GetNextRunTime(ctx context.Context) (*time.Time, error)
	GetAllJobs(ctx context.Context) ([]*Job, error)
	AddJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	RemoveJob(ctx context.Context, id string) error
	RemoveAllJobs(ctx context.Context) error
	JobExists(ctx context.Context, id string) (bool, error)
}

// Store handles persistence of scheduled jobs
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewStore creates a new job store
func NewStore(conn *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{
		db:      conn,
		dialect: db.DialectOf(conn),
		logger:  logger.AddDBSymbol(log).Named("pulse.store"),
		now:     time.Now,
	}
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// storedJob is a raw pulse_jobs row before its state is decoded
type storedJob struct {
	id    string
	next  sql.NullString
	state []byte
}

// LookupJob returns the job with id, or nil if there is none.
// A job whose state cannot be decoded is deleted and reported as absent.
func (s *Store) LookupJob(ctx context.Context, id string) (*Job, error) {
	row := storedJob{id: id}
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT next_run_time, state FROM pulse_jobs WHERE id = ?`), id,
	).Scan(&row.next, &row.state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to look up job "+id)
	}

	jobs, err := s.reconstitute(ctx, []storedJob{row})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// GetDueJobs returns jobs whose next run time is at or before now, earliest first.
// Paused jobs are never due.
func (s *Store) GetDueJobs(ctx context.Context, now time.Time) ([]*Job, error) {
	return s.selectJobs(ctx, `
		SELECT id, next_run_time, state
		FROM pulse_jobs
		WHERE next_run_time IS NOT NULL AND next_run_time <= ?
		ORDER BY next_run_time ASC, id ASC
	`, db.FormatTime(now))
}

// GetNextRunTime returns the earliest upcoming run time, or nil when every job is paused.
func (s *Store) GetNextRunTime(ctx context.Context) (*time.Time, error) {
	var next sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(next_run_time) FROM pulse_jobs WHERE next_run_time IS NOT NULL
	`).Scan(&next)
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to get next run time")
	}
	t, err := db.TimePtr(next)
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to get next run time")
	}
	return t, nil
}

// GetAllJobs returns every job ordered by next run time, paused jobs last.
// Ties are broken by id so listings are stable.
func (s *Store) GetAllJobs(ctx context.Context) ([]*Job, error) {
	return s.selectJobs(ctx, `
		SELECT id, next_run_time, state
		FROM pulse_jobs
		ORDER BY CASE WHEN next_run_time IS NULL THEN 1 ELSE 0 END, next_run_time ASC, id ASC
	`)
}

// AddJob inserts job. A duplicate id fails with errors.ErrConflict and leaves the store unchanged.
func (s *Store) AddJob(ctx context.Context, job *Job) error {
	state, err := EncodeState(job)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStoreIO(err, "failed to begin transaction")
	}
	defer tx.Rollback() // Rollback if not committed

	now := db.FormatTime(s.now())
	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO pulse_jobs (id, next_run_time, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`), job.ID, db.NullTime(job.NextRunTime), state, now, now)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.NewConflictError("job %s already exists", job.ID)
		}
		return errors.WrapStoreIO(err, "failed to add job "+job.ID)
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapStoreIO(err, "failed to commit job "+job.ID)
	}
	return nil
}

// UpdateJob replaces the next run time and state of an existing job.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	state, err := EncodeState(job)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE pulse_jobs
		SET next_run_time = ?, state = ?, updated_at = ?
		WHERE id = ?
	`), db.NullTime(job.NextRunTime), state, db.FormatTime(s.now()), job.ID)
	if err != nil {
		return errors.WrapStoreIO(err, "failed to update job "+job.ID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapStoreIO(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("job %s not found", job.ID)
	}
	return nil
}

// RemoveJob deletes a job together with its execution history.
func (s *Store) RemoveJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStoreIO(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM pulse_executions WHERE job_id = ?`), id); err != nil {
		return errors.WrapStoreIO(err, "failed to remove executions of job "+id)
	}
	result, err := tx.ExecContext(ctx, s.q(`DELETE FROM pulse_jobs WHERE id = ?`), id)
	if err != nil {
		return errors.WrapStoreIO(err, "failed to remove job "+id)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapStoreIO(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("job %s not found", id)
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapStoreIO(err, "failed to commit removal of job "+id)
	}
	return nil
}

// RemoveAllJobs clears every job and every execution record. Irreversible.
func (s *Store) RemoveAllJobs(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStoreIO(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pulse_executions`); err != nil {
		return errors.WrapStoreIO(err, "failed to remove executions")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pulse_jobs`); err != nil {
		return errors.WrapStoreIO(err, "failed to remove jobs")
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapStoreIO(err, "failed to commit removal of all jobs")
	}
	return nil
}

// JobExists reports whether a job row exists, without decoding its state.
func (s *Store) JobExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM pulse_jobs WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.WrapStoreIO(err, "failed to check job "+id)
	}
	return true, nil
}

// CountJobs returns the number of stored jobs and how many of them are paused.
func (s *Store) CountJobs(ctx context.Context) (total, paused int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN next_run_time IS NULL THEN 1 ELSE 0 END), 0)
		FROM pulse_jobs
	`).Scan(&total, &paused)
	if err != nil {
		return 0, 0, errors.WrapStoreIO(err, "failed to count jobs")
	}
	return total, paused, nil
}

// selectJobs runs a query returning (id, next_run_time, state) rows.
// The result set is fully read and closed before any state is decoded, so
// deleting corrupt rows never overlaps an open cursor.
func (s *Store) selectJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to query jobs")
	}

	var stored []storedJob
	for rows.Next() {
		var row storedJob
		if err := rows.Scan(&row.id, &row.next, &row.state); err != nil {
			rows.Close()
			return nil, errors.WrapStoreIO(err, "failed to scan job")
		}
		stored = append(stored, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.WrapStoreIO(err, "error iterating jobs")
	}
	rows.Close()

	return s.reconstitute(ctx, stored)
}

// reconstitute decodes rows into jobs. Rows that fail are logged and deleted
// so one bad record never blocks the rest.
func (s *Store) reconstitute(ctx context.Context, stored []storedJob) ([]*Job, error) {
	jobs := make([]*Job, 0, len(stored))
	var failed []string

	for _, row := range stored {
		job, err := decodeRow(row)
		if err != nil {
			s.logger.Errorw("Unable to restore job, removing it",
				logger.FieldJobID, row.id,
				logger.FieldError, err)
			failed = append(failed, row.id)
			continue
		}
		jobs = append(jobs, job)
	}

	for _, id := range failed {
		if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM pulse_jobs WHERE id = ?`), id); err != nil {
			return nil, errors.WrapStoreIO(err, "failed to remove corrupt job "+id)
		}
	}
	return jobs, nil
}

func decodeRow(row storedJob) (*Job, error) {
	next, err := db.TimePtr(row.next)
	if err != nil {
		return nil, errors.WrapCorruptState(err, row.id)
	}
	return DecodeState(row.id, next, row.state)
}
