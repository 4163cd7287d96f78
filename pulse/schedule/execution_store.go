package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
)

// ExecutionStore handles persistence of job execution history
type ExecutionStore struct {
	db      *sql.DB
	dialect db.Dialect
	now     func() time.Time
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(conn *sql.DB) *ExecutionStore {
	return &ExecutionStore{
		db:      conn,
		dialect: db.DialectOf(conn),
		now:     time.Now,
	}
}

func (s *ExecutionStore) q(query string) string {
	return s.dialect.Rebind(query)
}

const executionColumns = `
	id, job_id, status, run_time,
	duration, started, finished,
	exception, traceback,
	created_at, updated_at`

// GetOrCreate returns the execution for (jobID, runTime), creating it with
// status and started when it does not exist yet.
func (s *ExecutionStore) GetOrCreate(ctx context.Context, jobID string, runTime time.Time, status Status, started *time.Time) (*Execution, error) {
	exec, err := s.findByRun(ctx, jobID, runTime)
	if err != nil || exec != nil {
		return exec, err
	}

	now := s.now()
	exec = &Execution{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Status:    status,
		RunTime:   db.Normalize(runTime),
		Started:   epochPtr(started),
		CreatedAt: db.Normalize(now),
		UpdatedAt: db.Normalize(now),
	}
	err = s.insert(ctx, exec)
	if db.IsUniqueViolation(err) {
		// Lost a race with another writer for the same run
		return s.findByRun(ctx, jobID, runTime)
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// RecordOutcome writes the terminal status of a run, updating the row created
// on submission or creating one when the run was never submitted.
func (s *ExecutionStore) RecordOutcome(ctx context.Context, o ExecutionOutcome) (*Execution, error) {
	if !o.Status.Valid() {
		return nil, errors.NewConfigurationError("unknown execution status %q", o.Status)
	}

	var duration *float64
	if o.Started != nil && o.Finished != nil {
		d := o.Finished.Sub(*o.Started).Seconds()
		duration = &d
	}
	started := epochPtr(o.Started)
	finished := epochPtr(o.Finished)
	now := s.now()

	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE pulse_executions
		SET status = ?,
		    duration = ?,
		    started = COALESCE(?, started),
		    finished = ?,
		    exception = ?,
		    traceback = ?,
		    updated_at = ?
		WHERE job_id = ? AND run_time = ?
	`),
		string(o.Status),
		nullFloat(duration),
		nullFloat(started),
		nullFloat(finished),
		nullString(o.Exception),
		nullString(o.Traceback),
		db.FormatTime(now),
		o.JobID,
		db.FormatTime(o.RunTime),
	)
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to update execution")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to check rows affected")
	}
	if rowsAffected > 0 {
		return s.findByRun(ctx, o.JobID, o.RunTime)
	}

	exec := &Execution{
		ID:        uuid.New().String(),
		JobID:     o.JobID,
		Status:    o.Status,
		RunTime:   db.Normalize(o.RunTime),
		Duration:  duration,
		Started:   started,
		Finished:  finished,
		Exception: o.Exception,
		Traceback: o.Traceback,
		CreatedAt: db.Normalize(now),
		UpdatedAt: db.Normalize(now),
	}
	if err := s.insert(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// GetExecution retrieves an execution by ID
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+executionColumns+` FROM pulse_executions WHERE id = ?`), id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("execution %s not found", id)
	}
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to get execution")
	}
	return exec, nil
}

// GetExecutionByRun retrieves the execution of job jobID at runTime.
func (s *ExecutionStore) GetExecutionByRun(ctx context.Context, jobID string, runTime time.Time) (*Execution, error) {
	exec, err := s.findByRun(ctx, jobID, runTime)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.NewNotFoundError("no execution of %s at %s", jobID, db.FormatTime(runTime))
	}
	return exec, nil
}

// ListExecutions returns a page of executions, most recent run time first,
// along with the total number matching the filter.
func (s *ExecutionStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, int, error) {
	baseQuery := `
		FROM pulse_executions
		WHERE 1 = 1
	`
	var args []interface{}

	if filter.JobID != "" {
		baseQuery += " AND job_id = ?"
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		baseQuery += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*)"+baseQuery), args...).Scan(&total); err != nil {
		return nil, 0, errors.WrapStoreIO(err, "failed to count executions")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultExecutionLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + executionColumns + baseQuery + `
		ORDER BY run_time DESC, id ASC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, 0, errors.WrapStoreIO(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, errors.WrapStoreIO(err, "failed to scan execution")
		}
		executions = append(executions, exec)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, errors.WrapStoreIO(err, "error iterating executions")
	}

	return executions, total, nil
}

// CountByStatus returns how many executions exist per status.
func (s *ExecutionStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pulse_executions GROUP BY status`)
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to count executions")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.WrapStoreIO(err, "failed to scan execution count")
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStoreIO(err, "error iterating execution counts")
	}
	return counts, nil
}

// CleanupOldExecutions deletes execution records whose run time is older
// than retention. Returns the number of executions deleted.
func (s *ExecutionStore) CleanupOldExecutions(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, errors.NewConfigurationError("retention must be positive, got %s", retention)
	}
	cutoff := db.FormatTime(s.now().Add(-retention))

	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM pulse_executions WHERE run_time < ?`), cutoff)
	if err != nil {
		return 0, errors.WrapStoreIO(err, "failed to cleanup old executions")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.WrapStoreIO(err, "failed to get rows affected")
	}
	return int(deleted), nil
}

func (s *ExecutionStore) findByRun(ctx context.Context, jobID string, runTime time.Time) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+executionColumns+`
		FROM pulse_executions
		WHERE job_id = ? AND run_time = ?
	`), jobID, db.FormatTime(runTime))
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapStoreIO(err, "failed to find execution")
	}
	return exec, nil
}

// insert writes a new row. Unique violations are returned unwrapped so callers
// can detect them with db.IsUniqueViolation.
func (s *ExecutionStore) insert(ctx context.Context, exec *Execution) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO pulse_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		exec.ID,
		exec.JobID,
		string(exec.Status),
		db.FormatTime(exec.RunTime),
		nullFloat(exec.Duration),
		nullFloat(exec.Started),
		nullFloat(exec.Finished),
		nullString(exec.Exception),
		nullString(exec.Traceback),
		db.FormatTime(exec.CreatedAt),
		db.FormatTime(exec.UpdatedAt),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return err
		}
		return errors.WrapStoreIO(err, "failed to create execution")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var status, runTime, createdAt, updatedAt string
	var duration, started, finished sql.NullFloat64
	var exception, traceback sql.NullString

	err := row.Scan(
		&exec.ID,
		&exec.JobID,
		&status,
		&runTime,
		&duration,
		&started,
		&finished,
		&exception,
		&traceback,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	exec.Status = Status(status)
	if exec.RunTime, err = db.ParseTime(runTime); err != nil {
		return nil, err
	}
	if exec.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if exec.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, err
	}

	// Convert sql.Null* types to pointers
	if duration.Valid {
		exec.Duration = &duration.Float64
	}
	if started.Valid {
		exec.Started = &started.Float64
	}
	if finished.Valid {
		exec.Finished = &finished.Float64
	}
	if exception.Valid {
		exec.Exception = &exception.String
	}
	if traceback.Valid {
		exec.Traceback = &traceback.String
	}

	return &exec, nil
}

func epochPtr(t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	v := db.EpochSeconds(*t)
	return &v
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
