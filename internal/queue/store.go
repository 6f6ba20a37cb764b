package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vietdub/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path for diagnostics.
func (s *Store) Path() string {
	return s.path
}

// Enqueue inserts a new pending job for the given input locator and options.
func (s *Store) Enqueue(ctx context.Context, input string, opts Options) (*Job, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("input locator is required")
	}
	if _, ok := ParseResolution(string(opts.Resolution)); !ok {
		return nil, fmt.Errorf("unknown resolution %q", opts.Resolution)
	}

	optionsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	jobID := uuid.NewString()

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            job_id, status, stage, progress, input, options_json,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID,
		StatusPending,
		StageQueued,
		0.0,
		input,
		string(optionsJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByJobID(ctx, jobID)
}

// GetByJobID fetches a job by its public identifier.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByID fetches a job by its row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job. Writes against a job that has
// already reached a terminal status fail with ErrJobTerminal, which enforces
// terminal immutability at the storage layer.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	artifactsJSON, err := marshalArtifacts(job.Artifacts)
	if err != nil {
		return err
	}
	optionsJSON, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	var errKind, errMessage, errStage any
	if job.Error != nil {
		errKind = job.Error.Kind
		errMessage = job.Error.Message
		errStage = string(job.Error.Stage)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, stage = ?, progress = ?, input = ?, options_json = ?,
             artifacts_json = ?, error_kind = ?, error_message = ?, error_stage = ?,
             cancel_requested = ?, updated_at = ?, started_at = ?, completed_at = ?,
             last_heartbeat = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		job.Status,
		job.Stage,
		job.Progress,
		job.Input,
		string(optionsJSON),
		artifactsJSON,
		errKind,
		errMessage,
		errStage,
		boolToInt(job.CancelRequested),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.LastHeartbeat),
		job.ID,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.GetByID(ctx, job.ID)
		if getErr != nil {
			return getErr
		}
		if current == nil {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %s", ErrJobTerminal, current.Status)
	}
	return nil
}

// ClaimNextPending atomically claims the oldest pending job for a worker,
// transitioning it to running and stamping started_at on first claim. Pending
// jobs with a cancellation request are finalized as cancelled instead of
// claimed. Returns nil when no work is available.
func (s *Store) ClaimNextPending(ctx context.Context) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	// Cancellation requested before any worker picked the job up.
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, updated_at = ?
         WHERE status = ? AND cancel_requested = 1`,
		StatusCancelled,
		timestamp,
		timestamp,
		StatusPending,
	); err != nil {
		return nil, fmt.Errorf("finalize cancelled pending jobs: %w", err)
	}

	row := tx.QueryRowContext(
		ctx,
		`SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		StatusPending,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if commitErr := tx.Commit(); commitErr != nil {
				return nil, fmt.Errorf("commit claim tx: %w", commitErr)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("select next pending: %w", err)
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, started_at = COALESCE(started_at, ?), last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusRunning,
		timestamp,
		timestamp,
		timestamp,
		id,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Another claimer raced us inside a separate transaction.
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, fmt.Errorf("commit claim tx: %w", commitErr)
		}
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return s.GetByID(ctx, id)
}

// RequestCancel flags a non-terminal job for cooperative cancellation.
// Returns false when the job does not exist or is already terminal.
func (s *Store) RequestCancel(ctx context.Context, jobID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ?
         WHERE job_id = ? AND status IN (?, ?)`,
		now,
		jobID,
		StatusPending,
		StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CancelRequested reports whether cancellation has been requested for a job.
func (s *Store) CancelRequested(ctx context.Context, id int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id)
	var flag int
	if err := row.Scan(&flag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleRunning returns running jobs with expired heartbeats to pending
// so a restarted daemon resumes them from their recorded artifacts.
func (s *Store) ReclaimStaleRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		now,
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckRunning returns all running jobs to pending. Called on daemon
// startup before any worker claims, when no job can legitimately be running.
func (s *Store) ResetStuckRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ?`,
		StatusPending,
		now,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to pending for reprocessing. Recorded
// artifacts survive so retried jobs resume from where they broke.
func (s *Store) RetryFailed(ctx context.Context, jobIDs ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(jobIDs) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, error_kind = NULL, error_message = NULL, error_stage = NULL,
                 cancel_requested = 0, completed_at = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(jobIDs))
	args := make([]any, 0, len(jobIDs)+3)
	args = append(args, StatusPending, now)
	for _, id := range jobIDs {
		args = append(args, id)
	}
	args = append(args, StatusFailed)
	query := `UPDATE jobs
        SET status = ?, error_kind = NULL, error_message = NULL, error_stage = NULL,
            cancel_requested = 0, completed_at = NULL, updated_at = ?
        WHERE job_id IN (` + placeholders + `) AND status = ?`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning:
			health.Running += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// Remove deletes a job by its public identifier.
func (s *Store) Remove(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = "id, job_id, status, stage, progress, input, options_json, artifacts_json, error_kind, error_message, error_stage, cancel_requested, created_at, updated_at, started_at, completed_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            int64
		jobID         string
		statusStr     string
		stageStr      string
		progress      sql.NullFloat64
		input         sql.NullString
		optionsJSON   sql.NullString
		artifactsJSON sql.NullString
		errKind       sql.NullString
		errMessage    sql.NullString
		errStage      sql.NullString
		cancelFlag    sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		startedRaw    sql.NullString
		completedRaw  sql.NullString
		heartbeatRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&statusStr,
		&stageStr,
		&progress,
		&input,
		&optionsJSON,
		&artifactsJSON,
		&errKind,
		&errMessage,
		&errStage,
		&cancelFlag,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:       id,
		JobID:    jobID,
		Status:   Status(statusStr),
		Stage:    Stage(stageStr),
		Progress: progress.Float64,
		Input:    input.String,
	}
	if cancelFlag.Valid {
		job.CancelRequested = cancelFlag.Int64 != 0
	}
	if optionsJSON.Valid && optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &job.Options); err != nil {
			return nil, fmt.Errorf("parse options: %w", err)
		}
	}
	if artifactsJSON.Valid && artifactsJSON.String != "" {
		if err := json.Unmarshal([]byte(artifactsJSON.String), &job.Artifacts); err != nil {
			return nil, fmt.Errorf("parse artifacts: %w", err)
		}
	}
	if errKind.Valid && errKind.String != "" {
		job.Error = &JobError{
			Kind:    errKind.String,
			Message: errMessage.String,
			Stage:   Stage(errStage.String),
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func marshalArtifacts(artifacts map[Stage]string) (any, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(artifacts)
	if err != nil {
		return nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	return string(data), nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
