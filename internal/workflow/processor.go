package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/queue"
	"vietdub/internal/services"
	"vietdub/internal/stage"
)

// processJob drives one claimed job from its resume stage to a terminal
// status. The worker goroutine owns the job row for the whole run.
func (m *Manager) processJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	logger = logger.With(logging.String(logging.FieldJobID, job.JobID))

	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()
	m.registerInflight(job.JobID, cancelJob)
	defer m.unregisterInflight(job.JobID)

	// Heartbeats outlive stage attempts so reclaim never races a worker that
	// is merely between stages.
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()
	go m.watchCancelRequests(jobCtx, cancelJob, job.ID)

	start := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String(logging.FieldStage, string(job.ResumeStage())))

	for current := job.ResumeStage(); current != queue.StageDone; {
		if m.cancelRequested(ctx, jobCtx, job.ID) {
			m.finalizeCancelled(ctx, logger, job)
			return
		}

		job.Stage = current
		if base := current.ProgressBase(); job.Progress < base {
			job.Progress = base
		}
		if err := m.store.Update(ctx, job); err != nil {
			m.setLastError(err)
			logger.Error("failed to persist stage transition", logging.Error(err))
			return
		}

		artifact, err := m.runStageAttempts(jobCtx, logger, job, current)
		if err != nil {
			m.resolveStageFailure(ctx, jobCtx, logger, job, err)
			return
		}

		job.SetArtifact(current, artifact)

		next, ok := current.Next()
		if !ok {
			m.setLastError(errors.New("stage order corrupted"))
			return
		}
		// The final stage's result is persisted together with the
		// completed status, so a job is never stored at full progress
		// while still running.
		if next != queue.StageDone {
			job.Progress = queue.BlendProgress(current, 1)
			if err := m.store.Update(ctx, job); err != nil {
				m.setLastError(err)
				logger.Error("failed to persist stage result", logging.Error(err))
				return
			}
		}
		current = next
	}

	m.finalizeCompleted(ctx, logger, job)
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("job_duration", time.Since(start)))
}

// watchCancelRequests polls the cancellation flag so a running stage gets
// its context cancelled even when the request arrived through another
// process writing the queue database.
func (m *Manager) watchCancelRequests(ctx context.Context, cancel context.CancelFunc, jobID int64) {
	interval := m.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := m.store.CancelRequested(ctx, jobID)
			if err == nil && requested {
				cancel()
				return
			}
		}
	}
}

func (m *Manager) cancelRequested(ctx, jobCtx context.Context, jobID int64) bool {
	if jobCtx.Err() != nil && ctx.Err() == nil {
		return true
	}
	requested, err := m.store.CancelRequested(ctx, jobID)
	return err == nil && requested
}

// runStageAttempts executes one stage with the retry policy: retryable
// failure kinds get up to the configured attempts with exponential backoff,
// everything else fails fast.
func (m *Manager) runStageAttempts(ctx context.Context, logger *slog.Logger, job *queue.Job, current queue.Stage) (string, error) {
	executor, ok := m.executors[current]
	if !ok {
		return "", services.NewError(services.KindInternal, string(current), "dispatch", "no executor registered")
	}

	maxAttempts := m.cfg.Workflow.RetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		artifact, err := m.runSingleAttempt(ctx, job, current, executor)
		if err == nil {
			return artifact, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		if !services.RetryableError(err) || attempt >= maxAttempts {
			return "", err
		}

		backoff := m.retryBackoff(attempt)
		logger.Warn("stage attempt failed; retrying",
			logging.String(logging.FieldStage, string(current)),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("backoff", backoff),
			logging.Error(err))
		m.waitOrShutdown(ctx, backoff)
		if ctx.Err() != nil {
			return "", err
		}
	}
}

func (m *Manager) runSingleAttempt(ctx context.Context, job *queue.Job, current queue.Stage, executor stage.Executor) (string, error) {
	// Annotate the context so service-level logs carry the job and stage.
	ctx = services.WithJobID(ctx, job.JobID)
	ctx = services.WithStage(ctx, string(current))

	attemptCtx := ctx
	if timeout := time.Duration(m.cfg.StageTimeout(string(current))) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if stage.ResourceIntensive(current) {
		if err := m.modelSlots.Acquire(attemptCtx, 1); err != nil {
			return "", services.Wrap(services.KindTimeout, string(current), "acquire model slot", err)
		}
		defer m.modelSlots.Release(1)
	}

	workDir, err := media.EnsureStageDir(m.cfg.Paths.StagingDir, job.JobID, current)
	if err != nil {
		return "", services.Wrap(services.KindInternal, string(current), "prepare work dir", err)
	}

	req := &stage.Request{
		Job:     job,
		WorkDir: workDir,
		Progress: func(fraction float64) {
			m.persistProgress(ctx, job, current, fraction)
		},
	}

	artifact, execErr := executor.Execute(attemptCtx, req)
	if execErr != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", services.Wrap(services.KindTimeout, string(current), "stage attempt", execErr)
	}
	return artifact, execErr
}

// persistProgress folds an intra-stage fraction into overall progress.
// Progress never moves backwards, so retried attempts do not thrash the
// reported percentage. Running jobs are capped just below full progress;
// 100 is reserved for the completed status write.
func (m *Manager) persistProgress(ctx context.Context, job *queue.Job, current queue.Stage, fraction float64) {
	blended := queue.BlendProgress(current, fraction)
	if blended >= 100 {
		blended = 99
	}
	if blended <= job.Progress {
		return
	}
	job.Progress = blended
	if err := m.store.Update(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Debug("progress update failed", logging.Error(err))
	}
}

func (m *Manager) retryBackoff(attempt int) time.Duration {
	base := m.cfg.Workflow.RetryBackoffBase
	if base < 1 {
		base = 1
	}
	seconds := base << (attempt - 1)
	if maxBackoff := m.cfg.Workflow.RetryBackoffMax; maxBackoff > 0 && seconds > maxBackoff {
		seconds = maxBackoff
	}
	return time.Duration(seconds) * time.Second
}

func (m *Manager) resolveStageFailure(ctx, jobCtx context.Context, logger *slog.Logger, job *queue.Job, stageErr error) {
	details := services.Classify(stageErr)

	// Daemon shutdown: leave the job running, startup recovery resumes it.
	if ctx.Err() != nil {
		logger.Info("job interrupted by shutdown", logging.String(logging.FieldStage, string(job.Stage)))
		return
	}
	if details.Kind == services.KindCancelled || jobCtx.Err() != nil {
		m.finalizeCancelled(ctx, logger, job)
		return
	}

	m.setLastError(stageErr)
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldStage, string(job.Stage)),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Error(stageErr))

	job.SetFailed(string(details.Kind), details.Message)
	now := time.Now().UTC()
	job.CompletedAt = &now
	m.persistTerminal(ctx, logger, job)
}

func (m *Manager) finalizeCancelled(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	now := time.Now().UTC()
	job.Status = queue.StatusCancelled
	job.CompletedAt = &now
	job.LastHeartbeat = nil
	m.persistTerminal(ctx, logger, job)
	logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
}

func (m *Manager) finalizeCompleted(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	now := time.Now().UTC()
	job.Status = queue.StatusCompleted
	job.Stage = queue.StageDone
	job.Progress = 100
	job.CompletedAt = &now
	job.LastHeartbeat = nil
	m.persistTerminal(ctx, logger, job)
}

// persistTerminal writes a terminal transition with bounded retries; losing
// a terminal write would strand the job as running forever.
func (m *Manager) persistTerminal(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	attempts := m.cfg.Workflow.StoreRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := m.store.Update(ctx, job)
		if err == nil || errors.Is(err, queue.ErrJobTerminal) {
			return
		}
		m.setLastError(err)
		logger.Error("failed to persist terminal status",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err))
		if attempt < attempts {
			m.waitOrShutdown(ctx, time.Second)
		}
	}
}
