package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"vietdub/internal/config"
	"vietdub/internal/logging"
	"vietdub/internal/queue"
	"vietdub/internal/stage"
)

// Manager coordinates queue processing across a pool of workers.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	executors map[queue.Stage]stage.Executor

	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor
	modelSlots   *semaphore.Weighted

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight map[string]context.CancelFunc
	lastErr  error
}

// NewManager constructs a workflow manager over the given stage executors.
func NewManager(cfg *config.Config, store *queue.Store, executors map[queue.Stage]stage.Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	slots := int64(cfg.Workers.ModelSlots)
	if slots < 1 {
		slots = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger.With(logging.String(logging.FieldComponent, "workflow-manager")),
		executors:    executors,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		modelSlots: semaphore.NewWeighted(slots),
		inflight:   make(map[string]context.CancelFunc),
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.executors) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	// No worker owns anything yet, so any running row is a leftover from an
	// unclean shutdown.
	if reset, err := m.store.ResetStuckRunning(runCtx); err != nil {
		m.logger.Warn("reset stuck jobs failed", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("reset stuck jobs to pending", logging.Int64("count", reset))
	}

	workers := m.cfg.Workers.Count
	if workers < 1 {
		workers = 1
	}
	m.wg.Add(workers + 1)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runReclaimLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the manager has been started.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Cancel requests cooperative cancellation of a job. Pending jobs are
// finalized at claim time; a running job's stage context is cancelled
// immediately. Returns false when the job is unknown or already terminal.
func (m *Manager) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := m.store.RequestCancel(ctx, jobID)
	if err != nil || !ok {
		return ok, err
	}
	m.mu.RLock()
	cancelJob := m.inflight[jobID]
	m.mu.RUnlock()
	if cancelJob != nil {
		cancelJob()
	}
	return true, nil
}

func (m *Manager) registerInflight(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.inflight[jobID] = cancel
	m.mu.Unlock()
}

func (m *Manager) unregisterInflight(jobID string) {
	m.mu.Lock()
	delete(m.inflight, jobID)
	m.mu.Unlock()
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next job", logging.Error(err))
			m.waitOrShutdown(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if job == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		m.processJob(ctx, logger, job)
	}
}

func (m *Manager) runReclaimLoop(ctx context.Context) {
	defer m.wg.Done()
	interval := m.heartbeat.interval
	if interval <= 0 {
		interval = m.pollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.heartbeat.ReclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("reclaim stale jobs failed", logging.Error(err))
			}
		}
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// LastError returns the most recent background failure for diagnostics.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
