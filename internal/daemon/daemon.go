package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/logging"
	"vietdub/internal/preflight"
	"vietdub/internal/queue"
	"vietdub/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution via an advisory file lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	jobs     *api.JobService

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.Status
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, wf *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "vietdubd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		workflow: wf,
		jobs:     api.NewJobService(store, cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	server, err := newAPIServer(cfg, d, d.logger)
	if err != nil {
		return nil, err
	}
	d.server = server
	return d, nil
}

// Start acquires the instance lock, verifies preflight checks, and launches
// the workflow manager and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vietdub daemon instance is already running")
	}

	results := preflight.RunAll(ctx, d.cfg)
	for _, r := range results {
		if r.Passed {
			continue
		}
		if r.Optional {
			d.logger.Warn("preflight check degraded",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail))
			continue
		}
		_ = d.lock.Unlock()
		return fmt.Errorf("preflight check %q failed: %s", r.Name, r.Detail)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.server.Addr()))
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Jobs exposes the submission and query surface shared with the CLI.
func (d *Daemon) Jobs() *api.JobService {
	return d.jobs
}

// CancelJob requests cooperative cancellation of a job.
func (d *Daemon) CancelJob(ctx context.Context, jobID string) (bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return false, errors.New("job id is required")
	}
	return d.workflow.Cancel(ctx, jobID)
}

// APIAddr returns the bound API listener address, empty before Start.
func (d *Daemon) APIAddr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	summary, err := d.workflow.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     summary,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}
