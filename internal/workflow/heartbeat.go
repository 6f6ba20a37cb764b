package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vietdub/internal/logging"
	"vietdub/internal/queue"
)

// HeartbeatMonitor keeps running jobs visibly alive and reclaims the ones
// whose owner stopped beating.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")),
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStale returns jobs with expired heartbeats to pending.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStaleRunning(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop updates one job's heartbeat until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
