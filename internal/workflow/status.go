package workflow

import (
	"context"
	"sort"

	"vietdub/internal/queue"
	"vietdub/internal/stage"
)

// Status is a point-in-time snapshot of the pipeline for the API and CLI.
type Status struct {
	Running   bool                `json:"running"`
	Workers   int                 `json:"workers"`
	Queue     queue.HealthSummary `json:"queue"`
	Stages    []stage.Health      `json:"stages"`
	LastError string              `json:"last_error,omitempty"`
}

// Status collects queue counts and per-stage executor health. Stage checks
// run sequentially; they are cheap binary lookups, not tool invocations.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	summary, err := m.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Running: m.Running(),
		Workers: m.cfg.Workers.Count,
		Queue:   summary,
		Stages:  m.stageHealth(ctx),
	}
	if lastErr := m.LastError(); lastErr != nil {
		status.LastError = lastErr.Error()
	}
	return status, nil
}

// Healthy reports whether every registered stage executor is ready.
func (m *Manager) Healthy(ctx context.Context) bool {
	for _, h := range m.stageHealth(ctx) {
		if !h.Ready {
			return false
		}
	}
	return true
}

func (m *Manager) stageHealth(ctx context.Context) []stage.Health {
	ordered := make([]queue.Stage, 0, len(m.executors))
	for s := range m.executors {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		left, _ := ordered[i].Index()
		right, _ := ordered[j].Index()
		return left < right
	})

	checks := make([]stage.Health, 0, len(ordered))
	for _, s := range ordered {
		checks = append(checks, m.executors[s].HealthCheck(ctx))
	}
	return checks
}
