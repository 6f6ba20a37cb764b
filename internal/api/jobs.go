package api

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"vietdub/internal/config"
	"vietdub/internal/queue"
)

// JobStore abstracts the queue persistence operations the API layer needs.
type JobStore interface {
	Enqueue(ctx context.Context, input string, opts queue.Options) (*queue.Job, error)
	GetByJobID(ctx context.Context, jobID string) (*queue.Job, error)
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	RetryFailed(ctx context.Context, jobIDs ...string) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, jobID string) (bool, error)
}

// JobService validates submissions and exposes queue operations as DTOs.
type JobService struct {
	store JobStore
	cfg   *config.Config
}

// NewJobService constructs a JobService around the provided store.
func NewJobService(store JobStore, cfg *config.Config) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store, cfg: cfg}
}

// Submit validates a request, fills option defaults, and enqueues the job.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	if s == nil || s.store == nil {
		return Job{}, fmt.Errorf("queue store unavailable")
	}

	input := strings.TrimSpace(req.Input)
	if input == "" {
		return Job{}, fmt.Errorf("input is required")
	}
	if err := validateInput(input); err != nil {
		return Job{}, err
	}

	opts := ToOptions(req.Options)
	if strings.TrimSpace(opts.VoiceID) == "" && s.cfg != nil {
		opts.VoiceID = s.cfg.TTS.Voice
	}
	if _, ok := queue.ParseResolution(string(opts.Resolution)); !ok {
		return Job{}, fmt.Errorf("unknown resolution %q", opts.Resolution)
	}
	if opts.SpeedFactor < 0 {
		return Job{}, fmt.Errorf("speed factor must not be negative")
	}
	for _, engine := range opts.TranslationEngineOrder {
		if !knownEngine(engine) {
			return Job{}, fmt.Errorf("unknown translation engine %q", engine)
		}
	}

	job, err := s.store.Enqueue(ctx, input, opts)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// List returns jobs filtered by status.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe fetches a single job by its public identifier.
func (s *JobService) Describe(ctx context.Context, jobID string) (*Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetByJobID(ctx, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Artifact returns the recorded output locator for one completed stage.
func (s *JobService) Artifact(ctx context.Context, jobID, stageName string) (*ArtifactResponse, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	parsed, ok := queue.ParseStage(stageName)
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stageName)
	}
	job, err := s.store.GetByJobID(ctx, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	locator, ok := job.Artifact(parsed)
	if !ok {
		return nil, nil
	}
	return &ArtifactResponse{JobID: job.JobID, Stage: string(parsed), Locator: locator}, nil
}

// Stats returns queue summary counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// RetryFailed resets failed jobs (optionally a subset) back to pending.
func (s *JobService) RetryFailed(ctx context.Context, jobIDs ...string) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("queue store unavailable")
	}
	return s.store.RetryFailed(ctx, jobIDs...)
}

// ClearCompleted removes completed jobs from the queue.
func (s *JobService) ClearCompleted(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("queue store unavailable")
	}
	return s.store.ClearCompleted(ctx)
}

// ClearFailed removes failed jobs from the queue.
func (s *JobService) ClearFailed(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("queue store unavailable")
	}
	return s.store.ClearFailed(ctx)
}

// Remove deletes a job regardless of status.
func (s *JobService) Remove(ctx context.Context, jobID string) (bool, error) {
	if s == nil || s.store == nil {
		return false, fmt.Errorf("queue store unavailable")
	}
	return s.store.Remove(ctx, jobID)
}

// validateInput accepts either an http(s) URL or an existing local file.
func validateInput(input string) error {
	if parsed, err := url.Parse(input); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		switch parsed.Scheme {
		case "http", "https":
			return nil
		default:
			return fmt.Errorf("unsupported input scheme %q", parsed.Scheme)
		}
	}
	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("input %q is neither a URL nor a readable file", input)
	}
	if info.IsDir() {
		return fmt.Errorf("input %q is a directory", input)
	}
	return nil
}

func knownEngine(name string) bool {
	switch name {
	case config.EngineGTX, config.EngineOpenRouter, config.EngineOllama:
		return true
	default:
		return false
	}
}
