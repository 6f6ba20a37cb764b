package api

import (
	"time"

	"vietdub/internal/queue"
	"vietdub/internal/stage"
	"vietdub/internal/workflow"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}

	dto := Job{
		ID:       job.ID,
		JobID:    job.JobID,
		Status:   string(job.Status),
		Stage:    string(job.Stage),
		Progress: job.Progress,
		Input:    job.Input,
		Options: JobOptions{
			VoiceID:                job.Options.VoiceID,
			TranslationEngineOrder: job.Options.TranslationEngineOrder,
			TargetLanguage:         job.Options.TargetLanguage,
			IsMultiSpeaker:         job.Options.IsMultiSpeaker,
			Resolution:             string(job.Options.Resolution),
			SpeedFactor:            job.Options.SpeedFactor,
			AddSubtitles:           job.Options.AddSubtitles,
		},
		CancelRequested: job.CancelRequested,
		CreatedAt:       formatTime(job.CreatedAt),
		UpdatedAt:       formatTime(job.UpdatedAt),
	}
	if len(job.Artifacts) > 0 {
		artifacts := make(map[string]string, len(job.Artifacts))
		for s, locator := range job.Artifacts {
			artifacts[string(s)] = locator
		}
		dto.Artifacts = artifacts
	}
	if job.Error != nil {
		dto.Error = &JobError{
			Kind:    job.Error.Kind,
			Message: job.Error.Message,
			Stage:   string(job.Error.Stage),
		}
	}
	if job.StartedAt != nil {
		dto.StartedAt = formatTime(*job.StartedAt)
	}
	if job.CompletedAt != nil {
		dto.CompletedAt = formatTime(*job.CompletedAt)
	}
	return dto
}

// FromJobs converts a slice of queue records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// ToOptions converts transport options back into queue options.
func ToOptions(opts JobOptions) queue.Options {
	return queue.Options{
		VoiceID:                opts.VoiceID,
		TranslationEngineOrder: opts.TranslationEngineOrder,
		TargetLanguage:         opts.TargetLanguage,
		IsMultiSpeaker:         opts.IsMultiSpeaker,
		Resolution:             queue.Resolution(opts.Resolution),
		SpeedFactor:            opts.SpeedFactor,
		AddSubtitles:           opts.AddSubtitles,
	}
}

// FromWorkflowStatus converts a workflow snapshot to API payload.
func FromWorkflowStatus(status workflow.Status) DaemonStatus {
	return DaemonStatus{
		Running: status.Running,
		Workers: status.Workers,
		Queue: QueueSummary{
			Total:     status.Queue.Total,
			Pending:   status.Queue.Pending,
			Running:   status.Queue.Running,
			Completed: status.Queue.Completed,
			Failed:    status.Queue.Failed,
			Cancelled: status.Queue.Cancelled,
		},
		Stages:    FromStageHealth(status.Stages),
		LastError: status.LastError,
	}
}

// FromStageHealth converts stage readiness records to API payloads.
func FromStageHealth(checks []stage.Health) []StageHealth {
	if len(checks) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(checks))
	for _, h := range checks {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// MergeQueueStats normalizes stats so every known status has an entry.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	merged := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		merged[string(status)] = 0
	}
	for status, count := range stats {
		merged[string(status)] = count
	}
	return merged
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
