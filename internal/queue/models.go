package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a dubbing job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether a status is final. Terminal jobs are immutable.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Stage identifies one unit of pipeline work. Queued and Done bracket the
// real stages and never execute.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageDownloading  Stage = "downloading"
	StageSeparating   Stage = "separating"
	StageTranscribing Stage = "transcribing"
	StageTranslating  Stage = "translating"
	StageSynthesizing Stage = "synthesizing"
	StageMuxing       Stage = "muxing"
	StageDone         Stage = "done"
)

// stageOrder is the authoritative total order of executable stages. Adding a
// stage means extending this table, not branching on strings elsewhere.
var stageOrder = []Stage{
	StageDownloading,
	StageSeparating,
	StageTranscribing,
	StageTranslating,
	StageSynthesizing,
	StageMuxing,
}

// StageCount is the number of executable pipeline stages.
const StageCount = 6

var stageIndex = func() map[Stage]int {
	idx := make(map[Stage]int, len(stageOrder))
	for i, stage := range stageOrder {
		idx[stage] = i
	}
	return idx
}()

// StageOrder returns the executable stages in pipeline order.
func StageOrder() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// ParseStage converts a string into a known Stage, including the pseudo stages.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StageQueued, StageDone:
		return normalized, true
	}
	if _, ok := stageIndex[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// Index returns the zero-based position of an executable stage.
func (s Stage) Index() (int, bool) {
	idx, ok := stageIndex[s]
	return idx, ok
}

// Next returns the stage following s. The last executable stage advances to
// StageDone.
func (s Stage) Next() (Stage, bool) {
	if s == StageQueued {
		return stageOrder[0], true
	}
	idx, ok := stageIndex[s]
	if !ok {
		return "", false
	}
	if idx == len(stageOrder)-1 {
		return StageDone, true
	}
	return stageOrder[idx+1], true
}

// StageWeight is the share of overall progress one stage contributes.
func StageWeight() float64 {
	return 100.0 / StageCount
}

// ProgressBase returns the overall progress when a stage begins.
func (s Stage) ProgressBase() float64 {
	idx, ok := stageIndex[s]
	if !ok {
		if s == StageDone {
			return 100
		}
		return 0
	}
	return float64(idx) * StageWeight()
}

// BlendProgress folds an intra-stage fraction into overall progress:
// base + fraction*weight, with the fraction clamped to [0,1].
func BlendProgress(s Stage, fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return s.ProgressBase() + fraction*StageWeight()
}

// Resolution is the output resolution option.
type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
	Resolution4K    Resolution = "4k"
)

// ParseResolution validates a resolution value. Empty means source resolution.
func ParseResolution(value string) (Resolution, bool) {
	normalized := Resolution(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case "", Resolution720p, Resolution1080p, Resolution4K:
		return normalized, true
	default:
		return "", false
	}
}

// Options is the immutable processing configuration captured at submission.
type Options struct {
	VoiceID                string     `json:"voice_id"`
	TranslationEngineOrder []string   `json:"translation_engine_order,omitempty"`
	TargetLanguage         string     `json:"target_language,omitempty"`
	IsMultiSpeaker         bool       `json:"is_multi_speaker,omitempty"`
	Resolution             Resolution `json:"resolution,omitempty"`
	SpeedFactor            float64    `json:"speed_factor,omitempty"`
	AddSubtitles           bool       `json:"add_subtitles,omitempty"`
}

// JobError is the structured failure recorded on a failed job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stage   Stage  `json:"stage"`
}

// Job represents one dubbing request persisted in SQLite.
type Job struct {
	ID              int64
	JobID           string
	Status          Status
	Stage           Stage
	Progress        float64
	Input           string
	Options         Options
	Artifacts       map[Stage]string
	Error           *JobError
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LastHeartbeat   *time.Time
}

// Artifact returns the output locator recorded for a completed stage.
func (j *Job) Artifact(stage Stage) (string, bool) {
	if j.Artifacts == nil {
		return "", false
	}
	locator, ok := j.Artifacts[stage]
	return locator, ok
}

// SetArtifact records a stage output locator. Artifacts are append-only; a
// locator already present is left untouched.
func (j *Job) SetArtifact(stage Stage, locator string) {
	if j.Artifacts == nil {
		j.Artifacts = make(map[Stage]string, StageCount)
	}
	if _, exists := j.Artifacts[stage]; exists {
		return
	}
	j.Artifacts[stage] = locator
}

// ResumeStage returns the first executable stage lacking an artifact. A job
// with every artifact recorded resumes at StageDone.
func (j *Job) ResumeStage() Stage {
	for _, stage := range stageOrder {
		if _, ok := j.Artifact(stage); !ok {
			return stage
		}
	}
	return StageDone
}

// SetFailed pins the failing stage and records the structured error.
func (j *Job) SetFailed(kind, message string) {
	j.Status = StatusFailed
	j.Error = &JobError{Kind: kind, Message: message, Stage: j.Stage}
	j.LastHeartbeat = nil
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
