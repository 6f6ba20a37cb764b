package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a dubbing job in a transport-friendly format.
type Job struct {
	ID              int64             `json:"id"`
	JobID           string            `json:"jobId"`
	Status          string            `json:"status"`
	Stage           string            `json:"stage"`
	Progress        float64           `json:"progress"`
	Input           string            `json:"input"`
	Options         JobOptions        `json:"options"`
	Artifacts       map[string]string `json:"artifacts,omitempty"`
	Error           *JobError         `json:"error,omitempty"`
	CancelRequested bool              `json:"cancelRequested,omitempty"`
	CreatedAt       string            `json:"createdAt,omitempty"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
	StartedAt       string            `json:"startedAt,omitempty"`
	CompletedAt     string            `json:"completedAt,omitempty"`
}

// JobOptions mirrors the immutable processing options captured at submission.
type JobOptions struct {
	VoiceID                string   `json:"voiceId"`
	TranslationEngineOrder []string `json:"translationEngineOrder,omitempty"`
	TargetLanguage         string   `json:"targetLanguage,omitempty"`
	IsMultiSpeaker         bool     `json:"isMultiSpeaker,omitempty"`
	Resolution             string   `json:"resolution,omitempty"`
	SpeedFactor            float64  `json:"speedFactor,omitempty"`
	AddSubtitles           bool     `json:"addSubtitles,omitempty"`
}

// JobError is the structured failure recorded on a failed job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stage   string `json:"stage"`
}

// SubmitRequest is the payload for creating a new dubbing job.
type SubmitRequest struct {
	Input   string     `json:"input"`
	Options JobOptions `json:"options"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// CancelResponse reports the outcome of a cancellation request.
type CancelResponse struct {
	JobID     string `json:"jobId"`
	Cancelled bool   `json:"cancelled"`
}

// ArtifactResponse reports one stage's recorded output locator.
type ArtifactResponse struct {
	JobID   string `json:"jobId"`
	Stage   string `json:"stage"`
	Locator string `json:"locator"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// QueueSummary carries aggregate job counts keyed by lifecycle state.
type QueueSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	Workers      int           `json:"workers"`
	Queue        QueueSummary  `json:"queue"`
	Stages       []StageHealth `json:"stages"`
	LastError    string        `json:"lastError,omitempty"`
	QueueDBPath  string        `json:"queueDbPath"`
	LockFilePath string        `json:"lockFilePath"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// MutationResponse reports how many rows a queue mutation touched.
type MutationResponse struct {
	Updated int64 `json:"updated"`
}
