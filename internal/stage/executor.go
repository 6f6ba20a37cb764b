package stage

import (
	"context"

	"vietdub/internal/queue"
)

// Request carries everything an executor needs for one attempt on one job.
// Executors read input and prior artifacts from it, write their outputs under
// WorkDir, and report intra-stage progress through Progress.
type Request struct {
	Job *queue.Job
	// WorkDir is the directory this stage owns for the job. The returned
	// artifact locator is normally WorkDir itself.
	WorkDir string
	// Progress reports the attempt's completion fraction in [0,1]. May be nil.
	Progress func(fraction float64)
}

// ReportProgress invokes the progress callback when one is set.
func (r *Request) ReportProgress(fraction float64) {
	if r != nil && r.Progress != nil {
		r.Progress(fraction)
	}
}

// PriorArtifact returns the recorded locator for an earlier stage.
func (r *Request) PriorArtifact(stage queue.Stage) (string, bool) {
	if r == nil || r.Job == nil {
		return "", false
	}
	return r.Job.Artifact(stage)
}

// Executor describes the contract the workflow manager needs from each
// pipeline stage. Execute returns the artifact locator to record on success;
// failures are classified through the services error taxonomy.
type Executor interface {
	Stage() queue.Stage
	Execute(context.Context, *Request) (string, error)
	HealthCheck(context.Context) Health
}

// ResourceIntensive reports whether a stage loads a heavyweight model and must
// hold a model slot while running.
func ResourceIntensive(stage queue.Stage) bool {
	switch stage {
	case queue.StageSeparating, queue.StageTranscribing, queue.StageSynthesizing:
		return true
	default:
		return false
	}
}
