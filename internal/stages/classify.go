package stages

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"vietdub/internal/queue"
	"vietdub/internal/services"
)

// classifyToolError maps an external tool failure to a pipeline error kind.
// Context cancellation and deadline expiry keep their own kinds, missing
// binaries mean the model or tool is unavailable, and out-of-memory output
// marks the attempt retryable. Anything else gets the stage's fallback kind.
func classifyToolError(stage queue.Stage, op string, fallback services.Kind, err error) error {
	if err == nil {
		return nil
	}

	kind := fallback
	switch {
	case errors.Is(err, context.Canceled):
		kind = services.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = services.KindTimeout
	case errors.Is(err, exec.ErrNotFound):
		kind = services.KindModelUnavailable
	case looksLikeOOM(err):
		kind = services.KindResourceExhausted
	}
	return services.Wrap(kind, string(stage), op, err)
}

func looksLikeOOM(err error) bool {
	message := strings.ToLower(err.Error())
	for _, marker := range []string{"out of memory", "cuda error", "oom", "cannot allocate"} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// requirePrior fetches an earlier stage's artifact or fails the attempt with
// an internal error; a missing prior artifact means the resume logic broke.
func requirePrior(job *queue.Job, current, prior queue.Stage) (string, error) {
	locator, ok := job.Artifact(prior)
	if !ok {
		return "", services.NewError(
			services.KindInternal,
			string(current),
			"resolve inputs",
			"missing "+string(prior)+" artifact",
		)
	}
	return locator, nil
}
