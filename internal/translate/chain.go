package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"

	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/queue"
	"vietdub/internal/services"
)

// Attempt records one engine try for failure reporting.
type Attempt struct {
	Engine string
	Err    error
}

// Chain tries translation engines in configured order until one succeeds.
// Each engine gets a fresh per-attempt timeout and the full untranslated
// batch, so a failing engine never leaks partial results into the next.
type Chain struct {
	engines        []Engine
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// NewChain builds a fallback chain over the given engines. A non-positive
// timeout disables the per-attempt deadline.
func NewChain(engines []Engine, attemptTimeout time.Duration, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		engines:        engines,
		attemptTimeout: attemptTimeout,
		logger:         logger.With(logging.String(logging.FieldComponent, "translate")),
	}
}

// Engines returns the configured engine names in fallback order.
func (c *Chain) Engines() []string {
	names := make([]string, len(c.engines))
	for i, engine := range c.engines {
		names[i] = engine.Name()
	}
	return names
}

// Translate runs the fallback chain. It returns the first successful batch
// along with the attempts made; when every engine fails the error kind is
// AllTranslationEnginesFailed and carries a per-engine reason summary.
func (c *Chain) Translate(ctx context.Context, segments []media.Segment, target language.Tag) ([]media.Segment, []Attempt, error) {
	if len(segments) == 0 {
		// Nothing to translate. Silent audio reaches this path and must
		// succeed without touching any engine.
		return nil, nil, nil
	}
	if len(c.engines) == 0 {
		return nil, nil, services.NewError(
			services.KindAllTranslationFailed,
			string(queue.StageTranslating),
			"translate",
			"no translation engines configured",
		)
	}

	logger := logging.WithContext(ctx, c.logger)
	attempts := make([]Attempt, 0, len(c.engines))
	for _, engine := range c.engines {
		if err := ctx.Err(); err != nil {
			return nil, attempts, services.Wrap(
				services.KindCancelled,
				string(queue.StageTranslating),
				"translate",
				err,
			)
		}

		translated, err := c.attempt(ctx, engine, segments, target)
		if err == nil {
			logger.Info("translation engine succeeded",
				logging.String(logging.FieldEngine, engine.Name()),
				logging.Int("segments", len(translated)))
			return translated, append(attempts, Attempt{Engine: engine.Name()}), nil
		}

		attempts = append(attempts, Attempt{Engine: engine.Name(), Err: err})
		logger.Warn("translation engine failed",
			logging.String(logging.FieldEngine, engine.Name()),
			logging.Error(err))
	}

	return nil, attempts, services.NewError(
		services.KindAllTranslationFailed,
		string(queue.StageTranslating),
		"translate",
		summarizeAttempts(attempts),
	)
}

func (c *Chain) attempt(ctx context.Context, engine Engine, segments []media.Segment, target language.Tag) ([]media.Segment, error) {
	attemptCtx := ctx
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	translated, err := engine.Translate(attemptCtx, segments, target)
	if err != nil {
		return nil, err
	}
	if len(translated) != len(segments) {
		return nil, fmt.Errorf("engine %s returned %d segments for %d inputs", engine.Name(), len(translated), len(segments))
	}
	return translated, nil
}

func summarizeAttempts(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, attempt := range attempts {
		reason := "unknown"
		if attempt.Err != nil {
			reason = attempt.Err.Error()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", attempt.Engine, reason))
	}
	return "all engines failed: " + strings.Join(parts, "; ")
}
