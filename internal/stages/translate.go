package stages

import (
	"context"
	"log/slog"
	"path/filepath"

	"vietdub/internal/config"
	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/queue"
	"vietdub/internal/services"
	"vietdub/internal/stage"
	"vietdub/internal/translate"
)

// Translate runs the transcript through the configured fallback chain of
// translation engines. Jobs may narrow or reorder the chain through their
// submission options; the config order is the default.
type Translate struct {
	cfg    config.Translation
	logger *slog.Logger
}

// NewTranslate constructs the translation stage executor.
func NewTranslate(cfg config.Translation, logger *slog.Logger) *Translate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translate{cfg: cfg, logger: logger.With(logging.String(logging.FieldComponent, "stage-translate"))}
}

func (t *Translate) Stage() queue.Stage { return queue.StageTranslating }

func (t *Translate) HealthCheck(ctx context.Context) stage.Health {
	if len(t.cfg.EngineOrder) == 0 {
		return stage.Unhealthy("translate", "no translation engines configured")
	}
	return stage.Healthy("translate")
}

func (t *Translate) Execute(ctx context.Context, req *stage.Request) (string, error) {
	transcribeDir, err := requirePrior(req.Job, t.Stage(), queue.StageTranscribing)
	if err != nil {
		return "", err
	}

	transcript, err := media.ReadTranscript(filepath.Join(transcribeDir, media.TranscriptFile))
	if err != nil {
		return "", services.Wrap(services.KindInternal, string(t.Stage()), "read transcript", err)
	}

	chainCfg := t.cfg
	if len(req.Job.Options.TranslationEngineOrder) > 0 {
		chainCfg.EngineOrder = req.Job.Options.TranslationEngineOrder
	}
	chain, err := translate.BuildChain(chainCfg, t.logger)
	if err != nil {
		return "", services.Wrap(services.KindInternal, string(t.Stage()), "build chain", err)
	}

	targetCode := chainCfg.TargetLanguage
	if req.Job.Options.TargetLanguage != "" {
		targetCode = req.Job.Options.TargetLanguage
	}
	target, err := translate.TargetTag(targetCode)
	if err != nil {
		return "", services.Wrap(services.KindInternal, string(t.Stage()), "parse target language", err)
	}
	req.ReportProgress(0.1)

	translated, attempts, err := chain.Translate(ctx, transcript.Segments, target)
	if err != nil {
		return "", err
	}
	req.ReportProgress(0.9)

	out := media.Transcript{Language: target.String(), Segments: translated}
	if err := media.WriteTranscript(filepath.Join(req.WorkDir, media.TranslatedFile), out); err != nil {
		return "", services.Wrap(services.KindInternal, string(t.Stage()), "write translation", err)
	}
	req.ReportProgress(1)

	engine := ""
	if len(attempts) > 0 {
		engine = attempts[len(attempts)-1].Engine
	}
	t.logger.Info("translation complete",
		logging.String(logging.FieldJobID, req.Job.JobID),
		logging.String(logging.FieldEngine, engine),
		logging.Int("attempts", len(attempts)),
		logging.Int("segments", len(translated)))
	return req.WorkDir, nil
}
