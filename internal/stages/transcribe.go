package stages

import (
	"context"
	"log/slog"
	"path/filepath"

	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/queue"
	"vietdub/internal/services"
	"vietdub/internal/services/whisper"
	"vietdub/internal/stage"
)

// Transcribe runs speech recognition against the separated vocal stem and
// normalizes the recognizer's output into the shared transcript format.
type Transcribe struct {
	logger  *slog.Logger
	whisper *whisper.Service
}

// NewTranscribe constructs the transcription stage executor.
func NewTranscribe(svc *whisper.Service, logger *slog.Logger) *Transcribe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcribe{
		logger:  logger.With(logging.String(logging.FieldComponent, "stage-transcribe")),
		whisper: svc,
	}
}

func (t *Transcribe) Stage() queue.Stage { return queue.StageTranscribing }

func (t *Transcribe) HealthCheck(ctx context.Context) stage.Health {
	if err := t.whisper.Available(); err != nil {
		return stage.Unhealthy("transcribe", err.Error())
	}
	return stage.Healthy("transcribe")
}

func (t *Transcribe) Execute(ctx context.Context, req *stage.Request) (string, error) {
	separateDir, err := requirePrior(req.Job, t.Stage(), queue.StageSeparating)
	if err != nil {
		return "", err
	}
	vocalsPath := filepath.Join(separateDir, media.VocalsFile)

	jsonPath, err := t.whisper.Transcribe(ctx, vocalsPath, req.WorkDir, req.Job.Options.IsMultiSpeaker)
	if err != nil {
		return "", classifyToolError(t.Stage(), "transcribe vocals", services.KindRecognitionFailure, err)
	}
	req.ReportProgress(0.8)

	transcript, err := whisper.LoadTranscript(jsonPath)
	if err != nil {
		return "", services.Wrap(services.KindRecognitionFailure, string(t.Stage()), "load transcript", err)
	}

	normalized := filepath.Join(req.WorkDir, media.TranscriptFile)
	if err := media.WriteTranscript(normalized, transcript); err != nil {
		return "", services.Wrap(services.KindInternal, string(t.Stage()), "write transcript", err)
	}
	req.ReportProgress(1)

	t.logger.Info("transcription complete",
		logging.String(logging.FieldJobID, req.Job.JobID),
		logging.String("language", transcript.Language),
		logging.Int("segments", len(transcript.Segments)))
	return req.WorkDir, nil
}
