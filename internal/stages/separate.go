package stages

import (
	"context"
	"log/slog"
	"path/filepath"

	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/queue"
	"vietdub/internal/services"
	"vietdub/internal/services/demucs"
	"vietdub/internal/stage"
)

// Separate splits the extracted audio into vocal and instrumental stems so
// synthesis can later rebuild the soundtrack with the original music bed.
type Separate struct {
	logger *slog.Logger
	demucs *demucs.Service
}

// NewSeparate constructs the separation stage executor.
func NewSeparate(svc *demucs.Service, logger *slog.Logger) *Separate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Separate{
		logger: logger.With(logging.String(logging.FieldComponent, "stage-separate")),
		demucs: svc,
	}
}

func (s *Separate) Stage() queue.Stage { return queue.StageSeparating }

func (s *Separate) HealthCheck(ctx context.Context) stage.Health {
	if err := s.demucs.Available(); err != nil {
		return stage.Unhealthy("separate", err.Error())
	}
	return stage.Healthy("separate")
}

func (s *Separate) Execute(ctx context.Context, req *stage.Request) (string, error) {
	downloadDir, err := requirePrior(req.Job, s.Stage(), queue.StageDownloading)
	if err != nil {
		return "", err
	}
	audioPath := filepath.Join(downloadDir, media.SourceAudioFile)

	result, err := s.demucs.Separate(ctx, audioPath, req.WorkDir)
	if err != nil {
		return "", classifyToolError(s.Stage(), "separate stems", services.KindModelUnavailable, err)
	}
	req.ReportProgress(1)

	s.logger.Info("stems separated",
		logging.String(logging.FieldJobID, req.Job.JobID),
		logging.String("model", s.demucs.Model()),
		logging.String("vocals", result.VocalsPath))
	return req.WorkDir, nil
}
