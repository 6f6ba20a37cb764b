package stages

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"vietdub/internal/config"
	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/queue"
	"vietdub/internal/services"
	"vietdub/internal/services/ffmpeg"
	"vietdub/internal/stage"
)

// Mux assembles the final deliverable: the dub track mixed over the
// instrumental bed, remuxed with the original video, optionally downscaled
// and carrying soft subtitles. The finished file lands in the output
// directory and its path is the stage artifact.
type Mux struct {
	paths  config.Paths
	logger *slog.Logger
	ffmpeg *ffmpeg.Service
}

// NewMux constructs the mux stage executor.
func NewMux(paths config.Paths, ff *ffmpeg.Service, logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mux{
		paths:  paths,
		logger: logger.With(logging.String(logging.FieldComponent, "stage-mux")),
		ffmpeg: ff,
	}
}

func (m *Mux) Stage() queue.Stage { return queue.StageMuxing }

func (m *Mux) HealthCheck(ctx context.Context) stage.Health {
	if err := m.ffmpeg.Available(); err != nil {
		return stage.Unhealthy("mux", err.Error())
	}
	return stage.Healthy("mux")
}

func (m *Mux) Execute(ctx context.Context, req *stage.Request) (string, error) {
	downloadDir, err := requirePrior(req.Job, m.Stage(), queue.StageDownloading)
	if err != nil {
		return "", err
	}
	separateDir, err := requirePrior(req.Job, m.Stage(), queue.StageSeparating)
	if err != nil {
		return "", err
	}
	synthDir, err := requirePrior(req.Job, m.Stage(), queue.StageSynthesizing)
	if err != nil {
		return "", err
	}

	videoPath := filepath.Join(downloadDir, media.SourceVideoFile)
	dubbedPath := filepath.Join(synthDir, media.DubbedAudioFile)

	// Mix the dub over the instrumental bed when the stem survived staging.
	audioPath := dubbedPath
	instrumentalPath := filepath.Join(separateDir, media.InstrumentalFile)
	if _, err := os.Stat(instrumentalPath); err == nil {
		mixedPath := filepath.Join(req.WorkDir, "mixed.wav")
		if err := m.ffmpeg.Mix(ctx, dubbedPath, instrumentalPath, mixedPath); err != nil {
			return "", classifyToolError(m.Stage(), "mix soundtrack", services.KindMuxFailure, err)
		}
		audioPath = mixedPath
	}
	req.ReportProgress(0.5)

	subtitlePath := ""
	if req.Job.Options.AddSubtitles {
		candidate := filepath.Join(synthDir, media.SubtitleFile)
		if _, err := os.Stat(candidate); err == nil {
			subtitlePath = candidate
		}
	}

	if err := os.MkdirAll(m.paths.OutputDir, 0o755); err != nil {
		return "", services.Wrap(services.KindInternal, string(m.Stage()), "ensure output dir", err)
	}
	outputPath := filepath.Join(m.paths.OutputDir, media.OutputName(req.Job.JobID))
	spec := ffmpeg.MuxSpec{
		Video:      videoPath,
		Audio:      audioPath,
		Subtitle:   subtitlePath,
		Resolution: req.Job.Options.Resolution,
		Output:     outputPath,
	}
	if err := m.ffmpeg.Mux(ctx, spec); err != nil {
		return "", classifyToolError(m.Stage(), "mux container", services.KindMuxFailure, err)
	}
	req.ReportProgress(0.9)

	info, err := m.ffmpeg.Probe(ctx, outputPath)
	if err != nil || !info.HasVideo || !info.HasAudio {
		return "", services.NewError(
			services.KindMuxFailure,
			string(m.Stage()),
			"validate output",
			"muxed file failed container validation",
		)
	}
	req.ReportProgress(1)

	m.logger.Info("deliverable ready",
		logging.String(logging.FieldJobID, req.Job.JobID),
		logging.String("output", outputPath),
		logging.Float64("duration_seconds", info.DurationSeconds))
	return outputPath, nil
}
