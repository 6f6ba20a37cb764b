package stages

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/queue"
	"vietdub/internal/services"
	"vietdub/internal/services/ffmpeg"
	"vietdub/internal/services/ytdlp"
	"vietdub/internal/stage"
)

// Download fetches the source video and extracts its audio track. Local file
// paths are accepted alongside URLs so pre-downloaded material can be fed
// straight into the pipeline.
type Download struct {
	logger     *slog.Logger
	downloader *ytdlp.Service
	ffmpeg     *ffmpeg.Service
}

// NewDownload constructs the download stage executor.
func NewDownload(downloader *ytdlp.Service, ff *ffmpeg.Service, logger *slog.Logger) *Download {
	if logger == nil {
		logger = slog.Default()
	}
	return &Download{
		logger:     logger.With(logging.String(logging.FieldComponent, "stage-download")),
		downloader: downloader,
		ffmpeg:     ff,
	}
}

func (d *Download) Stage() queue.Stage { return queue.StageDownloading }

func (d *Download) HealthCheck(ctx context.Context) stage.Health {
	if err := d.downloader.Available(); err != nil {
		return stage.Unhealthy("download", err.Error())
	}
	if err := d.ffmpeg.Available(); err != nil {
		return stage.Unhealthy("download", err.Error())
	}
	return stage.Healthy("download")
}

func (d *Download) Execute(ctx context.Context, req *stage.Request) (string, error) {
	input := strings.TrimSpace(req.Job.Input)

	var videoPath string
	if isLocalFile(input) {
		copied := filepath.Join(req.WorkDir, media.SourceVideoFile)
		if err := copyFile(input, copied); err != nil {
			return "", services.Wrap(services.KindSourceUnavailable, string(d.Stage()), "copy source", err)
		}
		videoPath = copied
	} else {
		downloaded, err := d.downloader.Download(ctx, input, req.WorkDir)
		if err != nil {
			return "", classifyToolError(d.Stage(), "download source", services.KindSourceUnavailable, err)
		}
		videoPath = downloaded
	}
	req.ReportProgress(0.6)

	info, err := d.ffmpeg.Probe(ctx, videoPath)
	if err != nil {
		return "", classifyToolError(d.Stage(), "probe source", services.KindUnsupportedFormat, err)
	}
	if !info.HasVideo || !info.HasAudio {
		return "", services.NewError(
			services.KindUnsupportedFormat,
			string(d.Stage()),
			"probe source",
			"source is missing a video or audio stream",
		)
	}
	req.ReportProgress(0.7)

	audioPath := filepath.Join(req.WorkDir, media.SourceAudioFile)
	if err := d.ffmpeg.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return "", classifyToolError(d.Stage(), "extract audio", services.KindUnsupportedFormat, err)
	}
	req.ReportProgress(0.9)

	// A source subtitle track is carried along when present. Extraction
	// failure is not fatal; the pipeline generates its own subtitles later.
	if info.HasSubtitle {
		subPath := filepath.Join(req.WorkDir, media.SourceSubFile)
		if err := d.ffmpeg.ExtractSubtitle(ctx, videoPath, subPath); err != nil {
			d.logger.Warn("subtitle extraction failed",
				logging.String(logging.FieldJobID, req.Job.JobID),
				logging.Error(err))
		}
	}
	req.ReportProgress(1)

	d.logger.Info("source ready",
		logging.String(logging.FieldJobID, req.Job.JobID),
		logging.Float64("duration_seconds", info.DurationSeconds))
	return req.WorkDir, nil
}

func isLocalFile(input string) bool {
	if strings.Contains(input, "://") {
		return false
	}
	info, err := os.Stat(input)
	return err == nil && !info.IsDir()
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
