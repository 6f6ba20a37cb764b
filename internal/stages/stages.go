package stages

import (
	"log/slog"

	"vietdub/internal/config"
	"vietdub/internal/queue"
	"vietdub/internal/services/demucs"
	"vietdub/internal/services/edgetts"
	"vietdub/internal/services/ffmpeg"
	"vietdub/internal/services/whisper"
	"vietdub/internal/services/ytdlp"
	"vietdub/internal/stage"
)

// Build wires every stage executor with its tool clients and returns them
// keyed by pipeline stage.
func Build(cfg *config.Config, logger *slog.Logger) map[queue.Stage]stage.Executor {
	ff := ffmpeg.NewService()
	downloader := ytdlp.NewService()
	separator := demucs.NewService(cfg.Separation.Model)
	recognizer := whisper.NewService(whisper.Config{Model: cfg.ASR.Model, Device: cfg.ASR.Device})
	tts := edgetts.NewService(cfg.TTS.Voice)

	return map[queue.Stage]stage.Executor{
		queue.StageDownloading:  NewDownload(downloader, ff, logger),
		queue.StageSeparating:   NewSeparate(separator, logger),
		queue.StageTranscribing: NewTranscribe(recognizer, logger),
		queue.StageTranslating:  NewTranslate(cfg.Translation, logger),
		queue.StageSynthesizing: NewSynthesize(cfg.TTS, tts, ff, logger),
		queue.StageMuxing:       NewMux(cfg.Paths, ff, logger),
	}
}
