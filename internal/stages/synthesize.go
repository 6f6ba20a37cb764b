package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vietdub/internal/config"
	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/queue"
	"vietdub/internal/services"
	"vietdub/internal/services/edgetts"
	"vietdub/internal/services/ffmpeg"
	"vietdub/internal/stage"
)

// gapThresholdSeconds is the smallest inter-segment gap worth padding with
// silence; anything shorter is absorbed into the neighboring clip.
const gapThresholdSeconds = 0.05

// Synthesize renders each translated segment to speech and assembles the
// full dub track on the original timeline: silence fills the gaps between
// segments, and clips that run longer than their slot are time-compressed
// up to the configured speed bound. It also renders the subtitle file from
// the translated text.
type Synthesize struct {
	cfg    config.TTS
	logger *slog.Logger
	tts    *edgetts.Service
	ffmpeg *ffmpeg.Service
}

// NewSynthesize constructs the synthesis stage executor.
func NewSynthesize(cfg config.TTS, tts *edgetts.Service, ff *ffmpeg.Service, logger *slog.Logger) *Synthesize {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesize{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "stage-synthesize")),
		tts:    tts,
		ffmpeg: ff,
	}
}

func (s *Synthesize) Stage() queue.Stage { return queue.StageSynthesizing }

func (s *Synthesize) HealthCheck(ctx context.Context) stage.Health {
	if err := s.tts.Available(); err != nil {
		return stage.Unhealthy("synthesize", err.Error())
	}
	if err := s.ffmpeg.Available(); err != nil {
		return stage.Unhealthy("synthesize", err.Error())
	}
	return stage.Healthy("synthesize")
}

func (s *Synthesize) Execute(ctx context.Context, req *stage.Request) (string, error) {
	translateDir, err := requirePrior(req.Job, s.Stage(), queue.StageTranslating)
	if err != nil {
		return "", err
	}
	transcript, err := media.ReadTranscript(filepath.Join(translateDir, media.TranslatedFile))
	if err != nil {
		return "", services.Wrap(services.KindInternal, string(s.Stage()), "read translation", err)
	}

	clipsDir := filepath.Join(req.WorkDir, "clips")
	if err := os.MkdirAll(clipsDir, 0o755); err != nil {
		return "", services.Wrap(services.KindInternal, string(s.Stage()), "create clips dir", err)
	}

	voice := req.Job.Options.VoiceID
	maxSpeed := s.cfg.MaxSpeedFactor
	if req.Job.Options.SpeedFactor > 1 {
		maxSpeed = req.Job.Options.SpeedFactor
	}
	var speakerVoices map[string]string
	if req.Job.Options.IsMultiSpeaker {
		primary := voice
		if primary == "" {
			primary = s.tts.Voice()
		}
		speakerVoices = voiceAssignments(primary, transcript.Speakers())
	}

	var pieces []string
	cursor := 0.0
	total := len(transcript.Segments)
	for i, seg := range transcript.Segments {
		if err := ctx.Err(); err != nil {
			return "", services.Wrap(services.KindCancelled, string(s.Stage()), "synthesize", err)
		}
		if seg.Empty() {
			continue
		}

		if gap := seg.Start - cursor; gap > gapThresholdSeconds {
			silencePath := filepath.Join(clipsDir, fmt.Sprintf("gap_%04d.wav", i))
			if err := s.ffmpeg.Silence(ctx, silencePath, gap); err != nil {
				return "", classifyToolError(s.Stage(), "render silence", services.KindInternal, err)
			}
			pieces = append(pieces, silencePath)
			cursor += gap
		}

		segVoice := voice
		if v, ok := speakerVoices[seg.Speaker]; ok {
			segVoice = v
		}
		clipPath, clipDuration, err := s.renderClip(ctx, clipsDir, i, seg, segVoice, maxSpeed)
		if err != nil {
			return "", err
		}
		pieces = append(pieces, clipPath)
		cursor += clipDuration

		req.ReportProgress(float64(i+1) / float64(total) * 0.9)
	}

	dubbedPath := filepath.Join(req.WorkDir, media.DubbedAudioFile)
	if len(pieces) == 0 {
		// Silent audio yields an empty translation. The deliverable is
		// still a full-length track, just with nothing spoken on it.
		cursor, err = s.renderSilentTrack(ctx, req, dubbedPath)
		if err != nil {
			return "", err
		}
	} else if err := s.ffmpeg.ConcatWav(ctx, pieces, dubbedPath); err != nil {
		return "", classifyToolError(s.Stage(), "assemble dub track", services.KindInternal, err)
	}

	subtitlePath := filepath.Join(req.WorkDir, media.SubtitleFile)
	if err := media.WriteSRT(subtitlePath, transcript.Segments); err != nil {
		return "", services.Wrap(services.KindInternal, string(s.Stage()), "write subtitles", err)
	}
	req.ReportProgress(1)

	s.logger.Info("dub track assembled",
		logging.String(logging.FieldJobID, req.Job.JobID),
		logging.Int("segments", total),
		logging.Float64("duration_seconds", cursor))
	return req.WorkDir, nil
}

// renderSilentTrack writes a dub track of pure silence matching the source
// audio's length, so downstream mixing and muxing see a normal input.
func (s *Synthesize) renderSilentTrack(ctx context.Context, req *stage.Request, dest string) (float64, error) {
	downloadDir, err := requirePrior(req.Job, s.Stage(), queue.StageDownloading)
	if err != nil {
		return 0, err
	}
	duration, err := s.ffmpeg.DurationSeconds(ctx, filepath.Join(downloadDir, media.SourceAudioFile))
	if err != nil {
		return 0, classifyToolError(s.Stage(), "measure source audio", services.KindInternal, err)
	}
	if err := s.ffmpeg.Silence(ctx, dest, duration); err != nil {
		return 0, classifyToolError(s.Stage(), "render silent track", services.KindInternal, err)
	}
	return duration, nil
}

// voiceAssignments maps each labeled speaker to a voice. The first speaker
// and any unlabeled segment keep the primary voice; later speakers cycle
// through the alternates, skipping the primary so adjacent speakers differ.
func voiceAssignments(primary string, speakers []string) map[string]string {
	pool := make([]string, 0, len(edgetts.AlternateVoices))
	for _, v := range edgetts.AlternateVoices {
		if v != primary {
			pool = append(pool, v)
		}
	}
	assigned := make(map[string]string, len(speakers))
	for i, speaker := range speakers {
		if i == 0 || len(pool) == 0 {
			assigned[speaker] = primary
			continue
		}
		assigned[speaker] = pool[(i-1)%len(pool)]
	}
	return assigned
}

// renderClip synthesizes one segment, normalizes it to the dub sample rate,
// and compresses it into its timeline slot when it runs long.
func (s *Synthesize) renderClip(ctx context.Context, clipsDir string, index int, seg media.Segment, voice string, maxSpeed float64) (string, float64, error) {
	mp3Path := filepath.Join(clipsDir, fmt.Sprintf("seg_%04d.mp3", index))
	if err := s.tts.Synthesize(ctx, seg.Text, voice, mp3Path); err != nil {
		return "", 0, classifyToolError(s.Stage(), "synthesize segment", services.KindVoiceUnavailable, err)
	}

	wavPath := filepath.Join(clipsDir, fmt.Sprintf("seg_%04d.wav", index))
	if err := s.ffmpeg.ToWav(ctx, mp3Path, wavPath); err != nil {
		return "", 0, classifyToolError(s.Stage(), "normalize clip", services.KindInternal, err)
	}

	clipDuration, err := s.ffmpeg.DurationSeconds(ctx, wavPath)
	if err != nil {
		return "", 0, classifyToolError(s.Stage(), "measure clip", services.KindInternal, err)
	}

	slot := seg.End - seg.Start
	if slot > 0 && clipDuration > slot {
		factor := clipDuration / slot
		if factor > maxSpeed {
			factor = maxSpeed
		}
		if factor > 1.01 {
			fittedPath := filepath.Join(clipsDir, fmt.Sprintf("seg_%04d_fit.wav", index))
			if err := s.ffmpeg.Atempo(ctx, wavPath, fittedPath, factor); err != nil {
				return "", 0, classifyToolError(s.Stage(), "fit clip", services.KindInternal, err)
			}
			wavPath = fittedPath
			clipDuration /= factor
		}
	}
	return wavPath, clipDuration, nil
}
