package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"vietdub/internal/queue"
)

const (
	// Command is the ffmpeg binary name looked up on PATH.
	Command = "ffmpeg"
	// ProbeCommand is the ffprobe binary name looked up on PATH.
	ProbeCommand = "ffprobe"

	// DubSampleRate is the sample rate every synthesized clip is normalized
	// to before concatenation.
	DubSampleRate = 24000
)

// Service wraps ffmpeg and ffprobe invocations.
type Service struct {
	binary        string
	probeBinary   string
	commandRunner func(ctx context.Context, name string, args ...string) error
	outputRunner  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates an ffmpeg service.
func NewService() *Service {
	return &Service{binary: Command, probeBinary: ProbeCommand}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// WithOutputRunner sets a custom output-capturing runner (for testing).
func (s *Service) WithOutputRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.outputRunner = runner
}

// Available reports whether both binaries can be found on PATH.
func (s *Service) Available() error {
	for _, binary := range []string{s.binary, s.probeBinary} {
		if _, err := exec.LookPath(binary); err != nil {
			return fmt.Errorf("%s not found: %w", binary, err)
		}
	}
	return nil
}

// ExtractAudio pulls the audio track from a video into a stereo 44.1kHz WAV,
// the input format the separation model expects.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	args := []string{
		"-y", "-i", source,
		"-vn", "-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2",
		dest,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	return nil
}

// ToWav converts any audio clip to mono WAV at the dub sample rate so clips
// from different sources concatenate cleanly.
func (s *Service) ToWav(ctx context.Context, source, dest string) error {
	args := []string{
		"-y", "-i", source,
		"-acodec", "pcm_s16le", "-ar", strconv.Itoa(DubSampleRate), "-ac", "1",
		dest,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("to wav: %w", err)
	}
	return nil
}

// Silence writes a mono WAV of the given duration at the dub sample rate.
func (s *Service) Silence(ctx context.Context, dest string, seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=mono", DubSampleRate),
		"-t", fmt.Sprintf("%.3f", seconds),
		"-acodec", "pcm_s16le",
		dest,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("silence: %w", err)
	}
	return nil
}

// Atempo time-stretches a clip by the given factor. ffmpeg's atempo filter
// only accepts factors in [0.5, 100]; values outside are clamped.
func (s *Service) Atempo(ctx context.Context, source, dest string, factor float64) error {
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 100 {
		factor = 100
	}
	args := []string{
		"-y", "-i", source,
		"-filter:a", fmt.Sprintf("atempo=%.4f", factor),
		dest,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("atempo: %w", err)
	}
	return nil
}

// ConcatWav joins clips into one WAV using the concat demuxer. All inputs
// must share the codec parameters ToWav and Silence produce.
func (s *Service) ConcatWav(ctx context.Context, inputs []string, dest string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no inputs")
	}

	var sb strings.Builder
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return fmt.Errorf("concat: resolve %s: %w", input, err)
		}
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}

	listPath := dest + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("concat: write list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		dest,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("concat: %w", err)
	}
	return nil
}

// Mix overlays the dub track on the instrumental bed, keeping the dub
// track's duration.
func (s *Service) Mix(ctx context.Context, voice, background, dest string) error {
	args := []string{
		"-y",
		"-i", voice,
		"-i", background,
		"-filter_complex", "[0:a][1:a]amix=inputs=2:duration=first:dropout_transition=2[out]",
		"-map", "[out]",
		dest,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("mix: %w", err)
	}
	return nil
}

// MuxSpec describes the final container assembly.
type MuxSpec struct {
	Video    string
	Audio    string
	Subtitle string
	// Resolution optionally downscales the video track. Empty keeps the
	// source resolution and copies the video stream untouched.
	Resolution queue.Resolution
	Output     string
}

// Mux replaces the video's audio with the dubbed track, optionally embedding
// soft subtitles and downscaling.
func (s *Service) Mux(ctx context.Context, spec MuxSpec) error {
	if spec.Video == "" || spec.Audio == "" || spec.Output == "" {
		return fmt.Errorf("mux: video, audio, and output required")
	}

	args := []string{"-y", "-i", spec.Video, "-i", spec.Audio}
	if spec.Subtitle != "" {
		args = append(args, "-i", spec.Subtitle)
	}
	args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	if spec.Subtitle != "" {
		args = append(args, "-map", "2:s:0", "-c:s", "mov_text")
	}

	if height, ok := scaleHeight(spec.Resolution); ok {
		args = append(args,
			"-vf", fmt.Sprintf("scale=-2:%d", height),
			"-c:v", "libx264",
		)
	} else {
		args = append(args, "-c:v", "copy")
	}
	args = append(args, "-c:a", "aac", "-shortest", spec.Output)

	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("mux: %w", err)
	}
	return nil
}

func scaleHeight(res queue.Resolution) (int, bool) {
	switch res {
	case queue.Resolution720p:
		return 720, true
	case queue.Resolution1080p:
		return 1080, true
	case queue.Resolution4K:
		return 2160, true
	default:
		return 0, false
	}
}

// ExtractSubtitle pulls the first subtitle stream out of a container as SRT.
func (s *Service) ExtractSubtitle(ctx context.Context, source, dest string) error {
	args := []string{
		"-y", "-i", source,
		"-map", "0:s:0",
		"-c:s", "srt",
		dest,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("extract subtitle: %w", err)
	}
	return nil
}

// Info is the subset of probe output the pipeline cares about.
type Info struct {
	DurationSeconds float64
	HasVideo        bool
	HasAudio        bool
	HasSubtitle     bool
}

// Probe inspects a media file's container and streams.
func (s *Service) Probe(ctx context.Context, path string) (Info, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	output, err := s.runOutput(ctx, s.probeBinary, args...)
	if err != nil {
		return Info{}, fmt.Errorf("probe: %w", err)
	}

	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return Info{}, fmt.Errorf("probe: parse output: %w", err)
	}

	info := Info{}
	if payload.Format.Duration != "" {
		if seconds, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil {
			info.DurationSeconds = seconds
		}
	}
	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "video":
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		case "subtitle":
			info.HasSubtitle = true
		}
	}
	return info, nil
}

// DurationSeconds returns a media file's duration.
func (s *Service) DurationSeconds(ctx context.Context, path string) (float64, error) {
	info, err := s.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.DurationSeconds, nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (s *Service) runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.outputRunner != nil {
		return s.outputRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}
