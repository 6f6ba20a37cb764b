package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vietdub/internal/media"
)

// Command is the whisper binary name looked up on PATH.
const Command = "whisper"

// DefaultModel is used when no recognition model is configured.
const DefaultModel = "large-v3-turbo"

// Config captures the runtime settings for recognition.
type Config struct {
	Model  string
	Device string
}

// Service wraps whisper invocations.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a whisper service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Service{cfg: cfg}
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Available reports whether the binary can be found on PATH.
func (s *Service) Available() error {
	if _, err := exec.LookPath(Command); err != nil {
		return fmt.Errorf("%s not found: %w", Command, err)
	}
	return nil
}

// Transcribe runs recognition on an audio file and returns the path of the
// JSON output whisper wrote under outDir. Source language is auto-detected.
// With diarize set the recognizer labels each segment with a speaker.
func (s *Service) Transcribe(ctx context.Context, audioPath, outDir string, diarize bool) (string, error) {
	if audioPath == "" {
		return "", fmt.Errorf("transcribe: audio path required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("transcribe: ensure out dir: %w", err)
	}

	args := []string{
		audioPath,
		"--model", s.cfg.Model,
		"--output_format", "json",
		"--output_dir", outDir,
	}
	if s.cfg.Device != "" {
		args = append(args, "--device", s.cfg.Device)
	}
	if diarize {
		args = append(args, "--diarize")
	}
	if err := s.run(ctx, Command, args...); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outDir, base+".json")
	if _, err := os.Stat(jsonPath); err != nil {
		return "", fmt.Errorf("whisper: expected output missing: %w", err)
	}
	return jsonPath, nil
}

// LoadTranscript parses whisper's JSON output into the shared transcript form.
// A file with no speech segments yields an empty transcript, which is a valid
// result for silent audio.
func LoadTranscript(jsonPath string) (media.Transcript, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return media.Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}

	var payload struct {
		Language string `json:"language"`
		Segments []struct {
			Start   float64 `json:"start"`
			End     float64 `json:"end"`
			Text    string  `json:"text"`
			Speaker string  `json:"speaker"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return media.Transcript{}, fmt.Errorf("parse whisper output: %w", err)
	}

	transcript := media.Transcript{Language: payload.Language}
	for _, seg := range payload.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		transcript.Segments = append(transcript.Segments, media.Segment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    text,
			Speaker: strings.TrimSpace(seg.Speaker),
		})
	}
	return transcript, nil
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
