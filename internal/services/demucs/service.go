package demucs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Command is the demucs binary name looked up on PATH.
const Command = "demucs"

// DefaultModel is used when no separation model is configured.
const DefaultModel = "htdemucs"

// Service wraps demucs invocations.
type Service struct {
	model         string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a demucs service for the given model.
func NewService(model string) *Service {
	if model == "" {
		model = DefaultModel
	}
	return &Service{model: model}
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.model
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

// Result holds the two stems separation produces.
type Result struct {
	VocalsPath       string
	InstrumentalPath string
}

// Separate splits an audio file into vocals and instrumental stems under
// outDir. Demucs writes to <outDir>/<model>/<basename>/{vocals,no_vocals}.wav;
// the stems are moved up so callers see a flat layout.
func (s *Service) Separate(ctx context.Context, audioPath, outDir string) (Result, error) {
	var result Result
	if audioPath == "" {
		return result, fmt.Errorf("separate: audio path required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return result, fmt.Errorf("separate: ensure out dir: %w", err)
	}

	args := []string{
		"--two-stems", "vocals",
		"-n", s.model,
		"-o", outDir,
		audioPath,
	}
	if err := s.run(ctx, Command, args...); err != nil {
		return result, fmt.Errorf("demucs: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	stemDir := filepath.Join(outDir, s.model, base)

	result.VocalsPath = filepath.Join(outDir, "vocals.wav")
	result.InstrumentalPath = filepath.Join(outDir, "instrumental.wav")

	moves := []struct{ from, to string }{
		{filepath.Join(stemDir, "vocals.wav"), result.VocalsPath},
		{filepath.Join(stemDir, "no_vocals.wav"), result.InstrumentalPath},
	}
	for _, move := range moves {
		if err := os.Rename(move.from, move.to); err != nil {
			return Result{}, fmt.Errorf("demucs: collect stem: %w", err)
		}
	}
	_ = os.RemoveAll(filepath.Join(outDir, s.model))

	return result, nil
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
