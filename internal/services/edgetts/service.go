package edgetts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Command is the edge-tts binary name looked up on PATH.
const Command = "edge-tts"

// DefaultVoice is the Vietnamese voice used when none is configured.
const DefaultVoice = "vi-VN-HoaiMyNeural"

// AlternateVoices are cycled over additional speakers when a job asks for
// per-speaker voices, skipping whichever voice is already the primary.
var AlternateVoices = []string{"vi-VN-NamMinhNeural", "vi-VN-HoaiMyNeural"}

// Service wraps edge-tts invocations.
type Service struct {
	voice         string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates an edge-tts service with a default voice.
func NewService(voice string) *Service {
	if voice == "" {
		voice = DefaultVoice
	}
	return &Service{voice: voice}
}

// Voice returns the configured default voice for logging.
func (s *Service) Voice() string {
	return s.voice
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

// Synthesize renders text with the given voice into dest (mp3). An empty
// voice falls back to the service default.
func (s *Service) Synthesize(ctx context.Context, text, voice, dest string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("synthesize: text required")
	}
	if voice == "" {
		voice = s.voice
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("synthesize: ensure dest dir: %w", err)
	}

	args := []string{
		"--voice", voice,
		"--text", text,
		"--write-media", dest,
	}
	if err := s.run(ctx, Command, args...); err != nil {
		return fmt.Errorf("edge-tts: %w", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		return fmt.Errorf("edge-tts: no audio produced for voice %q", voice)
	}
	return nil
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
