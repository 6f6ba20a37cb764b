package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Command is the yt-dlp binary name looked up on PATH.
const Command = "yt-dlp"

// Service wraps yt-dlp invocations.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a yt-dlp service.
func NewService() *Service {
	return &Service{binary: Command}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Available reports whether the binary can be found on PATH.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return fmt.Errorf("%s not found: %w", s.binary, err)
	}
	return nil
}

// Download fetches the source video into destDir and returns the file path.
// The output container is forced to mp4 so downstream ffmpeg calls see a
// predictable input.
func (s *Service) Download(ctx context.Context, url, destDir string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("download: url required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("download: ensure dest dir: %w", err)
	}

	dest := filepath.Join(destDir, "source.mp4")
	args := []string{
		"--no-playlist",
		"--no-progress",
		"-f", "bestvideo[ext=mp4]+bestaudio/best",
		"--merge-output-format", "mp4",
		"-o", dest,
		url,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}
	if _, err := os.Stat(dest); err != nil {
		return "", fmt.Errorf("yt-dlp: expected output missing: %w", err)
	}
	return dest, nil
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
