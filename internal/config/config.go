package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Workers bounds pipeline concurrency.
type Workers struct {
	// Count is the number of jobs that may run simultaneously.
	Count int `toml:"count"`
	// ModelSlots caps concurrent model-bound stages across all jobs.
	ModelSlots int `toml:"model_slots"`
}

// Workflow contains orchestrator timing and retry policy.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	// StageTimeouts maps stage names to per-attempt timeouts in seconds.
	// Stages not listed fall back to DefaultStageTimeout.
	StageTimeouts       map[string]int `toml:"stage_timeouts"`
	DefaultStageTimeout int            `toml:"default_stage_timeout"`
	RetryAttempts       int            `toml:"retry_attempts"`
	RetryBackoffBase    int            `toml:"retry_backoff_base"`
	RetryBackoffMax     int            `toml:"retry_backoff_max"`
	StoreRetryAttempts  int            `toml:"store_retry_attempts"`
}

// OpenRouter contains connection settings for the OpenRouter translation engine.
type OpenRouter struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	Referer string `toml:"referer"`
	Title   string `toml:"title"`
}

// Ollama contains connection settings for a local Ollama instance.
type Ollama struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// Translation configures the fallback chain of translation engines.
type Translation struct {
	// EngineOrder lists engine names in the order the chain tries them.
	EngineOrder    []string   `toml:"engine_order"`
	TargetLanguage string     `toml:"target_language"`
	EngineTimeout  int        `toml:"engine_timeout"`
	OpenRouter     OpenRouter `toml:"openrouter"`
	Ollama         Ollama     `toml:"ollama"`
}

// TTS contains speech synthesis settings.
type TTS struct {
	Voice string `toml:"voice"`
	// MaxSpeedFactor bounds time-stretching applied to fit original segment
	// durations. Values at or below 1.0 disable stretching.
	MaxSpeedFactor float64 `toml:"max_speed_factor"`
}

// ASR contains speech recognition settings.
type ASR struct {
	Model  string `toml:"model"`
	Device string `toml:"device"`
}

// Separation contains vocal/instrument separation settings.
type Separation struct {
	Model string `toml:"model"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vietdub.
//
// Configuration sections by subsystem:
//   - Paths: staging/output/log directories and API bind address
//   - Workers: job concurrency and model resource slots
//   - Workflow: polling, heartbeats, stage timeouts, retry policy
//   - Translation: fallback engine order and per-engine connection settings
//   - TTS: voice selection and re-timing bounds
//   - ASR: speech recognition model settings
//   - Separation: vocal separation model settings
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Workers     Workers     `toml:"workers"`
	Workflow    Workflow    `toml:"workflow"`
	Translation Translation `toml:"translation"`
	TTS         TTS         `toml:"tts"`
	ASR         ASR         `toml:"asr"`
	Separation  Separation  `toml:"separation"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vietdub/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vietdub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StageTimeout returns the per-attempt timeout for a stage in seconds.
func (c *Config) StageTimeout(stageName string) int {
	if value, ok := c.Workflow.StageTimeouts[stageName]; ok && value > 0 {
		return value
	}
	return c.Workflow.DefaultStageTimeout
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
