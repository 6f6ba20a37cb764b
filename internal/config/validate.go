package config

import (
	"errors"
	"fmt"
)

var knownEngines = map[string]struct{}{
	EngineGTX:        {},
	EngineOpenRouter: {},
	EngineOllama:     {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count <= 0 {
		return errors.New("workers.count must be positive")
	}
	if c.Workers.ModelSlots <= 0 {
		return errors.New("workers.model_slots must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.DefaultStageTimeout <= 0 {
		return errors.New("workflow.default_stage_timeout must be positive")
	}
	for name, value := range c.Workflow.StageTimeouts {
		if value <= 0 {
			return fmt.Errorf("workflow.stage_timeouts.%s must be positive", name)
		}
	}
	if c.Workflow.RetryAttempts < 1 {
		return errors.New("workflow.retry_attempts must be at least 1")
	}
	if c.Workflow.RetryBackoffBase <= 0 || c.Workflow.RetryBackoffMax < c.Workflow.RetryBackoffBase {
		return errors.New("workflow retry backoff bounds are invalid")
	}
	if c.Workflow.StoreRetryAttempts < 1 {
		return errors.New("workflow.store_retry_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateTranslation() error {
	if len(c.Translation.EngineOrder) == 0 {
		return errors.New("translation.engine_order must list at least one engine")
	}
	seen := make(map[string]struct{}, len(c.Translation.EngineOrder))
	for _, engine := range c.Translation.EngineOrder {
		if _, ok := knownEngines[engine]; !ok {
			return fmt.Errorf("translation.engine_order contains unknown engine %q", engine)
		}
		if _, dup := seen[engine]; dup {
			return fmt.Errorf("translation.engine_order lists engine %q twice", engine)
		}
		seen[engine] = struct{}{}
	}
	if c.Translation.TargetLanguage == "" {
		return errors.New("translation.target_language must be set")
	}
	if c.Translation.EngineTimeout <= 0 {
		return errors.New("translation.engine_timeout must be positive")
	}
	return nil
}

func (c *Config) validateTTS() error {
	if c.TTS.Voice == "" {
		return errors.New("tts.voice must be set")
	}
	if c.TTS.MaxSpeedFactor <= 0 {
		return errors.New("tts.max_speed_factor must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
