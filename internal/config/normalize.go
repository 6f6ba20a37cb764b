package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)

	order := make([]string, 0, len(c.Translation.EngineOrder))
	for _, engine := range c.Translation.EngineOrder {
		engine = strings.ToLower(strings.TrimSpace(engine))
		if engine != "" {
			order = append(order, engine)
		}
	}
	c.Translation.EngineOrder = order
	c.Translation.TargetLanguage = strings.TrimSpace(c.Translation.TargetLanguage)
	c.Translation.OpenRouter.APIKey = strings.TrimSpace(c.Translation.OpenRouter.APIKey)
	c.Translation.OpenRouter.BaseURL = strings.TrimSpace(c.Translation.OpenRouter.BaseURL)
	c.Translation.OpenRouter.Model = strings.TrimSpace(c.Translation.OpenRouter.Model)
	c.Translation.Ollama.BaseURL = strings.TrimSpace(c.Translation.Ollama.BaseURL)
	c.Translation.Ollama.Model = strings.TrimSpace(c.Translation.Ollama.Model)

	c.TTS.Voice = strings.TrimSpace(c.TTS.Voice)
	c.ASR.Model = strings.TrimSpace(c.ASR.Model)
	c.ASR.Device = strings.ToLower(strings.TrimSpace(c.ASR.Device))
	c.Separation.Model = strings.TrimSpace(c.Separation.Model)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
