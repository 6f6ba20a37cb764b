package config

const (
	defaultStagingDir          = "~/.local/share/vietdub/staging"
	defaultOutputDir           = "~/.local/share/vietdub/output"
	defaultLogDir              = "~/.local/share/vietdub/logs"
	defaultAPIBind             = "127.0.0.1:7833"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultWorkerCount         = 2
	defaultModelSlots          = 1
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultStageTimeoutSeconds = 1800
	defaultRetryAttempts       = 2
	defaultRetryBackoffBase    = 2
	defaultRetryBackoffMax     = 60
	defaultStoreRetryAttempts  = 3
	defaultTargetLanguage      = "vi"
	defaultEngineTimeout       = 120
	defaultOpenRouterBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterModel     = "google/gemini-3-flash-preview"
	defaultOllamaBaseURL       = "http://localhost:11434"
	defaultOllamaModel         = "llama3:latest"
	defaultVoice               = "vi-VN-HoaiMyNeural"
	defaultMaxSpeedFactor      = 1.35
	defaultASRModel            = "large-v3-turbo"
	defaultASRDevice           = "cpu"
	defaultSeparationModel     = "htdemucs"
)

// EngineGTX, EngineOpenRouter, and EngineOllama are the translation engine
// names accepted in translation.engine_order.
const (
	EngineGTX        = "gtx_free"
	EngineOpenRouter = "openrouter"
	EngineOllama     = "ollama"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workers: Workers{
			Count:      defaultWorkerCount,
			ModelSlots: defaultModelSlots,
		},
		Workflow: Workflow{
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			DefaultStageTimeout: defaultStageTimeoutSeconds,
			RetryAttempts:       defaultRetryAttempts,
			RetryBackoffBase:    defaultRetryBackoffBase,
			RetryBackoffMax:     defaultRetryBackoffMax,
			StoreRetryAttempts:  defaultStoreRetryAttempts,
		},
		Translation: Translation{
			EngineOrder:    []string{EngineGTX, EngineOpenRouter, EngineOllama},
			TargetLanguage: defaultTargetLanguage,
			EngineTimeout:  defaultEngineTimeout,
			OpenRouter: OpenRouter{
				BaseURL: defaultOpenRouterBaseURL,
				Model:   defaultOpenRouterModel,
			},
			Ollama: Ollama{
				BaseURL: defaultOllamaBaseURL,
				Model:   defaultOllamaModel,
			},
		},
		TTS: TTS{
			Voice:          defaultVoice,
			MaxSpeedFactor: defaultMaxSpeedFactor,
		},
		ASR: ASR{
			Model:  defaultASRModel,
			Device: defaultASRDevice,
		},
		Separation: Separation{
			Model: defaultSeparationModel,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
