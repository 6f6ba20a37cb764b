package translate

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"

	"vietdub/internal/config"
)

// BuildChain assembles the fallback chain from configuration. Engine order
// comes straight from translation.engine_order; unknown names are a config
// bug and fail construction.
func BuildChain(cfg config.Translation, logger *slog.Logger) (*Chain, error) {
	engines := make([]Engine, 0, len(cfg.EngineOrder))
	for _, name := range cfg.EngineOrder {
		switch name {
		case config.EngineGTX:
			engines = append(engines, NewGTX())
		case config.EngineOpenRouter:
			engines = append(engines, NewOpenRouter(cfg.OpenRouter))
		case config.EngineOllama:
			engines = append(engines, NewOllama(cfg.Ollama))
		default:
			return nil, fmt.Errorf("unknown translation engine %q", name)
		}
	}
	timeout := time.Duration(cfg.EngineTimeout) * time.Second
	return NewChain(engines, timeout, logger), nil
}

// TargetTag parses a configured language code into a language tag.
func TargetTag(code string) (language.Tag, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, fmt.Errorf("parse target language %q: %w", code, err)
	}
	return tag, nil
}
