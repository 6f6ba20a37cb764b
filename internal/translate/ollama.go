package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"vietdub/internal/config"
	"vietdub/internal/media"
)

// Ollama translates through a local Ollama instance using the generate API.
// Segments go one request at a time; local models drift on batch alignment.
type Ollama struct {
	cfg        config.Ollama
	httpClient *http.Client
}

// OllamaOption customizes the engine.
type OllamaOption func(*Ollama)

// WithOllamaHTTPClient overrides the default HTTP client.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(o *Ollama) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// NewOllama constructs the Ollama engine from config.
func NewOllama(cfg config.Ollama, opts ...OllamaOption) *Ollama {
	engine := &Ollama{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (o *Ollama) Translate(ctx context.Context, segments []media.Segment, target language.Tag) ([]media.Segment, error) {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		if seg.Empty() {
			texts[i] = seg.Text
			continue
		}
		translated, err := o.translateOne(ctx, seg.Text, target)
		if err != nil {
			return nil, fmt.Errorf("ollama segment %d: %w", i, err)
		}
		texts[i] = translated
	}
	return retranslate(segments, texts), nil
}

func (o *Ollama) translateOne(ctx context.Context, text string, target language.Tag) (string, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(o.cfg.BaseURL), "/")
	if baseURL == "" {
		return "", errors.New("base url required")
	}

	prompt := fmt.Sprintf("Translate the following text to %s. Only return the translated text, nothing else:\n\n%s", target.String(), text)
	payload := ollamaGenerateRequest{
		Model:  o.cfg.Model,
		Prompt: prompt,
		Stream: false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	result := strings.TrimSpace(parsed.Response)
	if result == "" {
		return "", errors.New("empty response")
	}
	return stripQuotes(result), nil
}
