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

const openRouterSystemPrompt = "You are a professional translator. Translate accurately and naturally. " +
	"Respond with JSON only: an object with a \"translations\" array holding one translated string per input line, in order."

// OpenRouter translates via the OpenRouter chat completion API. The whole
// batch goes in one request so segment alignment is the model's job; the
// response is rejected when counts do not match.
type OpenRouter struct {
	cfg        config.OpenRouter
	httpClient *http.Client
}

// OpenRouterOption customizes the engine.
type OpenRouterOption func(*OpenRouter)

// WithOpenRouterHTTPClient overrides the default HTTP client.
func WithOpenRouterHTTPClient(client *http.Client) OpenRouterOption {
	return func(o *OpenRouter) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// NewOpenRouter constructs the OpenRouter engine from config.
func NewOpenRouter(cfg config.OpenRouter, opts ...OpenRouterOption) *OpenRouter {
	engine := &OpenRouter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func (o *OpenRouter) Name() string { return "openrouter" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenRouter) Translate(ctx context.Context, segments []media.Segment, target language.Tag) ([]media.Segment, error) {
	if strings.TrimSpace(o.cfg.APIKey) == "" {
		return nil, errors.New("openrouter: api key required")
	}

	lines := make([]string, len(segments))
	for i, seg := range segments {
		lines[i] = strings.ReplaceAll(strings.TrimSpace(seg.Text), "\n", " ")
	}

	userPrompt := fmt.Sprintf(
		"Translate the following %d lines to %s. Return one translation per line, preserving order.\n\n%s",
		len(lines),
		target.String(),
		strings.Join(lines, "\n"),
	)

	payload := chatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: openRouterSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.3,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	content, err := o.complete(ctx, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Translations []string `json:"translations"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("openrouter: parse payload: %w", err)
	}
	if len(parsed.Translations) != len(segments) {
		return nil, fmt.Errorf("openrouter: got %d translations for %d segments", len(parsed.Translations), len(segments))
	}
	for i, text := range parsed.Translations {
		parsed.Translations[i] = stripQuotes(text)
	}
	return retranslate(segments, parsed.Translations), nil
}

func (o *OpenRouter) complete(ctx context.Context, payload chatCompletionRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("openrouter: marshal request: %w", err)
	}

	baseURL := strings.TrimSpace(o.cfg.BaseURL)
	if baseURL == "" {
		return "", errors.New("openrouter: base url required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openrouter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(o.cfg.APIKey))
	if referer := strings.TrimSpace(o.cfg.Referer); referer != "" {
		req.Header.Set("HTTP-Referer", referer)
	}
	if title := strings.TrimSpace(o.cfg.Title); title != "" {
		req.Header.Set("X-Title", title)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("openrouter: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openrouter: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", fmt.Errorf("openrouter: parse response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openrouter: no choices in response")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openrouter: empty content (finish_reason=%q)", completion.Choices[0].FinishReason)
	}
	return content, nil
}

func stripQuotes(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = text[1 : len(text)-1]
	}
	return strings.TrimSpace(text)
}
