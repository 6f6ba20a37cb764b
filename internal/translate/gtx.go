package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"vietdub/internal/media"
)

const gtxEndpoint = "https://translate.googleapis.com/translate_a/single"

// GTX uses the free Google Translate web endpoint. No API key, but no batch
// call either, so segments are translated one request at a time.
type GTX struct {
	endpoint   string
	httpClient *http.Client
}

// GTXOption customizes the engine.
type GTXOption func(*GTX)

// WithGTXHTTPClient overrides the default HTTP client.
func WithGTXHTTPClient(client *http.Client) GTXOption {
	return func(g *GTX) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithGTXEndpoint overrides the translate endpoint, used by tests.
func WithGTXEndpoint(endpoint string) GTXOption {
	return func(g *GTX) {
		if endpoint != "" {
			g.endpoint = endpoint
		}
	}
}

// NewGTX constructs the free-tier Google Translate engine.
func NewGTX(opts ...GTXOption) *GTX {
	engine := &GTX{
		endpoint:   gtxEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func (g *GTX) Name() string { return "gtx_free" }

func (g *GTX) Translate(ctx context.Context, segments []media.Segment, target language.Tag) ([]media.Segment, error) {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		if seg.Empty() {
			texts[i] = seg.Text
			continue
		}
		translated, err := g.translateOne(ctx, seg.Text, target)
		if err != nil {
			return nil, fmt.Errorf("gtx segment %d: %w", i, err)
		}
		texts[i] = translated
	}
	return retranslate(segments, texts), nil
}

func (g *GTX) translateOne(ctx context.Context, text string, target language.Tag) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", target.String())
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Response shape: [[[translated, original, ...], ...], ...]. Only the
	// leading string of each chunk matters.
	var payload []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("empty response")
	}

	var chunks [][]json.RawMessage
	if err := json.Unmarshal(payload[0], &chunks); err != nil {
		return "", fmt.Errorf("parse chunks: %w", err)
	}

	var sb strings.Builder
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		var piece string
		if err := json.Unmarshal(chunk[0], &piece); err != nil {
			continue
		}
		sb.WriteString(piece)
	}
	result := strings.TrimSpace(sb.String())
	if result == "" {
		return "", fmt.Errorf("no translation in response")
	}
	return result, nil
}
