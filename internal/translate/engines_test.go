package translate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/text/language"

	"vietdub/internal/config"
	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/translate"
)

func TestGTXTranslatesPerSegment(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.URL.Query().Get("client"); got != "gtx" {
			t.Errorf("expected client=gtx, got %q", got)
		}
		if got := r.URL.Query().Get("tl"); got != "vi" {
			t.Errorf("expected tl=vi, got %q", got)
		}
		// Minimal response shape: [[[translated, original]]]
		_, _ = w.Write([]byte(`[[["xin chào","hello"]]]`))
	}))
	defer server.Close()

	engine := translate.NewGTX(
		translate.WithGTXEndpoint(server.URL),
		translate.WithGTXHTTPClient(server.Client()),
	)

	segments := []media.Segment{
		{Start: 0, End: 1, Text: "hello"},
		{Start: 1, End: 2, Text: "hello again"},
	}
	translated, err := engine.Translate(context.Background(), segments, language.Vietnamese)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected one request per segment, got %d", requests)
	}
	if translated[0].Text != "xin chào" {
		t.Fatalf("unexpected translation: %q", translated[0].Text)
	}
	if translated[0].Start != 0 || translated[0].End != 1 {
		t.Fatalf("timing not preserved: %#v", translated[0])
	}
}

func TestGTXSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	engine := translate.NewGTX(
		translate.WithGTXEndpoint(server.URL),
		translate.WithGTXHTTPClient(server.Client()),
	)
	if _, err := engine.Translate(context.Background(), []media.Segment{{Text: "hi"}}, language.Vietnamese); err == nil {
		t.Fatal("expected error on http failure")
	}
}

func TestOpenRouterBatchTranslation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "https://example.com" {
			t.Errorf("unexpected referer header: %q", got)
		}

		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Temperature != 0.3 {
			t.Errorf("expected temperature 0.3, got %f", req.Temperature)
		}

		response := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": `{"translations":["\"xin chào\"","thế giới"]}`,
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	engine := translate.NewOpenRouter(config.OpenRouter{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Referer: "https://example.com",
	}, translate.WithOpenRouterHTTPClient(server.Client()))

	segments := []media.Segment{
		{Start: 0, End: 1, Text: "hello"},
		{Start: 1, End: 2, Text: "world"},
	}
	translated, err := engine.Translate(context.Background(), segments, language.Vietnamese)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	// Wrapping quotes from the model are stripped.
	if translated[0].Text != "xin chào" {
		t.Fatalf("unexpected first translation: %q", translated[0].Text)
	}
	if translated[1].Text != "thế giới" {
		t.Fatalf("unexpected second translation: %q", translated[1].Text)
	}
}

func TestOpenRouterRejectsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"translations":["only one"]}`}},
			},
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	engine := translate.NewOpenRouter(config.OpenRouter{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, translate.WithOpenRouterHTTPClient(server.Client()))

	segments := []media.Segment{{Text: "a"}, {Text: "b"}}
	if _, err := engine.Translate(context.Background(), segments, language.Vietnamese); err == nil {
		t.Fatal("expected error on translation count mismatch")
	}
}

func TestOpenRouterRequiresAPIKey(t *testing.T) {
	engine := translate.NewOpenRouter(config.OpenRouter{BaseURL: "http://localhost"})
	if _, err := engine.Translate(context.Background(), []media.Segment{{Text: "a"}}, language.Vietnamese); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestOllamaTranslatesPerSegment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "xin chào"})
	}))
	defer server.Close()

	engine := translate.NewOllama(config.Ollama{
		BaseURL: server.URL,
		Model:   "llama3:latest",
	}, translate.WithOllamaHTTPClient(server.Client()))

	translated, err := engine.Translate(context.Background(), []media.Segment{{Text: "hello"}}, language.Vietnamese)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if translated[0].Text != "xin chào" {
		t.Fatalf("unexpected translation: %q", translated[0].Text)
	}
}

func TestBuildChainFromConfig(t *testing.T) {
	cfg := config.Default().Translation
	chain, err := translate.BuildChain(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("BuildChain failed: %v", err)
	}
	names := chain.Engines()
	want := []string{config.EngineGTX, config.EngineOpenRouter, config.EngineOllama}
	if len(names) != len(want) {
		t.Fatalf("expected %d engines, got %v", len(want), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("engine %d: got %q, want %q", i, names[i], name)
		}
	}

	cfg.EngineOrder = []string{"deepl"}
	if _, err := translate.BuildChain(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown engine name")
	}
}

func TestTargetTag(t *testing.T) {
	tag, err := translate.TargetTag("vi")
	if err != nil {
		t.Fatalf("TargetTag failed: %v", err)
	}
	if tag != language.Vietnamese {
		t.Fatalf("expected Vietnamese, got %v", tag)
	}
	if _, err := translate.TargetTag("not a language"); err == nil {
		t.Fatal("expected error for junk language code")
	}
}
