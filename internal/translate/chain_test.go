package translate_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"vietdub/internal/logging"
	"vietdub/internal/media"
	"vietdub/internal/services"
	"vietdub/internal/translate"
)

type fakeEngine struct {
	name      string
	err       error
	delay     time.Duration
	translate func([]media.Segment) []media.Segment
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Translate(ctx context.Context, segments []media.Segment, target language.Tag) ([]media.Segment, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.translate != nil {
		return f.translate(segments), nil
	}
	out := make([]media.Segment, len(segments))
	copy(out, segments)
	for i := range out {
		out[i].Text = f.name + ": " + out[i].Text
	}
	return out, nil
}

func sampleSegments() []media.Segment {
	return []media.Segment{
		{Start: 0, End: 1, Text: "hello"},
		{Start: 1, End: 2, Text: "world"},
	}
}

func TestChainFallsBackAfterTimeout(t *testing.T) {
	slow := &fakeEngine{name: "slow", delay: time.Second}
	fast := &fakeEngine{name: "fast"}
	chain := translate.NewChain([]translate.Engine{slow, fast}, 20*time.Millisecond, logging.NewNop())

	translated, attempts, err := chain.Translate(context.Background(), sampleSegments(), language.Vietnamese)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Engine != "slow" || attempts[0].Err == nil {
		t.Fatalf("expected slow engine to fail first: %#v", attempts[0])
	}
	if attempts[1].Engine != "fast" || attempts[1].Err != nil {
		t.Fatalf("expected fast engine to succeed second: %#v", attempts[1])
	}
	if translated[0].Text != "fast: hello" {
		t.Fatalf("expected fast engine's output, got %q", translated[0].Text)
	}
}

func TestChainFirstSuccessWins(t *testing.T) {
	first := &fakeEngine{name: "first"}
	second := &fakeEngine{name: "second"}
	chain := translate.NewChain([]translate.Engine{first, second}, 0, logging.NewNop())

	translated, attempts, err := chain.Translate(context.Background(), sampleSegments(), language.Vietnamese)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Engine != "first" {
		t.Fatalf("expected single attempt by first engine: %#v", attempts)
	}
	if translated[1].Text != "first: world" {
		t.Fatalf("unexpected translation: %q", translated[1].Text)
	}
}

func TestChainAllEnginesFailed(t *testing.T) {
	a := &fakeEngine{name: "a", err: errors.New("quota exceeded")}
	b := &fakeEngine{name: "b", err: errors.New("connection refused")}
	chain := translate.NewChain([]translate.Engine{a, b}, 0, logging.NewNop())

	_, attempts, err := chain.Translate(context.Background(), sampleSegments(), language.Vietnamese)
	if err == nil {
		t.Fatal("expected error when every engine fails")
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	details := services.Classify(err)
	if details.Kind != services.KindAllTranslationFailed {
		t.Fatalf("expected all_translation_engines_failed, got %s", details.Kind)
	}
	for _, fragment := range []string{"a: quota exceeded", "b: connection refused"} {
		if !strings.Contains(details.Message, fragment) {
			t.Fatalf("expected failure summary to mention %q, got %q", fragment, details.Message)
		}
	}
}

func TestChainRejectsPartialBatches(t *testing.T) {
	partial := &fakeEngine{
		name: "partial",
		translate: func(segments []media.Segment) []media.Segment {
			return segments[:1]
		},
	}
	chain := translate.NewChain([]translate.Engine{partial}, 0, logging.NewNop())

	_, attempts, err := chain.Translate(context.Background(), sampleSegments(), language.Vietnamese)
	if err == nil {
		t.Fatal("expected error for mismatched batch size")
	}
	if len(attempts) != 1 || attempts[0].Err == nil {
		t.Fatalf("expected recorded failed attempt: %#v", attempts)
	}
}

func TestChainHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &fakeEngine{name: "never"}
	chain := translate.NewChain([]translate.Engine{engine}, 0, logging.NewNop())

	_, _, err := chain.Translate(ctx, sampleSegments(), language.Vietnamese)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if services.Classify(err).Kind != services.KindCancelled {
		t.Fatalf("expected cancelled kind, got %s", services.Classify(err).Kind)
	}
}

func TestChainWithNoEngines(t *testing.T) {
	chain := translate.NewChain(nil, 0, logging.NewNop())
	_, _, err := chain.Translate(context.Background(), sampleSegments(), language.Vietnamese)
	if err == nil {
		t.Fatal("expected error with no engines configured")
	}
}

func TestChainEmptyBatchSkipsEngines(t *testing.T) {
	engine := &fakeEngine{name: "never", err: errors.New("should not run")}
	chain := translate.NewChain([]translate.Engine{engine}, 0, logging.NewNop())

	translated, attempts, err := chain.Translate(context.Background(), nil, language.Vietnamese)
	if err != nil {
		t.Fatalf("empty batch should succeed, got: %v", err)
	}
	if len(translated) != 0 || len(attempts) != 0 {
		t.Fatalf("expected empty result without attempts, got %d segments, %d attempts", len(translated), len(attempts))
	}
}
