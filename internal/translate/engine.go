package translate

import (
	"context"

	"golang.org/x/text/language"

	"vietdub/internal/media"
)

// Engine translates a batch of transcript segments into the target language.
// Implementations must be atomic: on error the caller discards any partial
// work, so engines never return a half-translated batch.
type Engine interface {
	Name() string
	Translate(ctx context.Context, segments []media.Segment, target language.Tag) ([]media.Segment, error)
}

// retranslate copies the input segments with translated text substituted,
// preserving timing and speaker labels.
func retranslate(segments []media.Segment, texts []string) []media.Segment {
	out := make([]media.Segment, len(segments))
	copy(out, segments)
	for i := range out {
		if i < len(texts) {
			out[i].Text = texts[i]
		}
	}
	return out
}
