package media

import (
	"strings"
	"time"
)

// Segment is one timed utterance. Times are in seconds from the start of the
// source audio. Speaker is empty for single-speaker content.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Duration returns the segment length, never negative.
func (s Segment) Duration() time.Duration {
	if s.End <= s.Start {
		return 0
	}
	return time.Duration((s.End - s.Start) * float64(time.Second))
}

// Empty reports whether the segment carries no usable text.
func (s Segment) Empty() bool {
	return strings.TrimSpace(s.Text) == ""
}

// Transcript is the ordered segment list a recognition or translation stage
// produces, tagged with the language of the text.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Speakers returns the distinct speaker labels in order of first appearance.
func (t Transcript) Speakers() []string {
	seen := make(map[string]struct{})
	var speakers []string
	for _, seg := range t.Segments {
		if seg.Speaker == "" {
			continue
		}
		if _, ok := seen[seg.Speaker]; ok {
			continue
		}
		seen[seg.Speaker] = struct{}{}
		speakers = append(speakers, seg.Speaker)
	}
	return speakers
}

// TotalDuration returns the end time of the last segment in seconds.
func (t Transcript) TotalDuration() float64 {
	var last float64
	for _, seg := range t.Segments {
		if seg.End > last {
			last = seg.End
		}
	}
	return last
}
