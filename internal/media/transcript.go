package media

import (
	"encoding/json"
	"fmt"
	"os"
)

// ReadTranscript loads a transcript JSON file written by an earlier stage.
// An empty segment list round-trips unchanged; silent audio produces one.
func ReadTranscript(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return Transcript{}, fmt.Errorf("parse transcript: %w", err)
	}
	return transcript, nil
}

// WriteTranscript persists a transcript as indented JSON so intermediate
// artifacts stay inspectable.
func WriteTranscript(path string, transcript Transcript) error {
	data, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
