package media

import (
	"fmt"
	"os"
	"path/filepath"

	"vietdub/internal/queue"
)

// Well-known filenames inside a stage directory. Stages communicate by
// writing these under their own directory and reading them from the
// directories of earlier stages.
const (
	SourceVideoFile  = "source.mp4"
	SourceAudioFile  = "audio.wav"
	VocalsFile       = "vocals.wav"
	InstrumentalFile = "instrumental.wav"
	TranscriptFile   = "transcript.json"
	TranslatedFile   = "translated.json"
	DubbedAudioFile  = "dubbed.wav"
	SubtitleFile     = "subtitles.srt"
	SourceSubFile    = "source.srt"
)

// JobDir returns the staging directory owned by one job.
func JobDir(stagingDir, jobID string) string {
	return filepath.Join(stagingDir, jobID)
}

// StageDir returns the directory one stage owns for one job.
func StageDir(stagingDir, jobID string, stage queue.Stage) string {
	return filepath.Join(stagingDir, jobID, string(stage))
}

// EnsureStageDir creates and returns the stage directory.
func EnsureStageDir(stagingDir, jobID string, stage queue.Stage) (string, error) {
	dir := StageDir(stagingDir, jobID, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stage directory: %w", err)
	}
	return dir, nil
}

// OutputName derives the final deliverable filename for a job.
func OutputName(jobID string) string {
	return jobID + "-dubbed.mp4"
}

// RemoveJobDir deletes all staged intermediates for a job.
func RemoveJobDir(stagingDir, jobID string) error {
	if jobID == "" {
		return nil
	}
	if err := os.RemoveAll(JobDir(stagingDir, jobID)); err != nil {
		return fmt.Errorf("remove job staging: %w", err)
	}
	return nil
}
