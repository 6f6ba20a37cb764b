package api_test

import (
	"context"
	"path/filepath"
	"testing"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/queue"
	"vietdub/internal/testsupport"
)

func newService(t *testing.T) (*api.JobService, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return api.NewJobService(store, cfg), store, cfg
}

func TestSubmitURLJob(t *testing.T) {
	svc, _, cfg := newService(t)

	job, err := svc.Submit(context.Background(), api.SubmitRequest{
		Input: "https://example.com/video.mp4",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("expected job id")
	}
	if job.Status != string(queue.StatusPending) {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.Options.VoiceID != cfg.TTS.Voice {
		t.Fatalf("voice = %q, want config default %q", job.Options.VoiceID, cfg.TTS.Voice)
	}
}

func TestSubmitLocalFileJob(t *testing.T) {
	svc, _, _ := newService(t)
	path := filepath.Join(t.TempDir(), "talk.mp4")
	testsupport.WriteFile(t, path, 64)

	job, err := svc.Submit(context.Background(), api.SubmitRequest{
		Input:   path,
		Options: api.JobOptions{VoiceID: "vi-VN-NamMinhNeural", AddSubtitles: true},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Options.VoiceID != "vi-VN-NamMinhNeural" {
		t.Fatalf("voice = %q, want explicit override", job.Options.VoiceID)
	}
	if !job.Options.AddSubtitles {
		t.Fatal("expected add_subtitles to persist")
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  api.SubmitRequest
	}{
		{"empty input", api.SubmitRequest{}},
		{"missing file", api.SubmitRequest{Input: filepath.Join(t.TempDir(), "nope.mp4")}},
		{"bad scheme", api.SubmitRequest{Input: "ftp://example.com/video.mp4"}},
		{"bad resolution", api.SubmitRequest{
			Input:   "https://example.com/v",
			Options: api.JobOptions{Resolution: "480p"},
		}},
		{"unknown engine", api.SubmitRequest{
			Input:   "https://example.com/v",
			Options: api.JobOptions{TranslationEngineOrder: []string{"deepl"}},
		}},
		{"negative speed", api.SubmitRequest{
			Input:   "https://example.com/v",
			Options: api.JobOptions{SpeedFactor: -1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Submit(ctx, tt.req); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDescribeAndArtifact(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	queued := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	queued.SetArtifact(queue.StageDownloading, "/staging/dl")
	if err := store.Update(ctx, queued); err != nil {
		t.Fatalf("Update: %v", err)
	}

	dto, err := svc.Describe(ctx, queued.JobID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if dto == nil || dto.JobID != queued.JobID {
		t.Fatalf("Describe returned %+v", dto)
	}
	if dto.Artifacts["downloading"] != "/staging/dl" {
		t.Fatalf("artifacts = %v", dto.Artifacts)
	}

	artifact, err := svc.Artifact(ctx, queued.JobID, "downloading")
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if artifact == nil || artifact.Locator != "/staging/dl" {
		t.Fatalf("artifact = %+v", artifact)
	}

	missing, err := svc.Artifact(ctx, queued.JobID, "muxing")
	if err != nil {
		t.Fatalf("Artifact missing stage: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unrecorded stage, got %+v", missing)
	}

	if _, err := svc.Artifact(ctx, queued.JobID, "ripping"); err == nil {
		t.Fatal("expected error for unknown stage name")
	}

	unknown, err := svc.Describe(ctx, "no-such-job")
	if err != nil {
		t.Fatalf("Describe unknown: %v", err)
	}
	if unknown != nil {
		t.Fatalf("expected nil for unknown job, got %+v", unknown)
	}
}

func TestStatsIncludesAllStatuses(t *testing.T) {
	svc, store, _ := newService(t)
	testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["pending"] != 1 {
		t.Fatalf("pending = %d, want 1", stats["pending"])
	}
	for _, status := range queue.AllStatuses() {
		if _, ok := stats[string(status)]; !ok {
			t.Fatalf("missing status key %s", status)
		}
	}
}

func TestFromJobTimestamps(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	queued := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	claimed, err := store.ClaimNextPending(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextPending: job=%v err=%v", claimed, err)
	}

	dto, err := svc.Describe(ctx, queued.JobID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if dto.StartedAt == "" {
		t.Fatal("expected started_at after claim")
	}
	if dto.CreatedAt == "" || dto.UpdatedAt == "" {
		t.Fatal("expected created/updated timestamps")
	}
	if dto.CompletedAt != "" {
		t.Fatal("unexpected completed_at on running job")
	}
}
