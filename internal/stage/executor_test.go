package stage_test

import (
	"testing"

	"vietdub/internal/queue"
	"vietdub/internal/stage"
)

func TestResourceIntensiveStages(t *testing.T) {
	want := map[queue.Stage]bool{
		queue.StageDownloading:  false,
		queue.StageSeparating:   true,
		queue.StageTranscribing: true,
		queue.StageTranslating:  false,
		queue.StageSynthesizing: true,
		queue.StageMuxing:       false,
	}
	for s, expected := range want {
		if got := stage.ResourceIntensive(s); got != expected {
			t.Fatalf("%s: ResourceIntensive = %v, want %v", s, got, expected)
		}
	}
}

func TestRequestHelpersTolerateNil(t *testing.T) {
	var req *stage.Request
	req.ReportProgress(0.5)
	if _, ok := req.PriorArtifact(queue.StageDownloading); ok {
		t.Fatal("nil request should report no artifacts")
	}

	job := &queue.Job{}
	job.SetArtifact(queue.StageDownloading, "/staging/job/downloading")
	populated := &stage.Request{Job: job}
	if locator, ok := populated.PriorArtifact(queue.StageDownloading); !ok || locator == "" {
		t.Fatalf("expected recorded artifact, got %q %v", locator, ok)
	}

	var reported float64
	populated.Progress = func(f float64) { reported = f }
	populated.ReportProgress(0.25)
	if reported != 0.25 {
		t.Fatalf("expected progress callback with 0.25, got %f", reported)
	}
}
