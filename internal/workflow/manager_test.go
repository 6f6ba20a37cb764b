package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"vietdub/internal/config"
	"vietdub/internal/queue"
	"vietdub/internal/services"
	"vietdub/internal/stage"
	"vietdub/internal/testsupport"
	"vietdub/internal/workflow"
)

type fakeExecutor struct {
	name queue.Stage
	fn   func(ctx context.Context, req *stage.Request) (string, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeExecutor) Stage() queue.Stage { return f.name }

func (f *fakeExecutor) Execute(ctx context.Context, req *stage.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return req.WorkDir, nil
}

func (f *fakeExecutor) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(f.name))
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fakeExecutors() map[queue.Stage]stage.Executor {
	executors := make(map[queue.Stage]stage.Executor, queue.StageCount)
	for _, s := range queue.StageOrder() {
		executors[s] = &fakeExecutor{name: s}
	}
	return executors
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.RetryBackoffBase = 1
	cfg.Workflow.RetryBackoffMax = 1
	return cfg
}

func startManager(t *testing.T, cfg *config.Config, store *queue.Store, executors map[queue.Stage]stage.Executor) *workflow.Manager {
	t.Helper()
	manager := workflow.NewManager(cfg, store, executors, nil)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager
}

func waitForTerminal(t *testing.T, store *queue.Store, jobID string) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByJobID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetByJobID: %v", err)
		}
		if job != nil && job.Status.Terminal() {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return nil
}

func TestManagerProcessesJobToCompletion(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	job := testsupport.EnqueueJob(t, store, "https://example.com/talk.mp4", queue.Options{VoiceID: "vi-VN-HoaiMyNeural"})
	startManager(t, cfg, store, executors)

	final := waitForTerminal(t, store, job.JobID)
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %+v)", final.Status, final.Error)
	}
	if final.Stage != queue.StageDone {
		t.Fatalf("stage = %s, want done", final.Stage)
	}
	if final.Progress != 100 {
		t.Fatalf("progress = %v, want 100", final.Progress)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	for _, s := range queue.StageOrder() {
		if _, ok := final.Artifact(s); !ok {
			t.Fatalf("missing artifact for stage %s", s)
		}
		if got := executors[s].(*fakeExecutor).Calls(); got != 1 {
			t.Fatalf("stage %s executed %d times, want 1", s, got)
		}
	}
}

func TestManagerRetriesTransientFailure(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	transcriber := executors[queue.StageTranscribing].(*fakeExecutor)
	var attempts int
	transcriber.fn = func(_ context.Context, req *stage.Request) (string, error) {
		attempts++
		if attempts == 1 {
			return "", services.NewError(services.KindResourceExhausted, "transcribing", "load model", "cuda out of memory")
		}
		return req.WorkDir, nil
	}

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	startManager(t, cfg, store, executors)

	final := waitForTerminal(t, store, job.JobID)
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %+v)", final.Status, final.Error)
	}
	if attempts != 2 {
		t.Fatalf("transcribe attempts = %d, want 2", attempts)
	}
}

func TestManagerFailsAfterRetryExhaustion(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Workflow.RetryAttempts = 2
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	separator := executors[queue.StageSeparating].(*fakeExecutor)
	separator.fn = func(context.Context, *stage.Request) (string, error) {
		return "", services.NewError(services.KindResourceExhausted, "separating", "demucs", "cannot allocate memory")
	}

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	startManager(t, cfg, store, executors)

	final := waitForTerminal(t, store, job.JobID)
	if final.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Error == nil {
		t.Fatal("expected structured error on failed job")
	}
	if final.Error.Kind != string(services.KindResourceExhausted) {
		t.Fatalf("error kind = %s, want resource_exhausted", final.Error.Kind)
	}
	if final.Error.Stage != queue.StageSeparating {
		t.Fatalf("error stage = %s, want separating", final.Error.Stage)
	}
	if got := separator.Calls(); got != 2 {
		t.Fatalf("separate attempts = %d, want 2", got)
	}
	// The download artifact from the successful first stage must survive.
	if _, ok := final.Artifact(queue.StageDownloading); !ok {
		t.Fatal("expected download artifact to be preserved")
	}
}

func TestManagerDoesNotRetryPermanentFailure(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	synthesizer := executors[queue.StageSynthesizing].(*fakeExecutor)
	synthesizer.fn = func(context.Context, *stage.Request) (string, error) {
		return "", services.NewError(services.KindVoiceUnavailable, "synthesizing", "edge-tts", "unknown voice")
	}

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "bogus"})
	startManager(t, cfg, store, executors)

	final := waitForTerminal(t, store, job.JobID)
	if final.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Error.Kind != string(services.KindVoiceUnavailable) {
		t.Fatalf("error kind = %s, want voice_unavailable", final.Error.Kind)
	}
	if got := synthesizer.Calls(); got != 1 {
		t.Fatalf("synthesize attempts = %d, want 1 (no retry)", got)
	}
}

func TestManagerStageTimeoutRetries(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Workflow.StageTimeouts = map[string]int{"downloading": 1}
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	downloader := executors[queue.StageDownloading].(*fakeExecutor)
	var attempts int
	downloader.fn = func(ctx context.Context, req *stage.Request) (string, error) {
		attempts++
		if attempts == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return req.WorkDir, nil
	}

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	startManager(t, cfg, store, executors)

	final := waitForTerminal(t, store, job.JobID)
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %+v)", final.Status, final.Error)
	}
	if attempts != 2 {
		t.Fatalf("download attempts = %d, want 2", attempts)
	}
}

func TestManagerCancelRunningJob(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	started := make(chan struct{})
	var once sync.Once
	translator := executors[queue.StageTranslating].(*fakeExecutor)
	translator.fn = func(ctx context.Context, _ *stage.Request) (string, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", services.Wrap(services.KindCancelled, "translating", "translate", ctx.Err())
	}

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	manager := startManager(t, cfg, store, executors)

	select {
	case <-started:
	case <-time.After(30 * time.Second):
		t.Fatal("translating stage never started")
	}

	ok, err := manager.Cancel(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !ok {
		t.Fatal("Cancel reported job not cancellable")
	}

	final := waitForTerminal(t, store, job.JobID)
	if final.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completed_at on cancelled job")
	}
	// Completed stages keep their artifacts for a later retry.
	if _, ok := final.Artifact(queue.StageTranscribing); !ok {
		t.Fatal("expected transcription artifact to be preserved")
	}
}

func TestManagerCancelPendingJob(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	if _, err := store.RequestCancel(context.Background(), job.JobID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	startManager(t, cfg, store, executors)

	final := waitForTerminal(t, store, job.JobID)
	if final.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}
	for _, s := range queue.StageOrder() {
		if got := executors[s].(*fakeExecutor).Calls(); got != 0 {
			t.Fatalf("stage %s ran %d times on a cancelled pending job", s, got)
		}
	}
}

func TestManagerResumesFromArtifacts(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	job.SetArtifact(queue.StageDownloading, "/staging/dl")
	job.SetArtifact(queue.StageSeparating, "/staging/sep")
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	startManager(t, cfg, store, executors)

	final := waitForTerminal(t, store, job.JobID)
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %+v)", final.Status, final.Error)
	}
	if got := executors[queue.StageDownloading].(*fakeExecutor).Calls(); got != 0 {
		t.Fatalf("downloading ran %d times despite existing artifact", got)
	}
	if got := executors[queue.StageSeparating].(*fakeExecutor).Calls(); got != 0 {
		t.Fatalf("separating ran %d times despite existing artifact", got)
	}
	if got := executors[queue.StageTranscribing].(*fakeExecutor).Calls(); got != 1 {
		t.Fatalf("transcribing ran %d times, want 1", got)
	}
	if artifact, _ := final.Artifact(queue.StageDownloading); artifact != "/staging/dl" {
		t.Fatalf("download artifact = %q, want original locator", artifact)
	}
}

func TestManagerProgressNeverRegresses(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	for _, s := range queue.StageOrder() {
		executors[s].(*fakeExecutor).fn = func(_ context.Context, req *stage.Request) (string, error) {
			req.ReportProgress(0.5)
			req.ReportProgress(0.1)
			return req.WorkDir, nil
		}
	}

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	startManager(t, cfg, store, executors)

	var last float64
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		current, err := store.GetByJobID(context.Background(), job.JobID)
		if err != nil {
			t.Fatalf("GetByJobID: %v", err)
		}
		if current.Progress < last {
			t.Fatalf("progress regressed from %v to %v", last, current.Progress)
		}
		last = current.Progress
		if current.Status.Terminal() {
			if current.Status != queue.StatusCompleted {
				t.Fatalf("status = %s, want completed", current.Status)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job never completed")
}

func TestManagerFullProgressOnlyWhenCompleted(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()

	// Stretch the final stage and report it finished, so any window where
	// full progress is stored against a still-running job stays open long
	// enough for the poller below to catch it.
	executors[queue.StageMuxing].(*fakeExecutor).fn = func(_ context.Context, req *stage.Request) (string, error) {
		req.ReportProgress(1)
		time.Sleep(200 * time.Millisecond)
		return req.WorkDir, nil
	}

	job := testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	startManager(t, cfg, store, executors)

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		current, err := store.GetByJobID(context.Background(), job.JobID)
		if err != nil {
			t.Fatalf("GetByJobID: %v", err)
		}
		if current.Progress >= 100 && current.Status != queue.StatusCompleted {
			t.Fatalf("full progress stored with status %s", current.Status)
		}
		if current.Status.Terminal() {
			if current.Status != queue.StatusCompleted {
				t.Fatalf("status = %s, want completed", current.Status)
			}
			if current.Progress != 100 {
				t.Fatalf("progress = %v, want 100", current.Progress)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never completed")
}

func TestManagerStatusSnapshot(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executors := fakeExecutors()
	executors[queue.StageMuxing] = &unhealthyExecutor{fakeExecutor{name: queue.StageMuxing}}

	testsupport.EnqueueJob(t, store, "https://example.com/a", queue.Options{VoiceID: "voice"})

	manager := workflow.NewManager(cfg, store, executors, nil)
	status, err := manager.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected not running before Start")
	}
	if status.Queue.Pending != 1 || status.Queue.Total != 1 {
		t.Fatalf("queue summary = %+v, want one pending job", status.Queue)
	}
	if len(status.Stages) != queue.StageCount {
		t.Fatalf("stage checks = %d, want %d", len(status.Stages), queue.StageCount)
	}
	if status.Stages[0].Name != string(queue.StageDownloading) {
		t.Fatalf("first stage check = %s, want downloading", status.Stages[0].Name)
	}
	if manager.Healthy(context.Background()) {
		t.Fatal("expected unhealthy with a broken mux executor")
	}
}

func TestManagerStartRejectsDoubleStart(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := startManager(t, cfg, store, fakeExecutors())

	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !manager.Running() {
		t.Fatal("manager should still be running")
	}
}

func TestManagerStartResetsStuckRunning(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.EnqueueJob(t, store, "https://example.com/v", queue.Options{VoiceID: "voice"})
	claimed, err := store.ClaimNextPending(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextPending: job=%v err=%v", claimed, err)
	}

	// Simulate an unclean shutdown: the row stays running with no owner.
	startManager(t, cfg, store, fakeExecutors())

	final := waitForTerminal(t, store, claimed.JobID)
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed after recovery (error: %+v)", final.Status, final.Error)
	}
}

type unhealthyExecutor struct {
	fakeExecutor
}

func (u *unhealthyExecutor) HealthCheck(context.Context) stage.Health {
	return stage.Unhealthy(string(u.name), "binary not found")
}

func TestManagerBoundsConcurrentJobs(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Workers.Count = 2
	store := testsupport.MustOpenStore(t, cfg)

	entered := make(chan string, 8)
	release := make(chan struct{})
	executors := fakeExecutors()
	executors[queue.StageDownloading] = &fakeExecutor{
		name: queue.StageDownloading,
		fn: func(ctx context.Context, req *stage.Request) (string, error) {
			entered <- req.Job.JobID
			select {
			case <-release:
				return req.WorkDir, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}

	var jobs []*queue.Job
	for i := 0; i < 4; i++ {
		input := fmt.Sprintf("https://example.com/clip-%d.mp4", i)
		jobs = append(jobs, testsupport.EnqueueJob(t, store, input, queue.Options{VoiceID: "voice"}))
	}
	startManager(t, cfg, store, executors)

	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(10 * time.Second):
			t.Fatal("worker never picked up a job")
		}
	}

	// Both worker slots are held; no third job may start.
	select {
	case jobID := <-entered:
		t.Fatalf("job %s started with a full worker pool", jobID)
	case <-time.After(300 * time.Millisecond):
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusRunning] != 2 || stats[queue.StatusPending] != 2 {
		t.Fatalf("running=%d pending=%d, want 2 running and 2 pending",
			stats[queue.StatusRunning], stats[queue.StatusPending])
	}

	close(release)
	for _, job := range jobs {
		final := waitForTerminal(t, store, job.JobID)
		if final.Status != queue.StatusCompleted {
			t.Fatalf("job %s status = %s, want completed (error: %+v)", job.JobID, final.Status, final.Error)
		}
	}
}
