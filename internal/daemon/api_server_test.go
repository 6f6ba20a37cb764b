package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/daemon"
	"vietdub/internal/testsupport"
)

func startAPIDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *config.Config, string) {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.RetryBackoffBase = 1
	cfg.Workflow.RetryBackoffMax = 1

	d, _ := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, cfg, "http://" + d.APIAddr()
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func TestAPISubmitLifecycle(t *testing.T) {
	_, _, base := startAPIDaemon(t)

	resp, body := doJSON(t, http.MethodPost, base+"/api/jobs", api.SubmitRequest{
		Input: "https://example.com/lecture.mp4",
	}, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, body: %s", resp.StatusCode, body)
	}
	var submitted api.JobResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	jobID := submitted.Job.JobID
	if jobID == "" {
		t.Fatal("expected job id in submit response")
	}

	var final api.JobResponse
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, body = doJSON(t, http.MethodGet, base+"/api/jobs/"+jobID, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get job status = %d, body: %s", resp.StatusCode, body)
		}
		if err := json.Unmarshal(body, &final); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if final.Job.Status == "completed" || final.Job.Status == "failed" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if final.Job.Status != "completed" {
		t.Fatalf("job status = %s, error: %+v", final.Job.Status, final.Job.Error)
	}
	if final.Job.Progress != 100 {
		t.Fatalf("progress = %v, want 100", final.Job.Progress)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/api/jobs/"+jobID+"/artifacts/muxing", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("artifact status = %d, body: %s", resp.StatusCode, body)
	}
	var artifact api.ArtifactResponse
	if err := json.Unmarshal(body, &artifact); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if artifact.Locator == "" || artifact.Stage != "muxing" {
		t.Fatalf("artifact = %+v", artifact)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/api/jobs?status=completed", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list api.JobListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].JobID != jobID {
		t.Fatalf("list = %+v", list.Jobs)
	}

	// Cancelling a finished job conflicts.
	resp, _ = doJSON(t, http.MethodPost, base+"/api/jobs/"+jobID+"/cancel", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel finished job status = %d, want 409", resp.StatusCode)
	}
}

func TestAPIValidationAndNotFound(t *testing.T) {
	_, _, base := startAPIDaemon(t)

	resp, _ := doJSON(t, http.MethodPost, base+"/api/jobs", api.SubmitRequest{}, "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty submit status = %d, want 422", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, base+"/api/jobs/nope", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown job status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/api/jobs/nope/cancel", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel unknown job status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, base+"/api/jobs?status=bogus", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d, want 400", resp.StatusCode)
	}
}

func TestAPIStatusAndStats(t *testing.T) {
	_, _, base := startAPIDaemon(t)

	resp, body := doJSON(t, http.MethodGet, base+"/api/status", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.PID == 0 || status.LockFilePath == "" {
		t.Fatalf("status = %+v", status)
	}
	if len(status.Stages) == 0 {
		t.Fatal("expected stage health entries")
	}

	resp, body = doJSON(t, http.MethodGet, base+"/api/stats", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats = %d", resp.StatusCode)
	}
	var stats api.QueueStatsResponse
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if _, ok := stats.Counts["pending"]; !ok {
		t.Fatalf("stats counts = %v", stats.Counts)
	}
}

func TestAPIBearerToken(t *testing.T) {
	d, cfg, _ := startAPIDaemon(t)
	d.Stop()
	cfg.Paths.APIToken = "sekrit"

	d2, _ := newDaemon(t, cfg)
	if err := d2.Start(context.Background()); err != nil {
		t.Fatalf("Start with token: %v", err)
	}
	t.Cleanup(d2.Stop)
	base := "http://" + d2.APIAddr()

	resp, _ := doJSON(t, http.MethodGet, base+"/api/status", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, base+"/api/status", nil, "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, base+"/api/status", nil, "sekrit")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("good token status = %d, want 200", resp.StatusCode)
	}
}
