package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/logging"
	"vietdub/internal/queue"
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address not configured")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("GET /api/stats", authMiddleware(token, srv.handleStats))
	mux.HandleFunc("POST /api/jobs", authMiddleware(token, srv.handleSubmit))
	mux.HandleFunc("GET /api/jobs", authMiddleware(token, srv.handleList))
	mux.HandleFunc("GET /api/jobs/{id}", authMiddleware(token, srv.handleJob))
	mux.HandleFunc("POST /api/jobs/{id}/cancel", authMiddleware(token, srv.handleCancel))
	mux.HandleFunc("GET /api/jobs/{id}/artifacts/{stage}", authMiddleware(token, srv.handleArtifact))
	srv.handler = mux
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}

	// A fresh http.Server per start; a shut-down server cannot serve again.
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	listener := s.listener
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

// Addr reports the bound listener address, empty before start.
func (s *apiServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := api.FromWorkflowStatus(status.Workflow)
	payload.Running = status.Running
	payload.PID = status.PID
	payload.QueueDBPath = status.QueueDBPath
	payload.LockFilePath = status.LockFilePath
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.daemon.Jobs().Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueStatsResponse{Counts: counts})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.daemon.Jobs().Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: job})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		parsed, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, parsed)
	}

	jobs, err := s.daemon.Jobs().List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.Jobs().Describe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	cancelled, err := s.daemon.CancelJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !cancelled {
		job, lookupErr := s.daemon.Jobs().Describe(r.Context(), jobID)
		if lookupErr == nil && job == nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusConflict, "job already finished")
		return
	}
	s.writeJSON(w, http.StatusOK, api.CancelResponse{JobID: jobID, Cancelled: true})
}

func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.daemon.Jobs().Artifact(r.Context(), r.PathValue("id"), r.PathValue("stage"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if artifact == nil {
		s.writeError(w, http.StatusNotFound, "artifact not recorded")
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
