// Package server exposes transcription runs over HTTP. Clients start runs
// with POST /runs and follow their events on the /ws websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-stream/internal/archive"
	"github.com/chaz8081/gostt-stream/internal/store"
	"github.com/chaz8081/gostt-stream/internal/transcribe"
)

// Runner executes one transcription run.
type Runner interface {
	NewStore() *store.Store
	Run(ctx context.Context, st *store.Store) (transcribe.Result, error)
}

// RunArchive looks up past runs.
type RunArchive interface {
	LatestRun(ctx context.Context) (archive.Run, error)
	GetRun(ctx context.Context, id string) (archive.Run, error)
	ListRuns(ctx context.Context, limit int) ([]archive.Run, error)
}

// Config wires the server's collaborators. Hub, Metrics and Archive are
// optional.
type Config struct {
	Runner   Runner
	Hub      http.Handler
	Metrics  http.Handler
	Archive  RunArchive
	Defaults store.Request
	Log      *slog.Logger
	// OnFinish, when set, is called after every run.
	OnFinish func(req store.Request, res transcribe.Result, err error)
}

// RunSummary is the JSON view of a finished run.
type RunSummary struct {
	ID       string          `json:"id"`
	State    string          `json:"state"`
	Error    string          `json:"error,omitempty"`
	Segments []store.Segment `json:"segments"`
}

// RunListing is one entry of GET /runs.
type RunListing struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	AudioPath  string    `json:"audio_path"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Server handles HTTP requests. Only one run is in flight at a time.
type Server struct {
	cfg  Config
	log  *slog.Logger
	mux  *http.ServeMux
	base context.Context
	stop context.CancelFunc

	busy atomic.Bool
	wg   sync.WaitGroup

	mu   sync.Mutex
	last *RunSummary
}

// New builds a server and registers its routes.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	s := &Server{cfg: cfg, log: log, mux: http.NewServeMux(), base: base, stop: stop}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /runs", s.handleStartRun)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/latest", s.handleLatest)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	if cfg.Hub != nil {
		s.mux.Handle("GET /ws", cfg.Hub)
	}
	if cfg.Metrics != nil {
		s.mux.Handle("GET /metrics", cfg.Metrics)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down and
// waits for the in-flight run.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("server stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http shutdown error", "error", err)
	}
	s.Wait()
	return nil
}

// Wait blocks until the in-flight run, if any, has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Close cancels the context of the in-flight run and waits for it.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": s.busy.Load()})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req store.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AudioPath == "" {
		writeError(w, http.StatusBadRequest, "audio_path is required")
		return
	}
	if req.ModelPath == "" {
		req.ModelPath = s.cfg.Defaults.ModelPath
	}
	if req.Language == "" {
		req.Language = s.cfg.Defaults.Language
	}

	if !s.busy.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a transcription is already running")
		return
	}

	id := uuid.NewString()
	st := s.cfg.Runner.NewStore()
	if err := st.Configure(req); err != nil {
		s.busy.Store(false)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)

		res, err := s.cfg.Runner.Run(transcribe.WithRunID(s.base, id), st)
		sum := &RunSummary{ID: res.RunID, State: res.State.String(), Segments: res.Segments}
		if err != nil {
			sum.Error = err.Error()
		}
		s.mu.Lock()
		s.last = sum
		s.mu.Unlock()
		if s.cfg.OnFinish != nil {
			s.cfg.OnFinish(req, res, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Archive != nil {
		run, err := s.cfg.Archive.LatestRun(r.Context())
		s.writeRun(w, run, err)
		return
	}
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		writeError(w, http.StatusNotFound, "no runs yet")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	run, err := s.cfg.Archive.GetRun(r.Context(), r.PathValue("id"))
	s.writeRun(w, run, err)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.cfg.Archive.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("archive listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "archive lookup failed")
		return
	}
	out := make([]RunListing, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunListing{
			ID:         run.ID,
			State:      run.State,
			Error:      run.Error,
			AudioPath:  run.Request.AudioPath,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeRun(w http.ResponseWriter, run archive.Run, err error) {
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case err != nil:
		s.log.Error("archive lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "archive lookup failed")
	default:
		writeJSON(w, http.StatusOK, RunSummary{ID: run.ID, State: run.State, Error: run.Error, Segments: run.Segments})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
