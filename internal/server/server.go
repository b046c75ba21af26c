// Package server exposes the orchestrator over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
	"github.com/warriorcabo/ai-orchestration-system/internal/obs"
	"github.com/warriorcabo/ai-orchestration-system/internal/orchestrator"
	"github.com/warriorcabo/ai-orchestration-system/internal/session"
)

// maxBodyBytes limits inbound request bodies.
const maxBodyBytes = 1 << 20

// ProviderInfo describes a configured connector for the status endpoint.
type ProviderInfo struct {
	Role       string `json:"role"`
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	Configured bool   `json:"configured"`
}

// Options configures a Server.
type Options struct {
	Addr           string
	RequestTimeout time.Duration
	Logger         *log.Logger
	Metrics        *obs.Provider
	Providers      []ProviderInfo
}

// Server serves message and status requests for one orchestrator.
type Server struct {
	orch     *orchestrator.Orchestrator
	opts     Options
	listener net.Listener
	server   *http.Server
	started  time.Time
}

// New creates a server bound to opts.Addr. Use "127.0.0.1:0" for a random port.
func New(orch *orchestrator.Orchestrator, opts Options) (*Server, error) {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("server: binding listener: %w", err)
	}

	s := &Server{
		orch:     orch,
		opts:     opts,
		listener: ln,
		started:  time.Now(),
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/message", s.handleMessage)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	if s.opts.Metrics != nil {
		mux.HandleFunc("GET /v1/metrics", s.handleMetrics)
	}
	return mux
}

// Addr returns the address the server is listening on (e.g. "127.0.0.1:12345").
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. Call in a goroutine.
func (s *Server) Start() error {
	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(s.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	})
	return g.Wait()
}

// --- Handlers ---

// MessageRequest is the body of POST /v1/message.
type MessageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// MessageResponse is the reply to POST /v1/message.
type MessageResponse struct {
	Reply    string `json:"reply"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Uptime       string             `json:"uptime"`
	Stats        orchestrator.Stats `json:"stats"`
	Providers    []ProviderInfo     `json:"providers"`
	Sessions     []session.Summary  `json:"sessions"`
	RecentErrors []log.ErrorRecord  `json:"recent_errors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !readJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	res := s.orch.Process(ctx, req.UserID, req.Message)
	status := http.StatusOK
	var f *orchestrator.Failure
	if errors.As(res.Err, &f) && f.Stage == orchestrator.StageValidate {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, MessageResponse{Reply: res.Reply, State: string(res.State), Attempts: res.Attempts})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sessions := s.orch.Store().Snapshot()
	if len(sessions) > 50 {
		sessions = sessions[:50]
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Stats:        s.orch.Stats(),
		Providers:    s.opts.Providers,
		Sessions:     sessions,
		RecentErrors: s.opts.Logger.RecentErrors(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	points, err := s.opts.Metrics.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encoding response: %v", err), http.StatusInternalServerError)
	}
}
