// Package control serves the local HTTP API for starting, stopping and
// inspecting the monitor.
package control

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/aleksanaa/eportal-autologin/internal/config"
	"github.com/aleksanaa/eportal-autologin/internal/eportal"
	"github.com/aleksanaa/eportal-autologin/internal/monitor"
)

const (
	defaultLogLines = 100
	maxLogLines     = 1000
)

type Monitor interface {
	Start(monitor.Settings) monitor.Result
	Stop() monitor.Result
	Status() monitor.Status
}

type LogSource interface {
	Lines(n int) []string
}

type Server struct {
	mon  Monitor
	logs LogSource
	cfg  config.Config
	log  *zap.Logger
}

// New builds a server whose start requests fall back to cfg for anything
// the request body leaves out.
func New(mon Monitor, logs LogSource, cfg config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{mon: mon, logs: logs, cfg: cfg, log: log}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/monitor/start", s.handleStart)
		r.Post("/monitor/stop", s.handleStop)
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
	})
	return r
}

type startRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ServerHost      string `json:"server_host"`
	IntervalSeconds int    `json:"interval_seconds"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, 400, monitor.Result{Message: "invalid request body: " + err.Error()})
		return
	}

	s.log.Debug("start requested", zap.String("remote", r.RemoteAddr))
	cfg := s.cfg.With(config.Overrides{
		Username:   req.Username,
		Password:   req.Password,
		ServerHost: req.ServerHost,
	})
	interval := cfg.Interval()
	if req.IntervalSeconds != 0 {
		interval = time.Duration(config.ClampInterval(req.IntervalSeconds)) * time.Second
	}

	res := s.mon.Start(monitor.Settings{
		Credentials: cfg.Credentials(),
		Endpoints:   cfg.Endpoints(),
		Interval:    interval,
	})
	switch {
	case res.Success:
		writeJSON(w, 200, res)
	case errors.Is(res.Err, eportal.ErrValidation):
		writeJSON(w, 422, res)
	default:
		writeJSON(w, 409, res)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("stop requested", zap.String("remote", r.RemoteAddr))
	res := s.mon.Stop()
	if !res.Success {
		writeJSON(w, 409, res)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.mon.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, 400, map[string]any{"error": "n must be a positive integer"})
			return
		}
		n = min(parsed, maxLogLines)
	}
	lines := s.logs.Lines(n)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, 200, map[string]any{"lines": lines})
}
