// Package api serves the dashboard's HTTP interface: the status snapshot,
// the control endpoint, a websocket status stream, Prometheus metrics and
// optionally the static front end.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/torrouter/torrouter/internal/control"
	"github.com/torrouter/torrouter/internal/status"
	"github.com/torrouter/torrouter/internal/version"
)

// StatusSource produces status snapshots.
type StatusSource interface {
	Snapshot(ctx context.Context) status.Snapshot
}

// ActionDispatcher runs control actions.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req control.Request) control.Result
}

// Notifier wakes subscribers when router state on disk changes.
type Notifier interface {
	Subscribe() (<-chan struct{}, func())
}

// Options configure the optional parts of the API.
type Options struct {
	// WebRoot, when set, is served at "/".
	WebRoot string
	// AllowedNetworks restricts callers by source address. Empty allows all.
	AllowedNetworks []netip.Prefix
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	// StreamInterval enables /api/status/stream when positive.
	StreamInterval time.Duration
	// Wake, when set, triggers an immediate stream push.
	Wake           Notifier
	MaxUploadBytes int64
}

// Server holds the API's collaborators.
type Server struct {
	status  StatusSource
	control ActionDispatcher
	opts    Options
	log     *slog.Logger
}

// New returns a Server. Call Handler to obtain the http.Handler.
func New(st StatusSource, ctl ActionDispatcher, opts Options, log *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 1 << 20
	}
	return &Server{status: st, control: ctl, opts: opts, log: log}
}

// Handler wires up every route behind the source-network check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status.php", s.handleStatus)
	mux.HandleFunc("/api/control", s.handleControl)
	mux.HandleFunc("/api/control.php", s.handleControl)
	if s.opts.StreamInterval > 0 {
		mux.HandleFunc("/api/status/stream", s.handleStream)
	}
	if s.opts.Metrics != nil {
		mux.Handle(s.opts.MetricsPath, s.opts.Metrics)
	}
	if s.opts.WebRoot != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.WebRoot)))
	}
	return s.logRequests(s.allowNetworks(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, s.status.Snapshot(r.Context()))
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	req, cleanup, err := s.decodeControl(w, r)
	if err != nil {
		writeMessage(w, err.status, err.message)
		return
	}
	defer cleanup()

	res := s.control.Dispatch(r.Context(), req)
	code := http.StatusOK
	if res.Unrecognized() {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, res)
}

// allowNetworks rejects callers whose address is outside every allowed
// prefix.
func (s *Server) allowNetworks(next http.Handler) http.Handler {
	if len(s.opts.AllowedNetworks) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ap, err := netip.ParseAddrPort(r.RemoteAddr)
		if err != nil || !s.allowed(ap.Addr().Unmap()) {
			s.log.Warn("request from disallowed network", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeMessage(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowed(addr netip.Addr) bool {
	for _, p := range s.opts.AllowedNetworks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}

// message is the body of every error response.
type message struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, message{OK: false, Message: msg})
}
