// Package ops serves the operational HTTP endpoints: liveness, readiness,
// Prometheus metrics, a JSON status page and pprof.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"outagebot/internal/notifier"
	rtsup "outagebot/internal/runtime/supervisor"
	"outagebot/internal/task"
	logx "outagebot/pkg/logx"
)

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const DefaultAddr = "127.0.0.1:9090"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the probes behind /readyz and /status. Nil fields are skipped.
type Deps struct {
	Store       Pinger
	Tasks       func() []task.Info
	Supervisors func() map[string][]rtsup.Stats
	Deliveries  func() []notifier.HistoryItem
}

// recentDeliveries caps the deliveries listed on /status.
const recentDeliveries = 20

type Server struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
	log  logx.Logger
	now  func() time.Time

	started time.Time
	srv     *http.Server
	sup     *rtsup.Supervisor
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{cfg: cfg, deps: deps, log: log, now: time.Now}
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.withAuth)
		r.Get("/readyz", s.handleReady)
		r.Get("/status", s.handleStatus)
		r.Handle("/metrics", promhttp.Handler())
		r.Mount("/debug", middleware.Profiler())
	})
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.log.Warn("readiness probe failed", logx.Err(err))
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type status struct {
	Uptime      string                   `json:"uptime"`
	Tasks       []task.Info              `json:"tasks,omitempty"`
	Supervisors map[string][]rtsup.Stats `json:"supervisors,omitempty"`
	Recent      []notifier.HistoryItem   `json:"recent_deliveries,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	st := status{}
	if !started.IsZero() {
		st.Uptime = s.now().Sub(started).Truncate(time.Second).String()
	}
	if s.deps.Tasks != nil {
		st.Tasks = s.deps.Tasks()
	}
	if s.deps.Supervisors != nil {
		st.Supervisors = s.deps.Supervisors()
	}
	if s.deps.Deliveries != nil {
		recent := s.deps.Deliveries()
		if len(recent) > recentDeliveries {
			recent = recent[len(recent)-recentDeliveries:]
		}
		st.Recent = recent
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(st)
}

// withAuth accepts either "Authorization: Bearer <token>" or ?token=<token>.
func (s *Server) withAuth(next http.Handler) http.Handler {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// Start runs the server under a restart loop. It is a no-op when disabled
// or already running.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.sup != nil {
		return
	}
	s.started = s.now()
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "ops"))),
		// ops is optional; never take the process down with it.
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Supervisor returns the server's supervisor, nil if not started.
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup = nil, nil
	s.mu.Unlock()

	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	if sup != nil {
		_ = sup.Stop(ctx)
	}
	if srv != nil || sup != nil {
		s.log.Info("ops server stopped")
	}
}

func (s *Server) serveOnce(ctx context.Context) error {
	cfg := s.cfg
	addr := strings.TrimSpace(cfg.Addr)

	// Prevent accidental public exposure without auth.
	if !cfg.AllowInsecure && cfg.Token == "" && !IsLoopbackAddr(addr) {
		s.log.Error("ops refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
		return errors.New("ops refused to start: insecure bind")
	}
	if cfg.AllowInsecure && cfg.Token == "" && !IsLoopbackAddr(addr) {
		s.log.Warn("ops running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("ops server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops server exited unexpectedly")
	}
	return err
}

// IsLoopbackAddr reports whether host:port binds only to loopback.
// An empty host means all interfaces.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
