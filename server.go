package stepdiag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const serverShutdownTimeout = 10 * time.Second

// Server exposes the most recent diagnostic report over HTTP. It serves
// the report at GET /api/diagnostics, re-runs the diagnosis on
// POST /api/refresh and answers liveness probes at GET /healthz. The
// report it serves is replaced by SetResult, typically wired to a Watcher
// callback so the endpoints track the working tree.
type Server struct {
	diag   *Diagnostics
	log    Logger
	addr   string
	router chi.Router

	mu     sync.RWMutex
	latest *DiagnosticResult

	listener   net.Listener
	httpServer *http.Server
}

// NewServer builds a server for the given diagnostics engine. The server
// does not listen until Start is called; Handler can be used directly when
// embedding into another mux.
func NewServer(diag *Diagnostics, addr string) *Server {
	s := &Server{
		diag: diag,
		log:  diag.log,
		addr: addr,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", s.handleHealth)
	router.Route("/api", func(r chi.Router) {
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Post("/refresh", s.handleRefresh)
	})

	s.router = router
	return s
}

// Handler returns the HTTP handler serving the diagnostics API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address the server is listening on. Before Start it
// returns the configured address; afterwards the bound one, which differs
// when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Latest returns the report the server currently holds, or
// ErrNoDiagnosticsYet when no run has completed since startup.
func (s *Server) Latest() (*DiagnosticResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, ErrNoDiagnosticsYet
	}
	return s.latest, nil
}

// SetResult replaces the report served by the diagnostics endpoint and
// announces the replacement to registered observers.
func (s *Server) SetResult(result *DiagnosticResult) {
	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()

	s.diag.emit(context.Background(), EventTypeServeRefreshed, map[string]any{
		"definitions": len(result.DefinitionsUsage),
		"unmatched":   len(result.UnmatchedSteps),
		"ambiguous":   len(result.AmbiguousSteps),
	})
}

// Refresh runs the diagnosis and stores the new report.
func (s *Server) Refresh(ctx context.Context) (*DiagnosticResult, error) {
	result, err := s.diag.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.SetResult(result)
	return result, nil
}

// Start binds the listener and begins serving in the background. Errors
// binding the address are returned synchronously so a busy port fails the
// command instead of logging from a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.Info("http server started", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("http server stopping")

	shutdownCtx, cancel := context.WithTimeout(ctx, serverShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	result, err := s.Latest()
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := WriteJSON(w, result); err != nil {
		s.log.Error("writing diagnostics response", "error", err)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.Refresh(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := WriteJSON(w, result); err != nil {
		s.log.Error("writing refresh response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
