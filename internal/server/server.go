// Package server is the single-instance orchestration service: it runs
// visual tests on demand and serves reports and baselines to the overlay
// widget.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/livetemplate/blockshot/internal/assets"
	"github.com/livetemplate/blockshot/internal/config"
	"github.com/livetemplate/blockshot/internal/history"
	"github.com/livetemplate/blockshot/internal/runner"
)

const shutdownTimeout = 5 * time.Second

// Server is the orchestration service.
type Server struct {
	cfg         *config.Config
	history     *history.Store
	hub         *Hub
	runs        runner.Group
	router      chi.Router
	watcher     *Watcher
	portFile    string
	reportDir   string
	baselineDir string
	debug       bool

	// baseCtx bounds on-demand runs; cancelling it kills their children.
	baseCtx context.Context
	cancel  context.CancelFunc
	rlDone  <-chan struct{}
}

// New creates a server for cfg. hist may be nil, in which case runs are
// not recorded. Relative paths in cfg resolve against the server workdir.
func New(cfg *config.Config, hist *history.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		history:     hist,
		portFile:    cfg.ServerPath(cfg.Server.PortFile),
		reportDir:   cfg.ServerPath(cfg.Server.ReportDir),
		baselineDir: cfg.ServerPath(cfg.BaselineDir()),
		debug:       cfg.Server.Debug || config.IsVerbose(),
		baseCtx:     ctx,
		cancel:      cancel,
	}
	s.hub = NewHub(s.origins(), s.debug)
	s.runs.OnDone = s.recordRun
	s.router = s.routes(ctx)
	return s
}

// origins are the configured CORS origins, or the authoring host's origin.
func (s *Server) origins() []string {
	if origins := s.cfg.Server.GetCORSOrigins(); len(origins) > 0 {
		return origins
	}
	u, err := url.Parse(s.cfg.Host.URL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Scheme + "://" + u.Host}
}

func (s *Server) routes(ctx context.Context) chi.Router {
	origins := s.origins()
	rateLimit, done := RateLimitMiddleware(ctx, s.cfg.Server.GetRateLimitRPS(), s.cfg.Server.GetRateLimitBurst(), 0)
	s.rlDone = done

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(origins))
	r.Use(CORSMiddleware(origins))

	r.Get("/api/health", s.handleHealth)
	r.Get("/port.txt", s.handlePort)
	r.With(rateLimit).Post("/api/run-visual-test", s.handleRunVisualTest)
	r.Get("/api/overlay", s.handleOverlay)
	r.Get("/api/runs", s.handleRuns)
	r.Get("/ws", s.hub.ServeHTTP)

	// Baselines are PNGs; only the text routes are compressed.
	r.Handle("/baselines/*", noStore(
		http.StripPrefix("/baselines/", http.FileServer(http.Dir(s.baselineDir)))))
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5, compressedTypes...))
		r.Handle("/report/*", http.StripPrefix("/report/", http.FileServer(http.Dir(s.reportDir))))
		r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(assets.ClientFS()))))
	})
	return r
}

var compressedTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"text/javascript",
	"application/javascript",
	"application/json",
}

// noStore keeps browsers from caching baselines that may be re-recorded.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Negotiator returns the port negotiator for the configured range.
func (s *Server) Negotiator() *Negotiator {
	return &Negotiator{
		Host:  s.cfg.Server.Host,
		First: s.cfg.Server.Port,
		Last:  s.cfg.Server.MaxPort,
	}
}

// Start negotiates a port, records it and serves until ctx is done. It
// returns *AlreadyRunningError, leaving the port record alone, when
// another instance is up.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.Negotiator().Negotiate(ctx)
	if err != nil {
		return err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := WritePortFile(s.portFile, port); err != nil {
		ln.Close()
		return err
	}
	log.Printf("[Server] Port %d written to %s", port, s.portFile)
	return s.Serve(ctx, ln)
}

// Serve serves on ln and watches the baseline directory until ctx is
// done, then shuts everything down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	watcher, err := NewWatcher(s.baselineDir, func(name string) {
		s.hub.Broadcast(map[string]interface{}{"action": "baseline", "file": name})
	}, s.debug)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = watcher
	watcher.Start()
	log.Printf("[Watch] Watching baselines in %s", s.baselineDir)

	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[Server] Listening on http://%s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("[Server] Shutting down")
		// Kill running children before waiting on their handlers.
		s.cancel()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close stops the watcher and any running commands.
func (s *Server) Close() error {
	s.cancel()
	<-s.rlDone
	if s.watcher != nil {
		err := s.watcher.Stop()
		s.watcher = nil
		return err
	}
	return nil
}
