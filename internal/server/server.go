// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/misterio/internal/chat"
	"github.com/jeranaias/misterio/internal/config"
	"github.com/jeranaias/misterio/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8501"

	// SessionCookie names the cookie carrying the session ID.
	SessionCookie = "misterio_session"

	// MaxMessageLength is the maximum length of one user message.
	MaxMessageLength = 32 * 1024

	// MaxRequestBodySize is the maximum size for request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// DefaultSweepInterval is how often idle sessions are swept.
	DefaultSweepInterval = time.Minute

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second
)

//go:embed assets
var assets embed.FS

var pageTemplate = template.Must(template.ParseFS(assets, "assets/index.html"))

// ============================================================================
// OPTIONS
// ============================================================================

// ThemeSource supplies the current theme file result on every render.
type ThemeSource interface {
	Current() config.Result
}

// StaticTheme is a ThemeSource that never changes.
type StaticTheme config.Result

// Current implements ThemeSource.
func (t StaticTheme) Current() config.Result {
	return config.Result(t)
}

// runner is implemented by theme sources that watch for changes.
type runner interface {
	Run(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address for Run.
	Addr string
	// Completer runs completions. Nil disables chat; pages still render.
	Completer chat.Completer
	// Sessions holds per-browser state. Nil creates a default store.
	Sessions *session.Store
	// Theme supplies primaryColor and advisories. Nil means no theme file.
	Theme ThemeSource
	// SecureCookies sets the Secure flag on the session cookie.
	SecureCookies bool
	// SweepInterval is how often idle sessions are ended.
	SweepInterval time.Duration
	// Version is reported by /health.
	Version string
	// Logger receives request and lifecycle logs.
	Logger *zerolog.Logger
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the misterio web host.
type Server struct {
	opts     Options
	sessions *session.Store
	theme    ThemeSource
	logger   zerolog.Logger
	router   *http.ServeMux
	handler  http.Handler
	upgrader websocket.Upgrader
	started  time.Time
	ended    atomic.Int64

	mu     sync.Mutex
	server *http.Server
}

// New creates a Server from opts.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		opts:     opts,
		sessions: opts.Sessions,
		theme:    opts.Theme,
		router:   http.NewServeMux(),
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if s.sessions == nil {
		s.sessions = session.NewStore(session.DefaultConfig())
	}
	s.sessions.SetEndCallback(s.sessionEnded)
	if s.theme == nil {
		s.theme = StaticTheme{}
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "server").Logger()
	} else {
		s.logger = log.With().Str("component", "server").Logger()
	}

	s.setupRoutes()
	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
	)(s.router)
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions returns the session store.
func (s *Server) Sessions() *session.Store {
	return s.sessions
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.HandleFunc("POST /chat", s.handleChat)
	s.router.HandleFunc("GET /ws", s.handleWS)
	s.router.HandleFunc("GET /api/history", s.handleHistory)
	s.router.HandleFunc("GET /api/session", s.handleSession)
	s.router.HandleFunc("DELETE /api/session", s.handleEndSession)
	s.router.HandleFunc("GET /health", s.handleHealth)

	static, err := fs.Sub(assets, "assets/static")
	if err != nil {
		panic(fmt.Sprintf("embedded assets missing: %v", err))
	}
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully. The
// session sweeper and, when the theme source watches its file, the theme
// watcher run alongside and stop with it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: turns stream for as long as the model takes.
	}
	s.mu.Lock()
	s.server = httpServer
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Str("version", s.opts.Version).Msg("server started")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.sessions.Run(gctx, s.opts.SweepInterval)
	})

	if r, ok := s.theme.(runner); ok {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.server
	s.mu.Unlock()

	if httpServer == nil {
		return nil
	}

	s.logger.Info().Int("sessions", s.sessions.Len()).Msg("server shutting down")
	return httpServer.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write JSON response")
	}
}

// truncateString truncates a string to the specified length.
// Uses rune-based truncation to handle Unicode correctly.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
