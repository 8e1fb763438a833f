// Package api exposes the secret-lifecycle boundary as a localhost JSON API
// for the setup-wizard UI layer.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sealbox/sealbox/internal/jobs"
	"github.com/sealbox/sealbox/internal/oauth"
	"github.com/sealbox/sealbox/internal/vault"
)

// Deps holds the components the API serves.
type Deps struct {
	Vault       *vault.Vault
	Coordinator *oauth.Coordinator
	Scheduler   *jobs.Scheduler
	Logger      *slog.Logger
}

// Server is the localhost HTTP boundary.
type Server struct {
	deps Deps
	srv  *http.Server
	addr string
}

// NewServer creates a Server. Addr defaults to a loopback ephemeral port.
func NewServer(deps Deps, addr string) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	return &Server{deps: deps, addr: addr}
}

// Handler returns the HTTP handler for all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/secrets", s.handleSaveSecret)
	mux.HandleFunc("GET /api/secrets", s.handleListSecrets)
	mux.HandleFunc("GET /api/secrets/{id}", s.handleGetSecret)
	mux.HandleFunc("DELETE /api/secrets/{id}", s.handleDeleteSecret)

	mux.HandleFunc("POST /api/vault/export", s.handleExportVault)
	mux.HandleFunc("POST /api/vault/import", s.handleImportVault)

	mux.HandleFunc("POST /api/oauth/start", s.handleStartOAuth)
	mux.HandleFunc("GET /api/oauth/{id}", s.handlePollOAuth)

	mux.HandleFunc("POST /api/jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handlePollJob)

	return mux
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind api listener on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("api server error", slog.String("error", err.Error()))
		}
	}()
	s.deps.Logger.Info("api server started", slog.String("addr", s.addr))
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.addr }

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
