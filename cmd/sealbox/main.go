package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sealbox/sealbox/internal/actions"
	"github.com/sealbox/sealbox/internal/api"
	"github.com/sealbox/sealbox/internal/browser"
	"github.com/sealbox/sealbox/internal/crypto"
	"github.com/sealbox/sealbox/internal/expressions"
	"github.com/sealbox/sealbox/internal/jobs"
	"github.com/sealbox/sealbox/internal/lifecycle"
	"github.com/sealbox/sealbox/internal/logging"
	"github.com/sealbox/sealbox/internal/oauth"
	"github.com/sealbox/sealbox/internal/store"
	"github.com/sealbox/sealbox/internal/vault"
	sealboxmcp "github.com/sealbox/sealbox/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", slog.String("error", closeErr.Error()))
		}
	}()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("store ready", slog.String("path", cfg.DBPath))

	key, backend, err := buildVaultBackend(ctx, cfg, st)
	if err != nil {
		return err
	}
	v := vault.New(backend, key, logger)

	coord := oauth.NewCoordinator(oauth.Config{
		MaxSessions: cfg.MaxOAuthSessions,
		SessionTTL:  duration(cfg.OAuthSessionTTL, 5*time.Minute),
	}, logger)
	if err := coord.Start(ctx); err != nil {
		return err
	}
	logger.Info("oauth callback listener bound", slog.String("redirect_uri", coord.RedirectURI()))

	pool, err := browser.NewPool(cfg.PoolSize, filepath.Join(sealboxDir(), "profiles"), logger)
	if err != nil {
		return err
	}

	registry := actions.NewRegistry()
	if err := actions.RegisterBuiltins(registry, actions.HTTPConfig{}); err != nil {
		return err
	}

	scheduler := jobs.NewScheduler(jobs.Config{
		MaxConcurrent: cfg.MaxJobs,
		JobTTL:        duration(cfg.JobTTL, 2*time.Minute),
	}, registry, pool, expressions.NewInterpolator(v), logger)

	sweeps := lifecycle.NewRunner(logger)
	sweepEvery := duration(cfg.SweepInterval, 30*time.Second)
	if err := sweeps.Add("oauth_sessions", sweepEvery, coord); err != nil {
		return err
	}
	if err := sweeps.Add("jobs", sweepEvery, scheduler); err != nil {
		return err
	}
	sweeps.Start()

	// "sealbox mcp" serves the tool surface over stdio instead of HTTP.
	if len(os.Args) > 1 && os.Args[1] == "mcp" {
		mcpSrv := sealboxmcp.NewSealboxServer(sealboxmcp.SealboxServerDeps{
			Vault:       v,
			Coordinator: coord,
			Scheduler:   scheduler,
			Logger:      logger,
		})
		logger.Info("mcp server listening on stdio")
		err := mcpSrv.Serve(ctx)
		shutdown(logger, sweeps, scheduler, coord, nil)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	apiSrv := api.NewServer(api.Deps{
		Vault:       v,
		Coordinator: coord,
		Scheduler:   scheduler,
		Logger:      logger,
	}, cfg.ListenAddr)
	if err := apiSrv.Start(ctx); err != nil {
		return err
	}
	logger.Info("sealbox started", slog.String("addr", apiSrv.Addr()))

	<-ctx.Done()
	logger.Info("shutting down")
	shutdown(logger, sweeps, scheduler, coord, apiSrv)
	logger.Info("shutdown complete")
	return nil
}

// shutdown stops components in reverse dependency order: stop accepting work,
// drain jobs, then release the callback listener.
func shutdown(logger *slog.Logger, sweeps *lifecycle.Runner, scheduler *jobs.Scheduler, coord *oauth.Coordinator, apiSrv *api.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if apiSrv != nil {
		if err := apiSrv.Stop(shutdownCtx); err != nil {
			logger.Error("api shutdown error", slog.String("error", err.Error()))
		}
	}
	if err := sweeps.Stop(shutdownCtx); err != nil {
		logger.Error("sweep runner shutdown error", slog.String("error", err.Error()))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", slog.String("error", err.Error()))
	}
	if err := coord.Stop(shutdownCtx); err != nil {
		logger.Error("oauth coordinator shutdown error", slog.String("error", err.Error()))
	}
}

func buildVaultBackend(ctx context.Context, cfg Config, st *store.LibSQLStore) (*crypto.Key, vault.Backend, error) {
	switch cfg.KeyBackend {
	case "passphrase":
		if cfg.Passphrase == "" {
			return nil, nil, fmt.Errorf("key_backend is %q but SEALBOX_PASSPHRASE is not set", cfg.KeyBackend)
		}
		key, err := vault.LoadPassphraseKey(ctx, st, cfg.Passphrase)
		if err != nil {
			return nil, nil, err
		}
		return key, vault.NewLocalBackend(st), nil
	case "", "keyring":
		key, err := vault.LoadOrCreateKeyringKey(cfg.KeyringService)
		if err != nil {
			return nil, nil, err
		}
		return key, vault.NewKeyringBackend(st, cfg.KeyringService), nil
	default:
		return nil, nil, fmt.Errorf("unknown key_backend %q (want keyring or passphrase)", cfg.KeyBackend)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(inner))
	slog.SetDefault(logger)
	return logger
}
