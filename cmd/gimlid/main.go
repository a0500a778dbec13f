package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/boriskellerman/gimli-sub008/internal/auth"
	"github.com/boriskellerman/gimli-sub008/internal/config"
	"github.com/boriskellerman/gimli-sub008/internal/mcp"
	"github.com/boriskellerman/gimli-sub008/internal/orchestrator"
	"github.com/boriskellerman/gimli-sub008/internal/ratelimit"
	"github.com/boriskellerman/gimli-sub008/internal/retry"
	"github.com/boriskellerman/gimli-sub008/internal/rpc"
	"github.com/boriskellerman/gimli-sub008/internal/runstore"
	"github.com/boriskellerman/gimli-sub008/internal/server"
	"github.com/boriskellerman/gimli-sub008/internal/telemetry"
	"github.com/boriskellerman/gimli-sub008/internal/workflow"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("GIMLI_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("gimli starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Seed client credentials from config. Missing keys just leave the
	// client unprovisioned.
	credentials := auth.NewCredentials()
	if cfg.AdminAPIKey != "" {
		if err := credentials.Add("admin", auth.RoleAdmin, cfg.AdminAPIKey); err != nil {
			return fmt.Errorf("seed admin client: %w", err)
		}
	} else {
		logger.Warn("no admin API key configured; admin client disabled")
	}
	if cfg.ReaderAPIKey != "" {
		if err := credentials.Add("reader", auth.RoleReader, cfg.ReaderAPIKey); err != nil {
			return fmt.Errorf("seed reader client: %w", err)
		}
	}

	// Create rate limiter.
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.New(ratelimit.Config{
			Enabled:       true,
			Window:        cfg.RateLimitWindow,
			MaxRequests:   cfg.MaxRequests,
			MaxConcurrent: cfg.MaxConcurrent,
		})
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: enabled",
			"window", cfg.RateLimitWindow, "max_requests", cfg.MaxRequests,
			"max_concurrent", cfg.MaxConcurrent)
	} else {
		logger.Info("rate limiting: disabled")
	}

	// Create run store, with SQLite archive when configured.
	runs := runstore.New(runstore.Config{TTL: cfg.RunTTL, MaxRuns: cfg.MaxRuns})
	var archive *runstore.Archive
	if cfg.RunArchivePath != "" {
		archive, err = runstore.OpenArchive(cfg.RunArchivePath, logger)
		if err != nil {
			return fmt.Errorf("run archive: %w", err)
		}
		defer func() { _ = archive.Close() }()
		runs = runs.WithArchive(archive)
		logger.Info("run archive: enabled", "path", cfg.RunArchivePath)
	}

	// Workflow backend connector.
	connector := workflow.NewADWClient(cfg.ADWBaseURL, cfg.ADWToken, cfg.ADWTimeout)

	// Orchestrator registry with trigger retry policy.
	registry := orchestrator.New(connector, runs, retry.Config{
		MaxAttempts:        cfg.RetryMaxAttempts,
		InitialDelay:       cfg.RetryInitialDelay,
		MaxDelay:           cfg.RetryMaxDelay,
		Multiplier:         cfg.RetryMultiplier,
		Jitter:             cfg.RetryJitter,
		RetryableErrors:    cfg.RetryableErrors,
		NonRetryableErrors: cfg.NonRetryableErrors,
		Logger:             logger,
	}, logger)
	defer registry.Close()

	// RPC dispatcher and MCP server share the same subsystems.
	dispatcher := rpc.New(rpc.Deps{
		Registry: registry,
		Runs:     runs,
		Archive:  archive,
		Logger:   logger,
	})
	mcpSrv := mcp.New(registry, runs, version)

	srv := server.New(server.Config{
		JWTMgr:              jwtMgr,
		Credentials:         credentials,
		Dispatcher:          dispatcher,
		Registry:            registry,
		Runs:                runs,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		// Graceful shutdown: stop accepting new HTTP requests and drain
		// in-flight ones, then cancel running workflow triggers so their
		// runs are recorded as terminal before the archive closes.
		slog.Info("gimli shutting down")
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpCancel()
		if err := srv.Shutdown(httpCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		registry.Close()
		return nil
	})

	return g.Wait()
}
