// Package app wires the application together: connection strategy,
// schema, pool, store, flow engine client, analyzer and tracing, with
// ordered shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastinnovation/fastchat/internal/analyzer"
	"github.com/fastinnovation/fastchat/internal/auth"
	"github.com/fastinnovation/fastchat/internal/chatstore"
	"github.com/fastinnovation/fastchat/internal/config"
	"github.com/fastinnovation/fastchat/internal/flowclient"
	"github.com/fastinnovation/fastchat/internal/observability"
	"github.com/fastinnovation/fastchat/internal/sqlc"
	"github.com/fastinnovation/fastchat/internal/storage"
)

// traceFlushTimeout bounds the final span flush during shutdown.
const traceFlushTimeout = 5 * time.Second

// App is the application container. Fields are populated by Setup and
// released, in reverse order, by Close.
type App struct {
	Config   *config.Config
	Pool     *storage.Pool
	Store    *chatstore.Store
	Flow     *flowclient.Client
	Analyzer *analyzer.Analyzer
	Verifier auth.TokenVerifier

	logger        *slog.Logger
	traceShutdown func(context.Context) error
}

// Setup validates configuration, ensures the schema, opens the pool and
// constructs every service. On failure everything already opened is
// released before the error returns.
func Setup(ctx context.Context, cfg *config.Config) (app *App, err error) {
	logger := slog.Default()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	strategy, err := storage.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolving connection strategy: %w", err)
	}
	logger.Info("database connectivity resolved", "strategy", strategy.Name())

	if err := storage.EnsureSchema(ctx, strategy); err != nil {
		strategy.Close() //nolint:errcheck // pool not open yet, nothing owns the strategy
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	pool, err := storage.Open(ctx, strategy, storage.PoolConfig{
		MinConns:       cfg.PoolMinConns,
		MaxConns:       cfg.PoolMaxConns,
		AcquireTimeout: cfg.AcquireTimeout(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening connection pool: %w", err)
	}
	a.Pool = pool

	a.Store = chatstore.New(sqlc.New(pool.Pgx()), pool, logger)

	if cfg.FlowEngine.BaseURL != "" {
		flow, err := flowclient.Default(flowclient.Config{
			BaseURL: cfg.FlowEngine.BaseURL,
			FlowID:  cfg.FlowEngine.FlowID,
			APIKey:  cfg.FlowEngine.APIKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating flow engine client: %w", err)
		}
		a.Flow = flow
		if err := flow.CheckConnection(ctx); err != nil {
			// Not fatal: the engine may come up later.
			logger.Warn("flow engine not reachable at startup", "error", err)
		}
	} else {
		logger.Warn("flow engine not configured, chat endpoint disabled")
	}

	if cfg.GeminiModel != "" {
		gen, err := analyzer.DefaultGemini(ctx, cfg.GeminiModel)
		if err != nil {
			// Analysis is a background enrichment, not core chat flow.
			logger.Warn("gemini unavailable, analysis disabled", "error", err)
		} else {
			a.Analyzer, err = analyzer.New(gen, a.Store, cfg.GeminiModel, logger)
			if err != nil {
				return nil, fmt.Errorf("creating analyzer: %w", err)
			}
		}
	}

	// TODO(auth): swap in a Firebase verifier once the frontend moves off
	// static development tokens.
	a.Verifier = auth.StaticVerifier{}
	if cfg.Environment == config.EnvProduction {
		logger.Warn("static token verifier active in production")
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.Otel.AgentHost,
		ServiceName: cfg.Otel.ServiceName,
		Environment: cfg.Otel.Environment,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.traceShutdown = shutdown

	return a, nil
}

// Close releases resources in reverse initialization order.
func (a *App) Close() error {
	var errs []error

	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), traceFlushTimeout)
		if err := a.traceShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing traces: %w", err))
		}
		cancel()
		a.traceShutdown = nil
	}

	if a.Pool != nil {
		if err := a.Pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing pool: %w", err))
		}
		a.Pool = nil
		if a.logger != nil {
			a.logger.Info("database pool closed")
		}
	}

	return errors.Join(errs...)
}
