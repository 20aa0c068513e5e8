package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connection lifecycle defaults. Pool size bounds come from configuration.
const (
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 1 * time.Minute
	openPingTimeout   = 5 * time.Second
)

// PoolConfig bounds the pool and its acquire behavior.
type PoolConfig struct {
	MinConns       int32
	MaxConns       int32
	AcquireTimeout time.Duration
}

// Pool is the process-wide connection pool. It is constructed exactly once
// at startup (in app.Setup), injected into every consumer, and closed by
// the process entry point. Safe for concurrent use.
//
// Acquired connections are exclusively owned by the caller until released;
// pgxpool's background health check discards broken connections rather
// than handing them out.
type Pool struct {
	pool           *pgxpool.Pool
	strategy       Strategy
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// Open creates the connection pool using the given strategy and verifies
// connectivity with a bounded ping. Failure here surfaces as a retryable
// ErrConnection: nothing is left initialized, so the caller may retry.
func Open(ctx context.Context, strategy Strategy, cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := strategy.PoolConfig(ctx)
	if err != nil {
		return nil, err
	}

	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = maxConnLifetime
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating connection pool: %v", ErrConnection, err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, openPingTimeout)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ErrConnection, err)
	}

	logger.Info("database pool opened",
		"strategy", strategy.Name(),
		"min_conns", cfg.MinConns,
		"max_conns", cfg.MaxConns,
		"acquire_timeout", cfg.AcquireTimeout)

	return &Pool{
		pool:           pool,
		strategy:       strategy,
		acquireTimeout: cfg.AcquireTimeout,
		logger:         logger,
	}, nil
}

// Acquire returns a scoped connection. The wait is bounded by the
// configured acquire timeout; expiry yields ErrPoolExhausted rather than
// an indefinite hang. Cancellation of ctx is honored and never leaks the
// connection. Callers must Release() the returned connection on every
// exit path.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, p.classifyAcquireErr(ctx, acquireCtx, err)
	}
	return conn, nil
}

// Begin starts a transaction on a pooled connection, with the same
// acquire-timeout semantics as Acquire.
func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	tx, err := p.pool.Begin(acquireCtx)
	if err != nil {
		return nil, p.classifyAcquireErr(ctx, acquireCtx, err)
	}
	return tx, nil
}

func (p *Pool) classifyAcquireErr(ctx, acquireCtx context.Context, err error) error {
	// Distinguish "our deadline fired while the caller was still
	// interested" (exhaustion) from caller cancellation.
	if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: no connection available within %s", ErrPoolExhausted, p.acquireTimeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("acquiring connection: %w", ctx.Err())
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// Ping verifies a live connection can be acquired and answers.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Healthy is the synchronous readiness probe: pool reachable and a trivial
// query succeeds.
func (p *Pool) Healthy(ctx context.Context) error {
	var one int
	if err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: health query: %v", ErrConnection, err)
	}
	return nil
}

// Stat exposes pool statistics (for readiness reporting).
func (p *Pool) Stat() *pgxpool.Stat {
	return p.pool.Stat()
}

// Pgx exposes the underlying pgx pool for the query layer.
func (p *Pool) Pgx() *pgxpool.Pool {
	return p.pool
}

// Close tears down the pool and then the strategy. Explicit shutdown only;
// the pool is never abandoned to garbage collection.
func (p *Pool) Close() error {
	p.pool.Close()
	p.logger.Info("database pool closed")
	if err := p.strategy.Close(); err != nil {
		return err
	}
	return nil
}
