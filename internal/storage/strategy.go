// Package storage owns physical database connectivity: the connection
// strategy (direct TCP vs. Cloud SQL connector), the process-wide pgx
// pool, and the schema guard. Everything above this package talks to
// PostgreSQL through the Pool; nothing else opens connections.
package storage

import (
	"context"
	"fmt"
	"net"
	"sync"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastinnovation/fastchat/internal/config"
)

// Strategy produces a ready-to-use pool configuration for one of the two
// supported connectivity modes. Implementations must not dial during
// construction; the first network activity happens when the pool opens.
type Strategy interface {
	// PoolConfig returns the pgx pool configuration for this mode.
	PoolConfig(ctx context.Context) (*pgxpool.Config, error)

	// Name identifies the mode for logging.
	Name() string

	// Close releases resources held by the strategy (the managed
	// connector's dialer). Safe to call once after the pool is closed.
	Close() error
}

// Resolve selects the connection strategy from configuration. Pure: no
// network call occurs here. Misconfiguration fails with ErrConfiguration
// before any pool is created.
func Resolve(cfg *config.Config) (Strategy, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfiguration)
	}

	if cfg.UseCloudSQL && cfg.Environment == config.EnvProduction {
		if cfg.InstanceConnName == "" {
			return nil, fmt.Errorf("%w: managed connector mode requires an instance connection name",
				ErrConfiguration)
		}
		return &managedStrategy{
			instance: cfg.InstanceConnName,
			dsn:      cfg.ManagedDSN(),
		}, nil
	}

	if cfg.UseCloudSQL {
		// Development against a local auth proxy: plain TCP to 127.0.0.1.
		return &directStrategy{
			dsn: fmt.Sprintf("host=127.0.0.1 port=5432 user=%s password='%s' dbname=%s sslmode=disable",
				cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDBName),
		}, nil
	}

	return &directStrategy{dsn: cfg.PostgresDSN()}, nil
}

// directStrategy connects over standard TCP using host/port parameters.
type directStrategy struct {
	dsn string
}

func (s *directStrategy) PoolConfig(_ context.Context) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(s.dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing connection config: %v", ErrConfiguration, err)
	}
	return poolCfg, nil
}

func (s *directStrategy) Name() string { return "direct" }

func (s *directStrategy) Close() error { return nil }

// managedStrategy connects through the Cloud SQL connector. The dialer is
// created lazily on first PoolConfig call and authenticates with the
// instance without exposing a host or port.
type managedStrategy struct {
	instance string
	dsn      string

	mu     sync.Mutex
	dialer *cloudsqlconn.Dialer
}

func (s *managedStrategy) PoolConfig(ctx context.Context) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(s.dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing connection config: %v", ErrConfiguration, err)
	}

	d, err := s.getDialer(ctx)
	if err != nil {
		return nil, err
	}

	instance := s.instance
	poolCfg.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return d.Dial(ctx, instance)
	}
	return poolCfg, nil
}

func (s *managedStrategy) getDialer(ctx context.Context) (*cloudsqlconn.Dialer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialer != nil {
		return s.dialer, nil
	}
	// Lazy refresh defers certificate fetching to the first Dial, keeping
	// strategy construction free of network activity.
	d, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithLazyRefresh())
	if err != nil {
		return nil, fmt.Errorf("%w: creating Cloud SQL dialer: %v", ErrConfiguration, err)
	}
	s.dialer = d
	return d, nil
}

func (s *managedStrategy) Name() string { return "cloud-sql-connector" }

func (s *managedStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialer == nil {
		return nil
	}
	err := s.dialer.Close()
	s.dialer = nil
	if err != nil {
		return fmt.Errorf("closing Cloud SQL dialer: %w", err)
	}
	return nil
}
