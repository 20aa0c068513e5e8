package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/fastinnovation/fastchat/db"
)

var (
	schemaOnce sync.Once
	schemaErr  error
)

// EnsureSchema verifies required tables and constraints exist, creating
// them through embedded migrations if absent. It runs at most once per
// process; later calls return the first outcome. Failure is fatal to
// startup — the process must not serve traffic against an unverified
// schema.
//
// Migrations run over a database/sql handle built from the strategy's
// connection config, so the managed connector path works without a TCP
// URL.
func EnsureSchema(ctx context.Context, strategy Strategy) error {
	schemaOnce.Do(func() {
		schemaErr = runSchemaMigrations(ctx, strategy)
	})
	return schemaErr
}

func runSchemaMigrations(ctx context.Context, strategy Strategy) error {
	poolCfg, err := strategy.PoolConfig(ctx)
	if err != nil {
		return err
	}

	sqlDB := stdlib.OpenDB(*poolCfg.ConnConfig)
	defer func() {
		if err := sqlDB.Close(); err != nil {
			slog.Warn("closing migration connection", "error", err)
		}
	}()

	if err := db.MigrateDB(sqlDB); err != nil {
		return fmt.Errorf("verifying schema: %w", err)
	}
	return nil
}

// resetSchemaGuard clears the once-per-process flag. Tests only.
func resetSchemaGuard() {
	schemaOnce = sync.Once{}
	schemaErr = nil
}
