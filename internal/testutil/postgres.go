// Package testutil provides shared test infrastructure, following the
// pattern of packages like net/http/httptest.
package testutil

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fastinnovation/fastchat/db"
	"github.com/fastinnovation/fastchat/internal/config"
)

// TestDB wraps a PostgreSQL test container with a ready connection pool.
// The schema is already migrated.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts an isolated PostgreSQL container, applies the
// embedded migrations and opens a pool. Cleanup is registered on t; the
// container is gone when the test ends.
//
//	db := testutil.SetupTestDB(t)
//	var count int
//	err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("fastchat_test"),
		postgres.WithUsername("fastchat_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := db.Migrate(connStr); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return &TestDB{Container: pgContainer, Pool: pool, ConnStr: connStr}
}

// Config returns a direct-mode configuration pointing at the test
// container, suitable for exercising the strategy resolver and pool
// manager against a real server.
func (d *TestDB) Config(t *testing.T) *config.Config {
	t.Helper()

	u, err := url.Parse(d.ConnStr)
	if err != nil {
		t.Fatalf("failed to parse container connection string: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse container port: %v", err)
	}
	password, _ := u.User.Password()

	cfg := &config.Config{
		Environment:          "development",
		PostgresHost:         u.Hostname(),
		PostgresPort:         port,
		PostgresUser:         u.User.Username(),
		PostgresPassword:     password,
		PostgresDBName:       "fastchat_test",
		PostgresSSLMode:      "disable",
		PoolMinConns:         1,
		PoolMaxConns:         4,
		PoolAcquireTimeoutMS: 2000,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test configuration invalid: %v", err)
	}
	return cfg
}
