package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastinnovation/fastchat/internal/log"
	"github.com/fastinnovation/fastchat/internal/testutil"
)

func openTestPool(t *testing.T, cfg PoolConfig) *Pool {
	t.Helper()

	tdb := testutil.SetupTestDB(t)
	strategy, err := Resolve(tdb.Config(t))
	require.NoError(t, err)

	pool, err := Open(context.Background(), strategy, cfg, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestPoolOpenAndHealthy(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool := openTestPool(t, PoolConfig{
		MinConns:       1,
		MaxConns:       4,
		AcquireTimeout: 2 * time.Second,
	})
	ctx := context.Background()

	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, pool.Healthy(ctx))
	assert.Equal(t, int32(4), pool.Stat().MaxConns())
}

func TestPoolAcquireExhaustion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool := openTestPool(t, PoolConfig{
		MinConns:       1,
		MaxConns:       1,
		AcquireTimeout: 300 * time.Millisecond,
	})
	ctx := context.Background()

	held, err := pool.Acquire(ctx)
	require.NoError(t, err)

	// Pool is saturated: the second acquire must fail with exhaustion
	// once the acquire timeout elapses, not hang.
	start := time.Now()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Less(t, time.Since(start), 2*time.Second)

	held.Release()

	// Capacity returned: acquisition works again.
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	conn.Release()
}

func TestPoolAcquireCallerCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool := openTestPool(t, PoolConfig{
		MinConns:       1,
		MaxConns:       1,
		AcquireTimeout: 5 * time.Second,
	})

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	// Caller cancellation is not exhaustion: the error must carry the
	// caller's context error instead of ErrPoolExhausted.
	_, err = pool.Acquire(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPoolExhausted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolBegin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool := openTestPool(t, PoolConfig{
		MinConns:       1,
		MaxConns:       2,
		AcquireTimeout: 2 * time.Second,
	})
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)

	var one int
	require.NoError(t, tx.QueryRow(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
	require.NoError(t, tx.Rollback(ctx))
}

func TestPoolOpenUnreachable(t *testing.T) {
	strategy := &directStrategy{
		dsn: "host=127.0.0.1 port=1 user=nobody dbname=nothing sslmode=disable connect_timeout=1",
	}

	_, err := Open(context.Background(), strategy, PoolConfig{
		MinConns:       1,
		MaxConns:       2,
		AcquireTimeout: time.Second,
	}, log.NewNop())
	assert.ErrorIs(t, err, ErrConnection)
}
