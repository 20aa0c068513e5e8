package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastinnovation/fastchat/internal/config"
)

func TestSetup_InvalidConfig(t *testing.T) {
	cfg := &config.Config{Environment: "staging"}

	_, err := Setup(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidEnvironment)
}

func TestSetup_ManagedModeWithoutInstance(t *testing.T) {
	cfg := &config.Config{
		Environment:          config.EnvProduction,
		UseCloudSQL:          true,
		PostgresUser:         "svc",
		PostgresPassword:     "real-password",
		PostgresDBName:       "fastchat",
		PostgresSSLMode:      "require",
		PoolMinConns:         1,
		PoolMaxConns:         10,
		PoolAcquireTimeoutMS: 5000,
	}

	_, err := Setup(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingInstanceName)
}

func TestClose_EmptyApp(t *testing.T) {
	a := &App{}
	assert.NoError(t, a.Close())
	// Close is safe to call again.
	assert.NoError(t, a.Close())
}
