package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("CELERY_BROKER_URL", "redis://broker:6379/2")
	t.Setenv("RUNTIME_CELERY", "true")
	t.Setenv("SANDBOX_POOL_SIZE", "5")
	t.Setenv("SANDBOX_EXEC_TIMEOUT", "90s")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "redis://broker:6379/2", cfg.BrokerURL)
	assert.True(t, cfg.RuntimeWorker)
	assert.Equal(t, 5, cfg.PoolSize)
	assert.Equal(t, 90*time.Second, cfg.ExecTimeout)
}

func TestDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "redis://redis:6379/0", cfg.BrokerURL)
	assert.Equal(t, 8000, cfg.HTTPPort)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, "code-sandbox", cfg.SandboxImage)
	assert.Equal(t, "/host_tmpfs", cfg.HostTmpfsBind)
	assert.False(t, cfg.RuntimeWorker)
	assert.Equal(t, time.Duration(0), cfg.ExecTimeout)
	assert.Equal(t, 168*time.Hour, cfg.MarketDataTTL)
}

func TestResultBackendFallsBackToBroker(t *testing.T) {
	cfg := &Config{BrokerURL: "redis://redis:6379/0", PoolSize: 1, WorkerConcurrency: 1, AcquireTimeout: time.Second}
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, cfg.BrokerURL, cfg.ResultBackendURL)

	cfg.ResultBackendURL = "redis://other:6379/1"
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, "redis://other:6379/1", cfg.ResultBackendURL)
}

func TestResolveDefaultsValidation(t *testing.T) {
	base := func() *Config {
		return &Config{PoolSize: 1, WorkerConcurrency: 1, AcquireTimeout: time.Second}
	}

	c := base()
	c.PoolSize = 0
	require.Error(t, c.ResolveDefaults())

	c = base()
	c.WorkerConcurrency = -1
	require.Error(t, c.ResolveDefaults())

	c = base()
	c.AcquireTimeout = 0
	require.Error(t, c.ResolveDefaults())
}

func TestGetHTTPAddr(t *testing.T) {
	cfg := NewForTesting()
	assert.Equal(t, ":8000", cfg.GetHTTPAddr())
}
