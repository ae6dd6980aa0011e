package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the backtest engine. The variable names
// that form the deployment contract (DATA_URL, CELERY_BROKER_URL,
// CELERY_RESULT_BACKEND, RUNTIME_CELERY, HOST_TMPFS_BIND) are read verbatim;
// engine tunables follow the same mechanism.
type Config struct {
	// Market-data origin: CSV per symbol appended to this base URL.
	DataURL string `envconfig:"DATA_URL" default:"http://data-origin:8080/daily/"`

	// Execution backend. The broker doubles as the result-and-cache
	// key-value store when CELERY_RESULT_BACKEND is unset.
	BrokerURL        string `envconfig:"CELERY_BROKER_URL" default:"redis://redis:6379/0"`
	ResultBackendURL string `envconfig:"CELERY_RESULT_BACKEND" default:""`

	// RuntimeWorker is true only in job-worker processes; the sandbox pool
	// is initialised nowhere else.
	RuntimeWorker bool `envconfig:"RUNTIME_CELERY" default:"false"`

	// In-container mount point of the scratch directory.
	HostTmpfsBind string `envconfig:"HOST_TMPFS_BIND" default:"/host_tmpfs"`

	// HTTP surface.
	HTTPPort int `envconfig:"ENGINE_HTTP_PORT" default:"8000"`

	// Sandbox pool.
	PoolSize       int           `envconfig:"SANDBOX_POOL_SIZE" default:"2"`
	SandboxImage   string        `envconfig:"SANDBOX_IMAGE" default:"code-sandbox"`
	SandboxNetwork string        `envconfig:"SANDBOX_NETWORK" default:"backend"`
	SandboxCommand string        `envconfig:"SANDBOX_COMMAND" default:"/app/execute"`
	ScratchRoot    string        `envconfig:"SCRATCH_ROOT" default:"/dev/shm/engine-scratch"`
	AcquireTimeout time.Duration `envconfig:"POOL_ACQUIRE_TIMEOUT" default:"30s"`

	// Optional wall deadline per sandbox execution; zero disables it. When
	// the deadline fires the worker is replaced, never reused.
	ExecTimeout time.Duration `envconfig:"SANDBOX_EXEC_TIMEOUT" default:"0"`

	// Job workers per process.
	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"4"`

	// TTLs.
	MarketDataTTL time.Duration `envconfig:"MARKET_DATA_TTL" default:"168h"`
	TaskResultTTL time.Duration `envconfig:"TASK_RESULT_TTL" default:"1h"`
}

// ResolveDefaults derives dependent settings and validates the rest.
func (c *Config) ResolveDefaults() error {
	if c.ResultBackendURL == "" {
		c.ResultBackendURL = c.BrokerURL
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("SANDBOX_POOL_SIZE must be positive, got %d", c.PoolSize)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("POOL_ACQUIRE_TIMEOUT must be positive, got %s", c.AcquireTimeout)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("data_url", cfg.DataURL).
		Str("broker", cfg.BrokerURL).
		Bool("runtime_worker", cfg.RuntimeWorker).
		Int("pool_size", cfg.PoolSize).
		Str("sandbox_image", cfg.SandboxImage).
		Int("port", cfg.HTTPPort).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config with local defaults for tests.
func NewForTesting() *Config {
	cfg := &Config{
		DataURL:           "http://localhost:8081/daily/",
		BrokerURL:         "redis://localhost:6379/0",
		RuntimeWorker:     true,
		HostTmpfsBind:     "/host_tmpfs",
		HTTPPort:          8000,
		PoolSize:          2,
		SandboxImage:      "code-sandbox",
		SandboxNetwork:    "backend",
		SandboxCommand:    "/app/execute",
		ScratchRoot:       "",
		AcquireTimeout:    30 * time.Second,
		WorkerConcurrency: 2,
		MarketDataTTL:     168 * time.Hour,
		TaskResultTTL:     time.Hour,
	}
	_ = cfg.ResolveDefaults()
	return cfg
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
