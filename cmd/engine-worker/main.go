package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/tradeforge/engine/internal/config"
	"github.com/tradeforge/engine/internal/dispatch"
	"github.com/tradeforge/engine/internal/logger"
	"github.com/tradeforge/engine/internal/marketdata"
	"github.com/tradeforge/engine/internal/queue"
	"github.com/tradeforge/engine/internal/sandbox"
)

func main() {
	log := logger.New("engine-worker")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	// The sandbox pool is initialised only in job-worker processes.
	if !cfg.RuntimeWorker {
		log.Fatal().Msg("RUNTIME_CELERY must be true for worker processes")
	}

	backend, err := queue.New(cfg.BrokerURL, cfg.ResultBackendURL, cfg.TaskResultTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("execution backend")
	}
	defer func() { _ = backend.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := backend.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("broker ping")
	}

	runner, err := sandbox.NewDockerRunner(sandbox.RunnerConfig{
		Image:     cfg.SandboxImage,
		Network:   cfg.SandboxNetwork,
		BindPoint: cfg.HostTmpfsBind,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("docker")
	}

	pool, err := sandbox.NewPool(ctx, runner, cfg.ScratchRoot, cfg.PoolSize, log)
	if err != nil {
		log.Fatal().Err(err).Msg("sandbox pool")
	}
	defer pool.Shutdown(context.Background())

	cache := marketdata.NewCache(backend, marketdata.NewFetcher(cfg.DataURL), cfg.MarketDataTTL, log)

	executor := dispatch.NewExecutor(cache, pool, backend, dispatch.ExecutorConfig{
		AcquireTimeout: cfg.AcquireTimeout,
		ExecTimeout:    cfg.ExecTimeout,
		Command:        strings.Fields(cfg.SandboxCommand),
		Workdir:        cfg.HostTmpfsBind,
	}, log)

	worker := dispatch.NewWorker(uuid.NewString(), backend, executor, cfg.WorkerConcurrency, log)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker exited with error")
	}
}
