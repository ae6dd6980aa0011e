package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradeforge/engine/internal/api"
	"github.com/tradeforge/engine/internal/config"
	"github.com/tradeforge/engine/internal/dispatch"
	"github.com/tradeforge/engine/internal/logger"
	"github.com/tradeforge/engine/internal/queue"
)

func main() {
	log := logger.New("engine-service")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	backend, err := queue.New(cfg.BrokerURL, cfg.ResultBackendURL, cfg.TaskResultTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Execution backend unavailable")
	}
	defer func() { _ = backend.Close() }()

	dispatcher := dispatch.NewDispatcher(backend, log)
	handler := api.NewHandler(dispatcher, backend, log)
	router := api.NewRouter(handler, backend, log)

	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server…")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
