package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"academy/internal/app"
	"academy/internal/config"
	"academy/internal/logger"
	"academy/internal/notify"
	"academy/internal/store"
)

// Worker consumes queued notification ids and delivers them through the configured sink.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty).With().Str("process", "worker").Logger()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		log.Fatal().Msg("QUEUE_BACKEND=memory delivers inside the api process; run the worker with redis or amqp")
	}

	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()

	q, closeQueue, err := app.Queue(cfg, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("queue init failed")
	}
	defer closeQueue()

	deliverer := notify.NewDeliverer(db, app.Sink(cfg, log), log)

	log.Info().Str("queue", cfg.QueueBackend).Msg("worker started, waiting for messages...")
	if err := deliverer.Serve(ctx, q, time.Minute, 100); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker stopped with error")
		return
	}
	log.Info().Msg("worker stopped")
}
