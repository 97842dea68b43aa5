// Package app builds the backends selected by configuration. Shared by the api and worker binaries.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"academy/internal/config"
	"academy/internal/lock"
	"academy/internal/notify"
	"academy/internal/queue"
	"academy/internal/store"
)

// Queue returns the configured notification queue and its closer.
func Queue(cfg config.App, rdb *store.Redis, log zerolog.Logger) (queue.Queue, func() error, error) {
	noop := func() error { return nil }
	switch cfg.QueueBackend {
	case "memory":
		return queue.NewInMemory(256), noop, nil
	case "redis":
		if rdb == nil {
			return nil, noop, fmt.Errorf("QUEUE_BACKEND=redis requires REDIS_ADDR")
		}
		return queue.NewRedisQueue(rdb.Client, "academy:notifications"), noop, nil
	case "amqp":
		q, err := queue.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, log)
		if err != nil {
			return nil, noop, err
		}
		return q, q.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported queue backend %q", cfg.QueueBackend)
	}
}

// Locker returns the configured per-key lock.
func Locker(cfg config.App, rdb *store.Redis) (lock.Locker, error) {
	switch cfg.LockBackend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("LOCK_BACKEND=redis requires REDIS_ADDR")
		}
		return lock.NewRedis(rdb.Client, "academy:lock:"), nil
	default:
		return lock.NewLocal(), nil
	}
}

// Sink returns the signed webhook sink when WEBHOOK_URL is set, otherwise the log sink.
func Sink(cfg config.App, log zerolog.Logger) notify.Sink {
	if cfg.WebhookURL != "" {
		return notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret)
	}
	return notify.LogSink{Log: log.With().Str("component", "log_sink").Logger()}
}
