// Package notify persists side notices and delivers them out of band.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"academy/internal/dbtime"
	"academy/internal/effect"
	"academy/internal/metrics"
	"academy/internal/model"
	"academy/internal/queue"
	"academy/internal/store"
)

// PublishTimeout bounds how long Dispatch waits on the queue before leaving the row to the sweep.
const PublishTimeout = 2 * time.Second

// Dispatcher records a notification and hands its id to the delivery queue.
type Dispatcher struct {
	db             *store.DB
	queue          queue.Queue
	publishTimeout time.Duration
	log            zerolog.Logger
	now            func() time.Time
}

// NewDispatcher creates a dispatcher. A nil queue leaves notifications for the worker's sweep.
func NewDispatcher(db *store.DB, q queue.Queue, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		db:             db,
		queue:          q,
		publishTimeout: PublishTimeout,
		log:            log.With().Str("component", "notify").Logger(),
		now:            time.Now,
	}
}

// WithPublishTimeout overrides PublishTimeout.
func (d *Dispatcher) WithPublishTimeout(timeout time.Duration) *Dispatcher {
	d.publishTimeout = timeout
	return d
}

// Dispatch is best effort. Its Result is for logging, never for failing the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, n model.Notification) effect.Result {
	res := effect.Attempt(ctx, "notify."+n.Kind, func(ctx context.Context) error {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		n.CreatedAt = dbtime.Now(d.now())
		if err := NewRepository(d.db).Insert(ctx, n); err != nil {
			return err
		}
		if d.queue == nil {
			return nil
		}
		// The row is already stored; a slow broker must not hold up the caller.
		pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
		defer cancel()
		return d.queue.Publish(pubCtx, queue.Message{Type: queue.TypeNotification, Body: []byte(n.ID)})
	})
	if res.OK() {
		metrics.Notifications.WithLabelValues("dispatched").Inc()
		d.log.Debug().Str("notification", n.ID).Str("kind", n.Kind).Str("recipient", n.RecipientEmail).Msg("notification dispatched")
	} else {
		metrics.Notifications.WithLabelValues("dispatch_failed").Inc()
	}
	return res
}
