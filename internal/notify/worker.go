package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"academy/internal/dbtime"
	"academy/internal/metrics"
	"academy/internal/queue"
	"academy/internal/store"
)

// Deliverer moves queued notifications to a sink and stamps them delivered.
type Deliverer struct {
	repo *Repository
	sink Sink
	log  zerolog.Logger
	now  func() time.Time
}

// NewDeliverer creates a deliverer over db.
func NewDeliverer(db *store.DB, sink Sink, log zerolog.Logger) *Deliverer {
	return &Deliverer{repo: NewRepository(db), sink: sink, log: log.With().Str("component", "deliverer").Logger(), now: time.Now}
}

// Deliver sends one notification by id. Already delivered notifications are skipped.
func (d *Deliverer) Deliver(ctx context.Context, id string) error {
	n, err := d.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.DeliveredAt != nil {
		return nil
	}
	if err := d.sink.Deliver(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues("delivery_failed").Inc()
		return err
	}
	metrics.Notifications.WithLabelValues("delivered").Inc()
	return d.repo.MarkDelivered(ctx, n.ID, dbtime.Now(d.now()))
}

// Sweep delivers notifications that never made it onto the queue.
func (d *Deliverer) Sweep(ctx context.Context, limit int) (int, error) {
	pending, err := d.repo.Undelivered(ctx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range pending {
		if err := d.Deliver(ctx, n.ID); err != nil {
			d.log.Warn().Err(err).Str("notification", n.ID).Msg("sweep delivery failed")
			continue
		}
		sent++
	}
	return sent, nil
}

// Run consumes q until ctx is done. Failed deliveries stay undelivered for the next sweep.
func (d *Deliverer) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if msg.Type != queue.TypeNotification {
			d.log.Warn().Str("type", msg.Type).Msg("unknown message type")
			continue
		}
		id := string(msg.Body)
		if err := d.Deliver(ctx, id); err != nil {
			d.log.Warn().Err(err).Str("notification", id).Msg("delivery failed")
			continue
		}
		d.log.Info().Str("notification", id).Msg("notification delivered")
	}
	return ctx.Err()
}

// Serve consumes q until ctx is done, sweeping undelivered rows at start and then every
// interval so notifications that missed the queue still go out.
func (d *Deliverer) Serve(ctx context.Context, q queue.Queue, every time.Duration, batch int) error {
	if every <= 0 {
		every = time.Minute
	}
	go d.sweepEvery(ctx, every, batch)
	return d.Run(ctx, q)
}

func (d *Deliverer) sweepEvery(ctx context.Context, every time.Duration, batch int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if n, err := d.Sweep(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Warn().Err(err).Msg("sweep failed")
		} else if n > 0 {
			d.log.Info().Int("delivered", n).Msg("sweep delivered pending notifications")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
