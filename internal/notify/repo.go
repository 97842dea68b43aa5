package notify

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"academy/internal/apperr"
	"academy/internal/dbtime"
	"academy/internal/model"
	"academy/internal/store"
)

// Repository persists notifications awaiting delivery.
type Repository struct {
	db sqlx.ExtContext
}

// NewRepository creates a repo over a DB or transaction.
func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

// Insert writes a new notification.
func (r *Repository) Insert(ctx context.Context, n model.Notification) error {
	payload := n.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO notifications (id, recipient_email, kind, title, message, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), n.ID, n.RecipientEmail, n.Kind, n.Title, n.Message, string(payload), n.CreatedAt)
	return errors.Wrap(err, "insert notification")
}

// Get loads one notification.
func (r *Repository) Get(ctx context.Context, id string) (model.Notification, error) {
	var n model.Notification
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`
		SELECT id, recipient_email, kind, title, message, payload, created_at, delivered_at
		FROM notifications WHERE id = ?
	`), id)
	if store.IsNoRows(err) {
		return model.Notification{}, apperr.E(apperr.NotFound, "notification %s not found", id)
	}
	return n, errors.Wrap(err, "get notification")
}

// MarkDelivered stamps delivered_at once; later calls leave the first stamp.
func (r *Repository) MarkDelivered(ctx context.Context, id string, at dbtime.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE notifications SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL`), at, id)
	return errors.Wrap(err, "mark notification delivered")
}

// Undelivered lists notifications without a delivery stamp, oldest first.
func (r *Repository) Undelivered(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.Notification
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT id, recipient_email, kind, title, message, payload, created_at, delivered_at
		FROM notifications WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT ?
	`), limit)
	return out, errors.Wrap(err, "list undelivered notifications")
}
