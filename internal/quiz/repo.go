package quiz

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"academy/internal/model"
)

const attemptColumns = `id, quiz_id, trainee_email, trainee_name, attempt_count, score, total_marks, status, answers, created_at`

// Repository persists quiz attempts.
type Repository struct {
	db sqlx.ExtContext
}

// NewRepository creates a repo over a DB or transaction.
func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

// IsActiveMember reports whether the trainee holds an active enrollment in the batch.
func (r *Repository) IsActiveMember(ctx context.Context, email, batchID string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(
		`SELECT COUNT(*) FROM enrollments WHERE student_email = ? AND batch_id = ? AND status = ?`),
		model.NormalizeEmail(email), batchID, model.EnrollmentActive)
	return n > 0, errors.Wrap(err, "check enrollment")
}

// CountAttempts counts the trainee's prior attempts on the quiz.
func (r *Repository) CountAttempts(ctx context.Context, quizID, email string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(
		`SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = ? AND trainee_email = ?`), quizID, model.NormalizeEmail(email))
	return n, errors.Wrap(err, "count attempts")
}

// Insert appends an attempt. Attempts are never updated.
func (r *Repository) Insert(ctx context.Context, a model.QuizAttempt) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO quiz_attempts (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), a.ID, a.QuizID, model.NormalizeEmail(a.TraineeEmail), a.TraineeName, a.AttemptCount, a.Score, a.TotalMarks, a.Status, string(a.Answers), a.CreatedAt)
	return errors.Wrap(err, "insert attempt")
}

// List returns attempts on a quiz in submission order, optionally for one trainee.
func (r *Repository) List(ctx context.Context, quizID, email string) ([]model.QuizAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE quiz_id = ?`
	args := []any{quizID}
	if email != "" {
		query += ` AND trainee_email = ?`
		args = append(args, model.NormalizeEmail(email))
	}
	query += ` ORDER BY trainee_email, attempt_count`

	var out []model.QuizAttempt
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(query), args...)
	return out, errors.Wrap(err, "list attempts")
}
