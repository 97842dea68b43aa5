package enrollment

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"academy/internal/model"
)

// Repository writes the ledger rows: enrollments and the two capacity counters.
type Repository struct {
	db sqlx.ExtContext
}

// NewRepository binds a repository to a DB or transaction.
func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

// ReserveSeat increments the batch counter only while a seat is free. Missing capacity
// fields count as open. It reports false when the batch is full.
func (r *Repository) ReserveSeat(ctx context.Context, batchID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE batches
		SET enrolled_students = COALESCE(enrolled_students, 0) + 1
		WHERE id = ?
		  AND (total_students IS NULL OR COALESCE(enrolled_students, 0) < total_students)
	`), batchID)
	if err != nil {
		return false, errors.Wrap(err, "reserve seat")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "reserve seat rows")
	}
	return n == 1, nil
}

// IncrementCourse bumps the course-wide enrollment counter.
func (r *Repository) IncrementCourse(ctx context.Context, courseID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE courses SET enrolled_students = enrolled_students + 1 WHERE id = ?`), courseID)
	return errors.Wrap(err, "increment course")
}

// Insert creates the membership row. The (student_email, batch_id) unique key rejects duplicates.
func (r *Repository) Insert(ctx context.Context, e model.Enrollment) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO enrollments (id, student_email, batch_id, course_id, status, attendance, daily_time_spent_min, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
	`), e.ID, model.NormalizeEmail(e.StudentEmail), e.BatchID, e.CourseID, e.Status, e.CreatedAt, e.UpdatedAt)
	return errors.Wrap(err, "insert enrollment")
}

// ListByStudent returns a student's enrollments, newest first.
func (r *Repository) ListByStudent(ctx context.Context, email string) ([]model.Enrollment, error) {
	var out []model.Enrollment
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT id, student_email, batch_id, course_id, status, attendance, daily_time_spent_min,
		       last_session_date, created_at, updated_at
		FROM enrollments
		WHERE student_email = ?
		ORDER BY created_at DESC
	`), model.NormalizeEmail(email))
	return out, errors.Wrap(err, "list enrollments")
}
