package attendance

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"academy/internal/dbtime"
	"academy/internal/model"
)

// Repository persists attendance records, session time and the enrollment counters derived from them.
type Repository struct {
	db sqlx.ExtContext
}

// NewRepository creates a repo over a DB or transaction. Student emails are stored lowercased.
func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

// InsertRecord creates the record for its (student, batch, day) key. It reports false when
// the day was already recorded.
func (r *Repository) InsertRecord(ctx context.Context, rec model.AttendanceRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance_records (id, student_email, batch_id, day, status, remark, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_email, batch_id, day) DO NOTHING
	`), rec.ID, model.NormalizeEmail(rec.StudentEmail), rec.BatchID, rec.Day, rec.Status, rec.Remark, rec.Source, rec.CreatedAt)
	if err != nil {
		return false, errors.Wrap(err, "insert attendance record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "insert attendance record rows")
	}
	return n == 1, nil
}

// IncrementAttendance bumps the enrollment's attendance counter. It reports false when
// the student has no enrollment in the batch.
func (r *Repository) IncrementAttendance(ctx context.Context, studentEmail, batchID string, at dbtime.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE enrollments SET attendance = attendance + 1, updated_at = ?
		WHERE student_email = ? AND batch_id = ?
	`), at, model.NormalizeEmail(studentEmail), batchID)
	if err != nil {
		return false, errors.Wrap(err, "increment attendance")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "increment attendance rows")
}

// AddSessionMinutes adds minutes to the day's running total and returns the new total.
func (r *Repository) AddSessionMinutes(ctx context.Context, studentEmail, batchID string, day dbtime.Day, minutes int, at dbtime.Time) (int, error) {
	var total int
	err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(`
		INSERT INTO session_time_logs (id, student_email, batch_id, day, minutes_spent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_email, batch_id, day)
		DO UPDATE SET minutes_spent = session_time_logs.minutes_spent + excluded.minutes_spent,
		              updated_at = excluded.updated_at
		RETURNING minutes_spent
	`), uuid.NewString(), model.NormalizeEmail(studentEmail), batchID, day, minutes, at)
	return total, errors.Wrap(err, "add session minutes")
}

// MirrorSession copies the day's total onto the enrollment. It reports false when the
// student has no enrollment in the batch.
func (r *Repository) MirrorSession(ctx context.Context, studentEmail, batchID string, day dbtime.Day, total int, at dbtime.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE enrollments SET daily_time_spent_min = ?, last_session_date = ?, updated_at = ?
		WHERE student_email = ? AND batch_id = ?
	`), total, day, at, model.NormalizeEmail(studentEmail), batchID)
	if err != nil {
		return false, errors.Wrap(err, "mirror session time")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "mirror session time rows")
}

// ListRecords returns a batch's records for one day ordered by student.
func (r *Repository) ListRecords(ctx context.Context, batchID string, day dbtime.Day) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT id, student_email, batch_id, day, status, remark, source, created_at
		FROM attendance_records
		WHERE batch_id = ? AND day = ?
		ORDER BY student_email
	`), batchID, day)
	return out, errors.Wrap(err, "list attendance records")
}
