// Package storetest opens migrated SQLite stores and seeds catalog rows for service tests.
package storetest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"academy/internal/model"
	"academy/internal/store"
)

// Open returns a migrated SQLite store in t's temp dir, closed on cleanup.
func Open(t testing.TB) *store.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "academy.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if err := store.Migrate(store.DriverSQLite, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := store.Open(context.Background(), store.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// PostgresDSNEnv names the variable holding a Postgres DSN for tests that need real
// concurrent connections.
const PostgresDSNEnv = "ACADEMY_TEST_POSTGRES_DSN"

// OpenPostgres returns a migrated Postgres store, skipping t when PostgresDSNEnv is unset.
// The database is shared between tests, so seed rows always use fresh ids.
func OpenPostgres(t testing.TB) *store.DB {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	if err := store.Migrate(store.DriverPostgres, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := store.Open(context.Background(), store.DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var (
	seedBase = time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC)
	seedTick atomic.Int64
)

// nextStamp hands out strictly increasing creation times so "first batch" ordering is stable.
func nextStamp() time.Time {
	return seedBase.Add(time.Duration(seedTick.Add(1)) * time.Second)
}

// Course inserts a course and returns its id.
func Course(t testing.TB, db *store.DB, title string) string {
	t.Helper()

	id := uuid.NewString()
	exec(t, db, `INSERT INTO courses (id, title, enrolled_students, created_at) VALUES (?, ?, 0, ?)`,
		id, title, nextStamp())
	return id
}

// BatchSeed describes a batch row; nil capacity pointers are stored as NULL.
type BatchSeed struct {
	CourseID      string
	Name          string
	TotalStudents *int
	Enrolled      *int
	TimeSlot      string
	Status        string
	TrainerEmail  string
}

// Batch inserts a batch and returns its id.
func Batch(t testing.TB, db *store.DB, seed BatchSeed) string {
	t.Helper()

	if seed.Status == "" {
		seed.Status = model.BatchOngoing
	}
	var slot, trainer any
	if seed.TimeSlot != "" {
		slot = seed.TimeSlot
	}
	if seed.TrainerEmail != "" {
		trainer = seed.TrainerEmail
	}
	var total, enrolled any
	if seed.TotalStudents != nil {
		total = *seed.TotalStudents
	}
	if seed.Enrolled != nil {
		enrolled = *seed.Enrolled
	}
	id := uuid.NewString()
	exec(t, db, `INSERT INTO batches (id, course_id, name, total_students, enrolled_students, time_slot, status, trainer_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, seed.CourseID, seed.Name, total, enrolled, slot, seed.Status, trainer, nextStamp())
	return id
}

// Enroll inserts an active enrollment directly, bypassing the ledger counters.
func Enroll(t testing.TB, db *store.DB, studentEmail, courseID, batchID string) string {
	t.Helper()

	id := uuid.NewString()
	now := nextStamp()
	exec(t, db, `INSERT INTO enrollments (id, student_email, batch_id, course_id, status, attendance, daily_time_spent_min, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		id, studentEmail, batchID, courseID, model.EnrollmentActive, now, now)
	return id
}

// QuizSeed describes a quiz row.
type QuizSeed struct {
	CourseID     string
	BatchID      string
	Title        string
	Questions    []model.Question
	TotalMarks   int
	PassingMarks int
}

// Quiz inserts a quiz and returns its id.
func Quiz(t testing.TB, db *store.DB, seed QuizSeed) string {
	t.Helper()

	questions, err := json.Marshal(seed.Questions)
	if err != nil {
		t.Fatalf("marshal questions: %v", err)
	}
	var batch any
	if seed.BatchID != "" {
		batch = seed.BatchID
	}
	id := uuid.NewString()
	exec(t, db, `INSERT INTO quizzes (id, course_id, batch_id, title, questions, total_marks, passing_marks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, seed.CourseID, batch, seed.Title, string(questions), seed.TotalMarks, seed.PassingMarks, nextStamp())
	return id
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Enrollment loads one enrollment row.
func Enrollment(t testing.TB, db *store.DB, studentEmail, batchID string) model.Enrollment {
	t.Helper()

	var e model.Enrollment
	q := db.Rebind(`SELECT id, student_email, batch_id, course_id, status, attendance, daily_time_spent_min,
		last_session_date, created_at, updated_at FROM enrollments WHERE student_email = ? AND batch_id = ?`)
	if err := db.GetContext(context.Background(), &e, q, studentEmail, batchID); err != nil {
		t.Fatalf("load enrollment %s/%s: %v", studentEmail, batchID, err)
	}
	return e
}

// Count runs a COUNT(*) query.
func Count(t testing.TB, db *store.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.GetContext(context.Background(), &n, db.Rebind(query), args...); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func exec(t testing.TB, db *store.DB, query string, args ...any) {
	t.Helper()

	if _, err := db.ExecContext(context.Background(), db.Rebind(query), args...); err != nil {
		t.Fatalf("seed %q: %v", query, err)
	}
}
