package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academy/internal/apperr"
	"academy/internal/attendance"
	"academy/internal/model"
	"academy/internal/store"
	"academy/internal/store/storetest"
)

var fixedNow = time.Date(2026, time.October, 19, 10, 30, 0, 0, time.UTC)

type fixture struct {
	db      *store.DB
	svc     *attendance.Service
	course  string
	batch   string
	trainer model.Actor
}

func setup(t *testing.T, slot string) fixture {
	t.Helper()

	db := storetest.Open(t)
	course := storetest.Course(t, db, "Distributed Systems")
	batch := storetest.Batch(t, db, storetest.BatchSeed{
		CourseID:     course,
		Name:         "evening",
		TimeSlot:     slot,
		TrainerEmail: "trainer@example.com",
	})
	svc := attendance.NewService(db, zerolog.Nop(), time.UTC).WithClock(func() time.Time { return fixedNow })
	return fixture{
		db:      db,
		svc:     svc,
		course:  course,
		batch:   batch,
		trainer: model.Actor{Email: "trainer@example.com", Role: model.RoleTrainer},
	}
}

func TestManualAttendanceIsIdempotent(t *testing.T) {
	t.Parallel()

	f := setup(t, "09:00-17:00")
	storetest.Enroll(t, f.db, "ana@example.com", f.course, f.batch)
	in := attendance.ManualInput{
		Date:    "2026-10-18",
		Records: []attendance.Mark{{StudentEmail: "ana@example.com", Status: "present"}},
	}

	for i, want := range []int{1, 0} {
		got, err := f.svc.RecordManualAttendance(context.Background(), f.trainer, f.batch, in)
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, want, got, "call %d inserted", i)
	}
	assert.Equal(t, 1, storetest.Enrollment(t, f.db, "ana@example.com", f.batch).Attendance)
}

func TestManualAttendanceKeysOnNormalizedEmail(t *testing.T) {
	t.Parallel()

	f := setup(t, "")
	storetest.Enroll(t, f.db, "ana@example.com", f.course, f.batch)

	inserted, err := f.svc.RecordManualAttendance(context.Background(), f.trainer, f.batch, attendance.ManualInput{
		Records: []attendance.Mark{{StudentEmail: "  Ana@Example.com ", Status: "Present"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	created, err := f.svc.MarkPresentFromQuiz(context.Background(), "ana@example.com", f.batch)
	require.NoError(t, err)
	assert.False(t, created, "quiz pass on an already marked day must not add a record")

	created, err = f.svc.MarkPresentFromQuiz(context.Background(), "ANA@example.com", f.batch)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, 1, storetest.Count(t, f.db,
		`SELECT COUNT(*) FROM attendance_records WHERE batch_id = ? AND student_email = ?`, f.batch, "ana@example.com"))
	assert.Equal(t, 1, storetest.Count(t, f.db, `SELECT COUNT(*) FROM attendance_records WHERE batch_id = ?`, f.batch))
	assert.Equal(t, 1, storetest.Enrollment(t, f.db, "ana@example.com", f.batch).Attendance)
}

func TestManualAttendanceIsolatesBadRecords(t *testing.T) {
	t.Parallel()

	f := setup(t, "")
	storetest.Enroll(t, f.db, "ana@example.com", f.course, f.batch)
	storetest.Enroll(t, f.db, "bo@example.com", f.course, f.batch)

	got, err := f.svc.RecordManualAttendance(context.Background(), f.trainer, f.batch, attendance.ManualInput{
		Date: "2026-10-18T23:30:00Z",
		Records: []attendance.Mark{
			{StudentEmail: "ana@example.com", Status: "Present"},
			{StudentEmail: "not-an-email", Status: "Present"},
			{StudentEmail: "cy@example.com", Status: "sleeping"},
			{StudentEmail: "bo@example.com", Status: "LEAVE", Remark: "medical"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, 0, storetest.Enrollment(t, f.db, "bo@example.com", f.batch).Attendance, "leave must not count")

	records, err := f.svc.ListRecords(context.Background(), f.trainer, f.batch, "2026-10-18")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.AttendanceLeave, records[1].Status)
	assert.Equal(t, "medical", records[1].Remark)
	assert.Equal(t, model.SourceManual, records[1].Source)
	assert.Equal(t, "2026-10-18", records[0].Day.String())
}

func TestManualAttendanceAuthorization(t *testing.T) {
	t.Parallel()

	f := setup(t, "")
	in := attendance.ManualInput{Records: []attendance.Mark{{StudentEmail: "ana@example.com", Status: "Present"}}}

	tests := []struct {
		name  string
		actor model.Actor
		batch string
		want  apperr.Kind
	}{
		{"anonymous", model.Actor{}, f.batch, apperr.Unauthorized},
		{"student", model.Actor{Email: "ana@example.com", Role: model.RoleStudent}, f.batch, apperr.Forbidden},
		{"other trainer", model.Actor{Email: "else@example.com", Role: model.RoleTrainer}, f.batch, apperr.Forbidden},
		{"malformed batch", f.trainer, "batch-1", apperr.InvalidInput},
		{"unknown batch", f.trainer, "0b8f5c1e-8d4c-4a0e-9a0a-3c3f0d7e2b11", apperr.NotFound},
	}
	for _, tt := range tests {
		_, err := f.svc.RecordManualAttendance(context.Background(), tt.actor, tt.batch, in)
		require.Error(t, err, tt.name)
		assert.Equal(t, tt.want, apperr.KindOf(err), tt.name)
	}

	admin := model.Actor{Email: "root@example.com", Role: model.RoleAdmin}
	_, err := f.svc.RecordManualAttendance(context.Background(), admin, f.batch, in)
	assert.NoError(t, err, "admin may mark any batch")

	_, err = f.svc.RecordManualAttendance(context.Background(), f.trainer, f.batch, attendance.ManualInput{Date: "yesterday", Records: in.Records})
	assert.True(t, apperr.Is(err, apperr.InvalidInput), "expected invalid date, got %v", err)
}

func TestReportSessionTime(t *testing.T) {
	t.Parallel()

	f := setup(t, "22:00-02:00")
	storetest.Enroll(t, f.db, "ana@example.com", f.course, f.batch)
	ana := model.Actor{Email: "ana@example.com", Role: model.RoleStudent}

	got, err := f.svc.ReportSessionTime(context.Background(), ana, f.batch, 200)
	require.NoError(t, err)
	assert.Equal(t, attendance.SessionStatus{DailyMinutesSpent: 200, RequiredMinutes: 240, Status: attendance.SessionAbsent}, got)

	got, err = f.svc.ReportSessionTime(context.Background(), ana, f.batch, 45)
	require.NoError(t, err)
	assert.Equal(t, 245, got.DailyMinutesSpent)
	assert.Equal(t, attendance.SessionPresent, got.Status)

	e := storetest.Enrollment(t, f.db, "ana@example.com", f.batch)
	assert.Equal(t, 245, e.DailyTimeSpentMin)
	require.NotNil(t, e.LastSessionDate)
	assert.Equal(t, "2026-10-19", e.LastSessionDate.String())
	assert.Equal(t, 1, storetest.Count(t, f.db, `SELECT COUNT(*) FROM session_time_logs WHERE batch_id = ?`, f.batch))
	assert.Zero(t, storetest.Count(t, f.db, `SELECT COUNT(*) FROM attendance_records WHERE batch_id = ?`, f.batch),
		"session time must not write attendance records")
}

func TestReportSessionTimeRejects(t *testing.T) {
	t.Parallel()

	f := setup(t, "")
	ana := model.Actor{Email: "ana@example.com", Role: model.RoleStudent}

	tests := []struct {
		name  string
		actor model.Actor
		batch string
		delta int
		want  apperr.Kind
	}{
		{"anonymous", model.Actor{}, f.batch, 10, apperr.Unauthorized},
		{"malformed batch", ana, "nope", 10, apperr.InvalidInput},
		{"negative delta", ana, f.batch, -1, apperr.InvalidInput},
		{"delta over a day", ana, f.batch, 1441, apperr.InvalidInput},
		{"unknown batch", ana, "0b8f5c1e-8d4c-4a0e-9a0a-3c3f0d7e2b11", 10, apperr.NotFound},
		{"not enrolled", ana, f.batch, 10, apperr.NotEnrolled},
	}
	for _, tt := range tests {
		_, err := f.svc.ReportSessionTime(context.Background(), tt.actor, tt.batch, tt.delta)
		require.Error(t, err, tt.name)
		assert.Equal(t, tt.want, apperr.KindOf(err), tt.name)
	}
	assert.Zero(t, storetest.Count(t, f.db, `SELECT COUNT(*) FROM session_time_logs`), "rejected reports must not persist")
}

func TestMarkPresentFromQuiz(t *testing.T) {
	t.Parallel()

	f := setup(t, "")
	storetest.Enroll(t, f.db, "ana@example.com", f.course, f.batch)

	for i, want := range []bool{true, false} {
		created, err := f.svc.MarkPresentFromQuiz(context.Background(), "ana@example.com", f.batch)
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, want, created, "call %d", i)
	}
	assert.Equal(t, 1, storetest.Enrollment(t, f.db, "ana@example.com", f.batch).Attendance)

	records, err := f.svc.ListRecords(context.Background(), model.Actor{Email: "root@example.com", Role: model.RoleAdmin}, f.batch, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, attendance.QuizRemark, records[0].Remark)
	assert.Equal(t, model.SourceQuiz, records[0].Source)
}
