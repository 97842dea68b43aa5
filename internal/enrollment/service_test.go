package enrollment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academy/internal/apperr"
	"academy/internal/enrollment"
	"academy/internal/model"
	"academy/internal/store"
	"academy/internal/store/storetest"
)

func student(email string) model.Actor {
	return model.Actor{Email: email, Role: model.RoleStudent}
}

// enrollConcurrently races attempts students for a 3-seat batch and checks that exactly
// three win and both counters agree with the rows.
func enrollConcurrently(t *testing.T, db *store.DB, attempts int) {
	t.Helper()

	courseID := storetest.Course(t, db, "Go Foundations")
	batchID := storetest.Batch(t, db, storetest.BatchSeed{
		CourseID:      courseID,
		Name:          "morning",
		TotalStudents: storetest.Int(3),
		Enrolled:      storetest.Int(0),
	})
	svc := enrollment.NewService(db, zerolog.Nop())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
		other    []error
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := svc.Enroll(context.Background(), student(fmt.Sprintf("s%d-%s@example.com", i, batchID[:8])),
				enrollment.EnrollInput{CourseID: courseID, BatchID: batchID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.CapacityExceeded):
				full++
			default:
				other = append(other, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 3, ok)
	assert.Equal(t, attempts-3, full)
	assert.Equal(t, 3, storetest.Count(t, db, `SELECT enrolled_students FROM batches WHERE id = ?`, batchID))
	assert.Equal(t, 3, storetest.Count(t, db, `SELECT enrolled_students FROM courses WHERE id = ?`, courseID))
	assert.Equal(t, 3, storetest.Count(t, db, `SELECT COUNT(*) FROM enrollments WHERE batch_id = ?`, batchID))
}

func TestEnrollConcurrentCapacity(t *testing.T) {
	t.Parallel()

	enrollConcurrently(t, storetest.Open(t), 8)
}

func TestEnrollConcurrentCapacityPostgres(t *testing.T) {
	t.Parallel()

	enrollConcurrently(t, storetest.OpenPostgres(t), 24)
}

func TestEnrollDuplicateLeavesCountersUnchanged(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	courseID := storetest.Course(t, db, "SQL")
	batchID := storetest.Batch(t, db, storetest.BatchSeed{CourseID: courseID, TotalStudents: storetest.Int(10), Enrolled: storetest.Int(0)})
	svc := enrollment.NewService(db, zerolog.Nop())
	in := enrollment.EnrollInput{CourseID: courseID, BatchID: batchID}

	first, err := svc.Enroll(context.Background(), student("ada@example.com"), in)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, batchID, first.BatchID)
	assert.Equal(t, model.EnrollmentActive, first.Status)

	for _, email := range []string{"ada@example.com", "Ada@Example.com"} {
		_, err = svc.Enroll(context.Background(), student(email), in)
		assert.True(t, apperr.Is(err, apperr.DuplicateEnrollment), "%s: expected duplicate enrollment, got %v", email, err)
	}
	assert.Equal(t, 1, storetest.Count(t, db, `SELECT enrolled_students FROM batches WHERE id = ?`, batchID))
	assert.Equal(t, 1, storetest.Count(t, db, `SELECT enrolled_students FROM courses WHERE id = ?`, courseID))
}

func TestEnrollAutoSelectsBatch(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	courseID := storetest.Course(t, db, "Kubernetes")
	storetest.Batch(t, db, storetest.BatchSeed{CourseID: courseID, Name: "full", TotalStudents: storetest.Int(1), Enrolled: storetest.Int(1)})
	open := storetest.Batch(t, db, storetest.BatchSeed{CourseID: courseID, Name: "open", TotalStudents: storetest.Int(5), Enrolled: storetest.Int(2)})
	svc := enrollment.NewService(db, zerolog.Nop())

	e, err := svc.Enroll(context.Background(), student("grace@example.com"), enrollment.EnrollInput{CourseID: courseID})
	require.NoError(t, err)
	assert.Equal(t, open, e.BatchID)
	assert.Equal(t, 3, storetest.Count(t, db, `SELECT enrolled_students FROM batches WHERE id = ?`, open))
}

func TestEnrollRejectsBadInput(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	courseID := storetest.Course(t, db, "Rust")
	otherCourse := storetest.Course(t, db, "Elixir")
	otherBatch := storetest.Batch(t, db, storetest.BatchSeed{CourseID: otherCourse})
	svc := enrollment.NewService(db, zerolog.Nop())

	tests := []struct {
		name  string
		actor model.Actor
		in    enrollment.EnrollInput
		want  apperr.Kind
	}{
		{"missing actor", model.Actor{}, enrollment.EnrollInput{CourseID: courseID}, apperr.Unauthorized},
		{"malformed course", student("a@example.com"), enrollment.EnrollInput{CourseID: "course-1"}, apperr.InvalidInput},
		{"malformed batch", student("a@example.com"), enrollment.EnrollInput{CourseID: courseID, BatchID: "b"}, apperr.InvalidInput},
		{"unknown course", student("a@example.com"), enrollment.EnrollInput{CourseID: "7f1c2c4e-1b0a-4a55-9d57-2a7a1b7c9e01"}, apperr.NotFound},
		{"course without batches", student("a@example.com"), enrollment.EnrollInput{CourseID: courseID}, apperr.NotFound},
		{"batch of another course", student("a@example.com"), enrollment.EnrollInput{CourseID: courseID, BatchID: otherBatch}, apperr.NotFound},
	}
	for _, tt := range tests {
		_, err := svc.Enroll(context.Background(), tt.actor, tt.in)
		require.Error(t, err, tt.name)
		assert.Equal(t, tt.want, apperr.KindOf(err), tt.name)
	}
}

func TestListForStudent(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	courseID := storetest.Course(t, db, "Go")
	b1 := storetest.Batch(t, db, storetest.BatchSeed{CourseID: courseID})
	b2 := storetest.Batch(t, db, storetest.BatchSeed{CourseID: courseID})
	svc := enrollment.NewService(db, zerolog.Nop())
	for _, b := range []string{b1, b2} {
		_, err := svc.Enroll(context.Background(), student("lin@example.com"), enrollment.EnrollInput{CourseID: courseID, BatchID: b})
		require.NoError(t, err, "enroll %s", b)
	}

	got, err := svc.ListForStudent(context.Background(), student("lin@example.com"))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	none, err := svc.ListForStudent(context.Background(), student("nobody@example.com"))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSelectBatch(t *testing.T) {
	t.Parallel()

	full := model.Batch{ID: "full", TotalStudents: storetest.Int(2), EnrolledStudents: storetest.Int(2), Status: model.BatchOngoing}
	done := model.Batch{ID: "done", TotalStudents: storetest.Int(2), EnrolledStudents: storetest.Int(2), Status: model.BatchCompleted}
	open := model.Batch{ID: "open", Status: model.BatchUpcoming}

	tests := []struct {
		name    string
		batches []model.Batch
		want    string
	}{
		{"first with capacity", []model.Batch{full, open}, "open"},
		{"missing capacity counts as open", []model.Batch{open, full}, "open"},
		{"non-completed fallback", []model.Batch{done, full}, "full"},
		{"first batch fallback", []model.Batch{done}, "done"},
	}
	for _, tt := range tests {
		got, ok := enrollment.SelectBatch(tt.batches)
		assert.True(t, ok, tt.name)
		assert.Equal(t, tt.want, got.ID, tt.name)
	}
	_, ok := enrollment.SelectBatch(nil)
	assert.False(t, ok, "expected no batch from empty list")
}
