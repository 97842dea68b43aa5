// Package enrollment owns batch membership and the batch/course capacity counters.
package enrollment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"academy/internal/apperr"
	"academy/internal/catalog"
	"academy/internal/dbtime"
	"academy/internal/metrics"
	"academy/internal/model"
	"academy/internal/store"
)

var validate = validator.New()

// EnrollInput names the course and, optionally, the batch to join.
type EnrollInput struct {
	CourseID string `json:"courseId" validate:"required,uuid"`
	BatchID  string `json:"batchId" validate:"omitempty,uuid"`
}

// Service coordinates enrollment writes.
type Service struct {
	db  *store.DB
	log zerolog.Logger
	now func() time.Time
}

// NewService creates a ledger over db.
func NewService(db *store.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("component", "enrollment").Logger(),
		now: time.Now,
	}
}

// Enroll places the actor in a batch of the course. The membership row and both counters
// commit together; the database decides capacity and uniqueness.
func (s *Service) Enroll(ctx context.Context, actor model.Actor, in EnrollInput) (model.Enrollment, error) {
	e, err := s.enroll(ctx, actor, in)
	metrics.Enrollments.WithLabelValues(result(err)).Inc()
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			s.log.Error().Err(err).Str("student", actor.Email).Str("course", in.CourseID).Msg("enroll failed")
		}
		return model.Enrollment{}, err
	}
	s.log.Info().Str("student", e.StudentEmail).Str("batch", e.BatchID).Str("enrollment", e.ID).Msg("enrolled")
	return e, nil
}

func (s *Service) enroll(ctx context.Context, actor model.Actor, in EnrollInput) (model.Enrollment, error) {
	if actor.Email == "" {
		return model.Enrollment{}, apperr.E(apperr.Unauthorized, "missing actor")
	}
	if err := validate.Struct(in); err != nil {
		return model.Enrollment{}, apperr.Wrap(apperr.InvalidInput, err, "courseId and batchId must be valid ids")
	}

	now := dbtime.Now(s.now())
	e := model.Enrollment{
		ID:           uuid.NewString(),
		StudentEmail: model.NormalizeEmail(actor.Email),
		CourseID:     in.CourseID,
		Status:       model.EnrollmentActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		cat := catalog.New(tx)
		if _, err := cat.GetCourse(ctx, in.CourseID); err != nil {
			return err
		}
		batch, err := s.resolveBatch(ctx, cat, in)
		if err != nil {
			return err
		}
		e.BatchID = batch.ID

		repo := NewRepository(tx)
		ok, err := repo.ReserveSeat(ctx, batch.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.E(apperr.CapacityExceeded, "batch %s is full", batch.Name)
		}
		if err := repo.Insert(ctx, e); err != nil {
			if store.IsUniqueViolation(err) {
				return apperr.E(apperr.DuplicateEnrollment, "already enrolled in batch %s", batch.Name)
			}
			return err
		}
		return repo.IncrementCourse(ctx, in.CourseID)
	})
	if err != nil {
		return model.Enrollment{}, err
	}
	return e, nil
}

func (s *Service) resolveBatch(ctx context.Context, cat *catalog.Catalog, in EnrollInput) (model.Batch, error) {
	if in.BatchID != "" {
		batch, err := cat.GetBatch(ctx, in.BatchID)
		if err != nil {
			return model.Batch{}, err
		}
		if batch.CourseID != in.CourseID {
			return model.Batch{}, apperr.E(apperr.NotFound, "batch %s not found in course %s", in.BatchID, in.CourseID)
		}
		return batch, nil
	}
	batches, err := cat.ListCourseBatches(ctx, in.CourseID)
	if err != nil {
		return model.Batch{}, err
	}
	batch, ok := SelectBatch(batches)
	if !ok {
		return model.Batch{}, apperr.E(apperr.NotFound, "course %s has no batches", in.CourseID)
	}
	return batch, nil
}

// SelectBatch picks the first batch with a free seat, then the first batch that is not
// completed, then the first batch. batches must be in creation order.
func SelectBatch(batches []model.Batch) (model.Batch, bool) {
	if len(batches) == 0 {
		return model.Batch{}, false
	}
	for _, b := range batches {
		if b.HasCapacity() {
			return b, true
		}
	}
	for _, b := range batches {
		if b.Status != model.BatchCompleted {
			return b, true
		}
	}
	return batches[0], true
}

// ListForStudent returns the actor's enrollments, newest first.
func (s *Service) ListForStudent(ctx context.Context, actor model.Actor) ([]model.Enrollment, error) {
	if actor.Email == "" {
		return nil, apperr.E(apperr.Unauthorized, "missing actor")
	}
	out, err := NewRepository(s.db).ListByStudent(ctx, actor.Email)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Enrollment{}
	}
	return out, nil
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
