// Package attendance derives daily attendance from manual marks, quiz passes and reported session time.
package attendance

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

// QuizRemark marks records created by a passing quiz attempt.
const QuizRemark = "Auto-generated: quiz passed"

// MaxSessionDelta bounds a single session-time report to one day of minutes.
const MaxSessionDelta = 24 * 60

// Derived session statuses.
const (
	SessionPresent = "present"
	SessionAbsent  = "absent"
)

var validate = validator.New()

// Mark is one student's entry in a bulk attendance submission.
type Mark struct {
	StudentEmail string `json:"studentEmail" validate:"required,email"`
	Status       string `json:"status" validate:"required"`
	Remark       string `json:"remark"`
}

// ManualInput is a bulk submission for one batch and day.
type ManualInput struct {
	Date    string `json:"date"`
	Records []Mark `json:"records"`
}

// SessionStatus is the derived, display-only view of a trainee's day.
type SessionStatus struct {
	DailyMinutesSpent int    `json:"dailyMinutesSpent"`
	RequiredMinutes   int    `json:"requiredMinutes"`
	Status            string `json:"status"`
}

// Service records attendance. It is the only writer of the enrollment attendance counter
// and the session-time mirror fields.
type Service struct {
	db  *store.DB
	log zerolog.Logger
	loc *time.Location
	now func() time.Time
}

// NewService creates a service whose calendar days are taken in loc.
func NewService(db *store.DB, log zerolog.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:  db,
		log: log.With().Str("component", "attendance").Logger(),
		loc: loc,
		now: time.Now,
	}
}

// WithClock overrides the clock used for "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) today() dbtime.Day { return dbtime.DayOf(s.now(), s.loc) }

// RecordManualAttendance writes one record per mark for the batch and day. Already recorded
// days are skipped; a failing mark is logged and the rest continue. It returns how many
// records were created.
func (s *Service) RecordManualAttendance(ctx context.Context, actor model.Actor, batchID string, in ManualInput) (int, error) {
	batch, err := s.markableBatch(ctx, actor, batchID)
	if err != nil {
		return 0, err
	}
	day := s.today()
	if in.Date != "" {
		if day, err = dbtime.ParseDay(in.Date, s.loc); err != nil {
			return 0, apperr.Wrap(apperr.InvalidInput, err, "invalid date")
		}
	}
	if len(in.Records) == 0 {
		return 0, apperr.E(apperr.InvalidInput, "records are required")
	}

	log := s.log.With().Str("batch", batch.ID).Str("day", day.String()).Str("actor", actor.Email).Logger()
	inserted := 0
	for i, m := range in.Records {
		created, err := s.recordMark(ctx, batch.ID, day, m)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Str("student", m.StudentEmail).Msg("attendance mark skipped")
			continue
		}
		if created {
			inserted++
		}
	}
	log.Info().Int("inserted", inserted).Int("submitted", len(in.Records)).Msg("manual attendance recorded")
	return inserted, nil
}

func (s *Service) recordMark(ctx context.Context, batchID string, day dbtime.Day, m Mark) (bool, error) {
	if err := validate.Struct(m); err != nil {
		return false, apperr.Wrap(apperr.InvalidInput, err, "invalid attendance mark")
	}
	status, ok := model.NormalizeAttendanceStatus(m.Status)
	if !ok {
		return false, apperr.E(apperr.InvalidInput, "unknown attendance status %q", m.Status)
	}
	return s.record(ctx, model.AttendanceRecord{
		StudentEmail: m.StudentEmail,
		BatchID:      batchID,
		Day:          day,
		Status:       status,
		Remark:       m.Remark,
		Source:       model.SourceManual,
	})
}

// MarkPresentFromQuiz records today's Present for a trainee who passed a quiz. It reports
// false when today was already recorded.
func (s *Service) MarkPresentFromQuiz(ctx context.Context, studentEmail, batchID string) (bool, error) {
	return s.record(ctx, model.AttendanceRecord{
		StudentEmail: studentEmail,
		BatchID:      batchID,
		Day:          s.today(),
		Status:       model.AttendancePresent,
		Remark:       QuizRemark,
		Source:       model.SourceQuiz,
	})
}

// record inserts rec and, for a new Present, bumps the counter in the same transaction.
func (s *Service) record(ctx context.Context, rec model.AttendanceRecord) (bool, error) {
	rec.ID = uuid.NewString()
	rec.StudentEmail = model.NormalizeEmail(rec.StudentEmail)
	rec.CreatedAt = dbtime.Now(s.now())

	var created bool
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		var err error
		if created, err = repo.InsertRecord(ctx, rec); err != nil || !created {
			return err
		}
		if rec.Status != model.AttendancePresent {
			return nil
		}
		enrolled, err := repo.IncrementAttendance(ctx, rec.StudentEmail, rec.BatchID, rec.CreatedAt)
		if err != nil {
			return err
		}
		if !enrolled {
			s.log.Debug().Str("student", rec.StudentEmail).Str("batch", rec.BatchID).Msg("present without enrollment")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		metrics.AttendanceRecords.WithLabelValues(rec.Source).Inc()
	}
	return created, nil
}

// ReportSessionTime adds minutes to today's session log, mirrors the total onto the enrollment
// and derives present or absent against the batch schedule. No attendance record is written.
func (s *Service) ReportSessionTime(ctx context.Context, actor model.Actor, batchID string, minutesDelta int) (SessionStatus, error) {
	if actor.Email == "" {
		return SessionStatus{}, apperr.E(apperr.Unauthorized, "missing actor")
	}
	if err := validate.Var(batchID, "required,uuid"); err != nil {
		return SessionStatus{}, apperr.Wrap(apperr.InvalidInput, err, "batchId must be a valid id")
	}
	if minutesDelta < 0 || minutesDelta > MaxSessionDelta {
		return SessionStatus{}, apperr.E(apperr.InvalidInput, "minutesDelta must be between 0 and %d", MaxSessionDelta)
	}
	batch, err := catalog.New(s.db).GetBatch(ctx, batchID)
	if err != nil {
		return SessionStatus{}, err
	}

	email := model.NormalizeEmail(actor.Email)
	day := s.today()
	at := dbtime.Now(s.now())
	var total int
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		var err error
		if total, err = repo.AddSessionMinutes(ctx, email, batch.ID, day, minutesDelta, at); err != nil {
			return err
		}
		enrolled, err := repo.MirrorSession(ctx, email, batch.ID, day, total, at)
		if err != nil {
			return err
		}
		if !enrolled {
			return apperr.E(apperr.NotEnrolled, "not enrolled in batch %s", batch.Name)
		}
		return nil
	})
	if err != nil {
		return SessionStatus{}, err
	}
	metrics.SessionMinutes.Add(float64(minutesDelta))

	out := SessionStatus{DailyMinutesSpent: total, RequiredMinutes: RequiredMinutes(batch.TimeSlot), Status: SessionAbsent}
	if out.DailyMinutesSpent >= out.RequiredMinutes {
		out.Status = SessionPresent
	}
	return out, nil
}

// ListRecords returns a batch's records for date, today when date is empty.
func (s *Service) ListRecords(ctx context.Context, actor model.Actor, batchID, date string) ([]model.AttendanceRecord, error) {
	batch, err := s.markableBatch(ctx, actor, batchID)
	if err != nil {
		return nil, err
	}
	day := s.today()
	if date != "" {
		if day, err = dbtime.ParseDay(date, s.loc); err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "invalid date")
		}
	}
	out, err := NewRepository(s.db).ListRecords(ctx, batch.ID, day)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.AttendanceRecord{}
	}
	return out, nil
}

// markableBatch loads the batch and checks that actor may mark it: admins any batch,
// trainers only their own.
func (s *Service) markableBatch(ctx context.Context, actor model.Actor, batchID string) (model.Batch, error) {
	if actor.Email == "" {
		return model.Batch{}, apperr.E(apperr.Unauthorized, "missing actor")
	}
	if !actor.HasRole(model.RoleTrainer, model.RoleAdmin) {
		return model.Batch{}, apperr.E(apperr.Forbidden, "attendance is recorded by trainers and admins")
	}
	if err := validate.Var(batchID, "required,uuid"); err != nil {
		return model.Batch{}, apperr.Wrap(apperr.InvalidInput, err, "batchId must be a valid id")
	}
	batch, err := catalog.New(s.db).GetBatch(ctx, batchID)
	if err != nil {
		return model.Batch{}, err
	}
	if !actor.HasRole(model.RoleAdmin) && !batch.TrainedBy(actor.Email) {
		return model.Batch{}, apperr.E(apperr.Forbidden, "batch %s is not assigned to %s", batch.Name, actor.Email)
	}
	return batch, nil
}
