// Package quiz grades quiz submissions and triggers the attendance and notice side effects of a result.
package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"academy/internal/apperr"
	"academy/internal/catalog"
	"academy/internal/dbtime"
	"academy/internal/effect"
	"academy/internal/lock"
	"academy/internal/metrics"
	"academy/internal/model"
	"academy/internal/store"
)

var validate = validator.New()

// SubmitInput is one submission of answers.
type SubmitInput struct {
	TraineeName string         `json:"traineeName" validate:"max=200"`
	Answers     []model.Answer `json:"answers" validate:"required"`
}

// AttendanceMarker records the attendance earned by a passing attempt.
type AttendanceMarker interface {
	MarkPresentFromQuiz(ctx context.Context, studentEmail, batchID string) (bool, error)
}

// Notifier sends best-effort notices.
type Notifier interface {
	Dispatch(ctx context.Context, n model.Notification) effect.Result
}

// Service grades and stores attempts.
type Service struct {
	db         *store.DB
	locker     lock.Locker
	attendance AttendanceMarker
	notifier   Notifier
	log        zerolog.Logger
	now        func() time.Time
}

// NewService wires the grading engine. attendance and notifier may be nil to disable those effects.
func NewService(db *store.DB, locker lock.Locker, attendance AttendanceMarker, notifier Notifier, log zerolog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Service{
		db:         db,
		locker:     locker,
		attendance: attendance,
		notifier:   notifier,
		log:        log.With().Str("component", "quiz").Logger(),
		now:        time.Now,
	}
}

// SubmitAttempt grades answers and appends the attempt. Side effects run after commit and
// never change the result.
func (s *Service) SubmitAttempt(ctx context.Context, actor model.Actor, quizID string, in SubmitInput) (model.QuizAttempt, error) {
	if actor.Email == "" {
		return model.QuizAttempt{}, apperr.E(apperr.Unauthorized, "missing actor")
	}
	if err := validate.Var(quizID, "required,uuid"); err != nil {
		return model.QuizAttempt{}, apperr.Wrap(apperr.InvalidInput, err, "quizId must be a valid id")
	}
	if err := validate.Struct(in); err != nil {
		return model.QuizAttempt{}, apperr.Wrap(apperr.InvalidInput, err, "answers are required")
	}

	quiz, err := catalog.New(s.db).GetQuiz(ctx, quizID)
	if err != nil {
		return model.QuizAttempt{}, err
	}
	repo := NewRepository(s.db)
	if batchID := quiz.Batch(); batchID != "" {
		member, err := repo.IsActiveMember(ctx, model.NormalizeEmail(actor.Email), batchID)
		if err != nil {
			return model.QuizAttempt{}, err
		}
		if !member {
			return model.QuizAttempt{}, apperr.E(apperr.NotEnrolled, "not enrolled in the batch of quiz %s", quiz.Title)
		}
	}

	outcome, err := Grade(quiz, in.Answers)
	if err != nil {
		return model.QuizAttempt{}, err
	}
	answers, err := json.Marshal(in.Answers)
	if err != nil {
		return model.QuizAttempt{}, apperr.Wrap(apperr.InvalidInput, err, "answers")
	}

	attempt := model.QuizAttempt{
		ID:           uuid.NewString(),
		QuizID:       quiz.ID,
		TraineeEmail: model.NormalizeEmail(actor.Email),
		TraineeName:  traineeName(actor, in),
		Score:        outcome.Score,
		TotalMarks:   outcome.TotalMarks,
		Status:       outcome.Status,
		Answers:      answers,
		CreatedAt:    dbtime.Now(s.now()),
	}
	if err := s.persist(ctx, &attempt); err != nil {
		return model.QuizAttempt{}, err
	}
	metrics.QuizAttempts.WithLabelValues(attempt.Status).Inc()
	s.log.Info().
		Str("quiz", quiz.ID).
		Str("trainee", attempt.TraineeEmail).
		Int("attempt", attempt.AttemptCount).
		Int("score", attempt.Score).
		Str("status", attempt.Status).
		Msg("quiz attempt recorded")

	s.afterSubmit(ctx, quiz, attempt)
	return attempt, nil
}

// persist numbers and inserts the attempt while holding the (quiz, trainee) lock.
func (s *Service) persist(ctx context.Context, attempt *model.QuizAttempt) error {
	unlock, err := s.locker.Lock(ctx, "quiz:"+attempt.QuizID+":"+attempt.TraineeEmail)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "lock attempts")
	}
	defer unlock()

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		prior, err := repo.CountAttempts(ctx, attempt.QuizID, attempt.TraineeEmail)
		if err != nil {
			return err
		}
		attempt.AttemptCount = prior + 1
		if err := repo.Insert(ctx, *attempt); err != nil {
			if store.IsUniqueViolation(err) {
				return apperr.Wrap(apperr.Conflict, err, "attempt %d was recorded concurrently, retry", attempt.AttemptCount)
			}
			return err
		}
		return nil
	})
}

func (s *Service) afterSubmit(ctx context.Context, quiz model.Quiz, attempt model.QuizAttempt) {
	batchID := quiz.Batch()
	if attempt.Status == model.AttemptPassed && batchID != "" && s.attendance != nil {
		effect.Attempt(ctx, "quiz.attendance", func(ctx context.Context) error {
			created, err := s.attendance.MarkPresentFromQuiz(ctx, attempt.TraineeEmail, batchID)
			if err == nil && !created {
				s.log.Debug().Str("trainee", attempt.TraineeEmail).Str("batch", batchID).Msg("attendance already recorded today")
			}
			return err
		}).Log(s.log)
	}
	if s.notifier == nil {
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"quizId":       quiz.ID,
		"attemptId":    attempt.ID,
		"attemptCount": attempt.AttemptCount,
		"score":        attempt.Score,
		"totalMarks":   attempt.TotalMarks,
		"status":       attempt.Status,
	})
	s.notifier.Dispatch(ctx, model.Notification{
		RecipientEmail: attempt.TraineeEmail,
		Kind:           model.NotifyQuizScore,
		Title:          "Quiz result: " + quiz.Title,
		Message:        fmt.Sprintf("Attempt %d scored %d/%d (%s).", attempt.AttemptCount, attempt.Score, attempt.TotalMarks, attempt.Status),
		Payload:        payload,
	}).Log(s.log)

	if attempt.Status != model.AttemptPendingReview || batchID == "" {
		return
	}
	var trainer string
	lookup := effect.Attempt(ctx, "quiz.review_notice", func(ctx context.Context) error {
		batch, err := catalog.New(s.db).GetBatch(ctx, batchID)
		if err == nil && batch.TrainerEmail != nil {
			trainer = *batch.TrainerEmail
		}
		return err
	})
	lookup.Log(s.log)
	if !lookup.OK() || trainer == "" {
		return
	}
	s.notifier.Dispatch(ctx, model.Notification{
		RecipientEmail: trainer,
		Kind:           model.NotifyReviewNeeded,
		Title:          "Review needed: " + quiz.Title,
		Message:        fmt.Sprintf("%s submitted attempt %d with answers that need manual marking.", attempt.TraineeName, attempt.AttemptCount),
		Payload:        payload,
	}).Log(s.log)
}

// ListAttempts returns attempts on a quiz. Students see their own; trainers and admins see all.
func (s *Service) ListAttempts(ctx context.Context, actor model.Actor, quizID string) ([]model.QuizAttempt, error) {
	if actor.Email == "" {
		return nil, apperr.E(apperr.Unauthorized, "missing actor")
	}
	if err := validate.Var(quizID, "required,uuid"); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "quizId must be a valid id")
	}
	if _, err := catalog.New(s.db).GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	email := model.NormalizeEmail(actor.Email)
	if actor.HasRole(model.RoleTrainer, model.RoleAdmin) {
		email = ""
	}
	out, err := NewRepository(s.db).List(ctx, quizID, email)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.QuizAttempt{}
	}
	return out, nil
}

func traineeName(actor model.Actor, in SubmitInput) string {
	if name := strings.TrimSpace(in.TraineeName); name != "" {
		return name
	}
	if actor.Name != "" {
		return actor.Name
	}
	return actor.Email
}
