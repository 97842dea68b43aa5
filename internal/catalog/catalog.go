// Package catalog reads the course, batch and quiz directory. Administrative writes live elsewhere.
package catalog

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"academy/internal/apperr"
	"academy/internal/model"
	"academy/internal/store"
)

const batchColumns = `id, course_id, name, total_students, enrolled_students, time_slot, status, trainer_email, created_at`

// Catalog runs lookups against a DB or an open transaction.
type Catalog struct {
	db sqlx.ExtContext
}

// New creates a catalog over db.
func New(db sqlx.ExtContext) *Catalog {
	return &Catalog{db: db}
}

// GetCourse loads one course.
func (c *Catalog) GetCourse(ctx context.Context, id string) (model.Course, error) {
	var course model.Course
	err := sqlx.GetContext(ctx, c.db, &course, c.db.Rebind(
		`SELECT id, title, enrolled_students, created_at FROM courses WHERE id = ?`), id)
	if store.IsNoRows(err) {
		return model.Course{}, apperr.E(apperr.NotFound, "course %s not found", id)
	}
	return course, errors.Wrap(err, "get course")
}

// GetBatch loads one batch.
func (c *Catalog) GetBatch(ctx context.Context, id string) (model.Batch, error) {
	var batch model.Batch
	err := sqlx.GetContext(ctx, c.db, &batch, c.db.Rebind(
		`SELECT `+batchColumns+` FROM batches WHERE id = ?`), id)
	if store.IsNoRows(err) {
		return model.Batch{}, apperr.E(apperr.NotFound, "batch %s not found", id)
	}
	return batch, errors.Wrap(err, "get batch")
}

// ListCourseBatches returns a course's batches, oldest first.
func (c *Catalog) ListCourseBatches(ctx context.Context, courseID string) ([]model.Batch, error) {
	var batches []model.Batch
	err := sqlx.SelectContext(ctx, c.db, &batches, c.db.Rebind(
		`SELECT `+batchColumns+` FROM batches WHERE course_id = ? ORDER BY created_at, id`), courseID)
	return batches, errors.Wrap(err, "list course batches")
}

// GetQuiz loads a quiz with its decoded question list.
func (c *Catalog) GetQuiz(ctx context.Context, id string) (model.Quiz, error) {
	var quiz model.Quiz
	err := sqlx.GetContext(ctx, c.db, &quiz, c.db.Rebind(
		`SELECT id, course_id, batch_id, title, questions, total_marks, passing_marks, created_at FROM quizzes WHERE id = ?`), id)
	if store.IsNoRows(err) {
		return model.Quiz{}, apperr.E(apperr.NotFound, "quiz %s not found", id)
	}
	if err != nil {
		return model.Quiz{}, errors.Wrap(err, "get quiz")
	}
	if err := quiz.DecodeQuestions(); err != nil {
		return model.Quiz{}, errors.Wrapf(err, "decode questions of quiz %s", id)
	}
	return quiz, nil
}
