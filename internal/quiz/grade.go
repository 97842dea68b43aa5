package quiz

import (
	"strings"

	"academy/internal/apperr"
	"academy/internal/model"
)

// Outcome is the graded result of one set of answers.
type Outcome struct {
	Score       int
	TotalMarks  int
	Status      string
	NeedsReview bool
}

// Grade scores answers against the quiz key. Objective questions earn full marks on an exact
// match after trimming; short answers are never scored and send the attempt to review.
// Questions of unknown type score nothing but still count toward the total.
func Grade(quiz model.Quiz, answers []model.Answer) (Outcome, error) {
	given := make(map[int]string, len(answers))
	for _, a := range answers {
		if a.QuestionIndex < 0 || a.QuestionIndex >= len(quiz.Questions) {
			return Outcome{}, apperr.E(apperr.InvalidInput, "questionIndex %d is outside the quiz", a.QuestionIndex)
		}
		given[a.QuestionIndex] = a.Answer
	}

	var out Outcome
	for i, q := range quiz.Questions {
		out.TotalMarks += q.Marks
		switch q.Type {
		case model.QuestionMultipleChoice, model.QuestionTrueFalse:
			answer, ok := given[i]
			if ok && strings.TrimSpace(answer) == strings.TrimSpace(q.CorrectAnswer) {
				out.Score += q.Marks
			}
		case model.QuestionShortAnswer:
			out.NeedsReview = true
		}
	}
	if out.TotalMarks == 0 {
		out.TotalMarks = quiz.TotalMarks
	}

	switch {
	case out.NeedsReview:
		out.Status = model.AttemptPendingReview
	case out.Score >= quiz.PassingMarks:
		out.Status = model.AttemptPassed
	default:
		out.Status = model.AttemptFailed
	}
	return out, nil
}
