package model

import (
	"strings"

	"github.com/jmoiron/sqlx/types"

	"academy/internal/dbtime"
)

// Roles carried by authenticated actors.
const (
	RoleStudent = "student"
	RoleTrainer = "trainer"
	RoleAdmin   = "admin"
)

// Actor is the verified identity behind a request.
type Actor struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// NormalizeEmail is the canonical key form of an email: trimmed and lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasRole reports whether the actor holds one of roles.
func (a Actor) HasRole(roles ...string) bool {
	for _, r := range roles {
		if strings.EqualFold(a.Role, r) {
			return true
		}
	}
	return false
}

// Course is the offering that batches belong to.
type Course struct {
	ID               string      `db:"id" json:"id"`
	Title            string      `db:"title" json:"title"`
	EnrolledStudents int         `db:"enrolled_students" json:"enrolledStudents"`
	CreatedAt        dbtime.Time `db:"created_at" json:"createdAt"`
}

// Batch statuses.
const (
	BatchUpcoming  = "Upcoming"
	BatchOngoing   = "Ongoing"
	BatchCompleted = "Completed"
)

// Batch is a capacity-bounded run of a course.
type Batch struct {
	ID               string      `db:"id" json:"id"`
	CourseID         string      `db:"course_id" json:"courseId"`
	Name             string      `db:"name" json:"name"`
	TotalStudents    *int        `db:"total_students" json:"totalStudents,omitempty"`
	EnrolledStudents *int        `db:"enrolled_students" json:"enrolledStudents,omitempty"`
	TimeSlot         *string     `db:"time_slot" json:"timeSlot,omitempty"`
	Status           string      `db:"status" json:"status"`
	TrainerEmail     *string     `db:"trainer_email" json:"trainerEmail,omitempty"`
	CreatedAt        dbtime.Time `db:"created_at" json:"createdAt"`
}

// HasCapacity treats missing capacity fields as open.
func (b Batch) HasCapacity() bool {
	if b.TotalStudents == nil || b.EnrolledStudents == nil {
		return true
	}
	return *b.EnrolledStudents < *b.TotalStudents
}

// TrainedBy reports whether email is the batch trainer.
func (b Batch) TrainedBy(email string) bool {
	return b.TrainerEmail != nil && strings.EqualFold(*b.TrainerEmail, email)
}

// Enrollment statuses.
const (
	EnrollmentActive    = "Active"
	EnrollmentCompleted = "Completed"
	EnrollmentDropped   = "Dropped"
)

// Enrollment is one student's membership of one batch.
type Enrollment struct {
	ID                string      `db:"id" json:"id"`
	StudentEmail      string      `db:"student_email" json:"studentEmail"`
	BatchID           string      `db:"batch_id" json:"batchId"`
	CourseID          string      `db:"course_id" json:"courseId"`
	Status            string      `db:"status" json:"status"`
	Attendance        int         `db:"attendance" json:"attendance"`
	DailyTimeSpentMin int         `db:"daily_time_spent_min" json:"dailyTimeSpentMin"`
	LastSessionDate   *dbtime.Day `db:"last_session_date" json:"lastSessionDate,omitempty"`
	CreatedAt         dbtime.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         dbtime.Time `db:"updated_at" json:"updatedAt"`
}

// Attendance statuses.
const (
	AttendancePresent = "Present"
	AttendanceAbsent  = "Absent"
	AttendanceLeave   = "Leave"
)

// NormalizeAttendanceStatus maps any casing of a known status to its canonical form.
func NormalizeAttendanceStatus(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present":
		return AttendancePresent, true
	case "absent":
		return AttendanceAbsent, true
	case "leave":
		return AttendanceLeave, true
	default:
		return "", false
	}
}

// Attendance record sources.
const (
	SourceManual  = "manual"
	SourceQuiz    = "quiz"
	SourceSession = "session"
)

// AttendanceRecord is the attendance of record for one student, batch and day.
type AttendanceRecord struct {
	ID           string      `db:"id" json:"id"`
	StudentEmail string      `db:"student_email" json:"studentEmail"`
	BatchID      string      `db:"batch_id" json:"batchId"`
	Day          dbtime.Day  `db:"day" json:"date"`
	Status       string      `db:"status" json:"status"`
	Remark       string      `db:"remark" json:"remark,omitempty"`
	Source       string      `db:"source" json:"source"`
	CreatedAt    dbtime.Time `db:"created_at" json:"createdAt"`
}

// SessionTimeLog accumulates a trainee's online minutes for one day.
type SessionTimeLog struct {
	ID           string      `db:"id" json:"id"`
	StudentEmail string      `db:"student_email" json:"studentEmail"`
	BatchID      string      `db:"batch_id" json:"batchId"`
	Day          dbtime.Day  `db:"day" json:"date"`
	MinutesSpent int         `db:"minutes_spent" json:"minutesSpent"`
	UpdatedAt    dbtime.Time `db:"updated_at" json:"updatedAt"`
}

// Question types.
const (
	QuestionMultipleChoice = "multiple-choice"
	QuestionTrueFalse      = "true-false"
	QuestionShortAnswer    = "short-answer"
)

// Question is one entry of a quiz's ordered question list.
type Question struct {
	Type          string   `json:"type"`
	Text          string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
	Marks         int      `json:"marks"`
}

// Quiz is read-only to this service; QuestionsJSON holds the ordered []Question.
type Quiz struct {
	ID            string         `db:"id" json:"id"`
	CourseID      string         `db:"course_id" json:"courseId"`
	BatchID       *string        `db:"batch_id" json:"batchId,omitempty"`
	Title         string         `db:"title" json:"title"`
	QuestionsJSON types.JSONText `db:"questions" json:"-"`
	TotalMarks    int            `db:"total_marks" json:"totalMarks"`
	PassingMarks  int            `db:"passing_marks" json:"passingMarks"`
	CreatedAt     dbtime.Time    `db:"created_at" json:"createdAt"`

	Questions []Question `db:"-" json:"questions"`
}

// DecodeQuestions fills Questions from the stored JSON.
func (q *Quiz) DecodeQuestions() error {
	q.Questions = nil
	if len(q.QuestionsJSON) == 0 {
		return nil
	}
	return q.QuestionsJSON.Unmarshal(&q.Questions)
}

// Batch returns the gating batch id, empty when the quiz is not tied to a batch.
func (q Quiz) Batch() string {
	if q.BatchID == nil {
		return ""
	}
	return *q.BatchID
}

// Attempt statuses.
const (
	AttemptPassed        = "Passed"
	AttemptFailed        = "Failed"
	AttemptPendingReview = "Pending Review"
)

// Answer is a trainee's answer to the question at QuestionIndex.
type Answer struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

// QuizAttempt is an immutable graded submission.
type QuizAttempt struct {
	ID           string         `db:"id" json:"id"`
	QuizID       string         `db:"quiz_id" json:"quizId"`
	TraineeEmail string         `db:"trainee_email" json:"traineeEmail"`
	TraineeName  string         `db:"trainee_name" json:"traineeName,omitempty"`
	AttemptCount int            `db:"attempt_count" json:"attemptCount"`
	Score        int            `db:"score" json:"score"`
	TotalMarks   int            `db:"total_marks" json:"totalMarks"`
	Status       string         `db:"status" json:"status"`
	Answers      types.JSONText `db:"answers" json:"answers"`
	CreatedAt    dbtime.Time    `db:"created_at" json:"createdAt"`
}

// Notification kinds.
const (
	NotifyQuizScore    = "quiz_score"
	NotifyReviewNeeded = "quiz_review_needed"
)

// Notification is a persisted side notice awaiting delivery.
type Notification struct {
	ID             string         `db:"id" json:"id"`
	RecipientEmail string         `db:"recipient_email" json:"recipientEmail"`
	Kind           string         `db:"kind" json:"kind"`
	Title          string         `db:"title" json:"title"`
	Message        string         `db:"message" json:"message"`
	Payload        types.JSONText `db:"payload" json:"payload,omitempty"`
	CreatedAt      dbtime.Time    `db:"created_at" json:"createdAt"`
	DeliveredAt    *dbtime.Time   `db:"delivered_at" json:"deliveredAt,omitempty"`
}
