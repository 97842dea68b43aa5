package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"academy/internal/apperr"
	"academy/internal/attendance"
	"academy/internal/auth"
	"academy/internal/enrollment"
	"academy/internal/model"
	"academy/internal/quiz"
)

type enrollRequest struct {
	CourseID string `json:"courseId" binding:"required"`
	BatchID  string `json:"batchId"`
}

type sessionTimeRequest struct {
	MinutesDelta *int `json:"minutesDelta" binding:"required"`
}

func (h *handler) enroll(c *gin.Context) {
	var req enrollRequest
	if !h.bind(c, &req) {
		return
	}
	e, err := h.Enrollment.Enroll(c.Request.Context(), actor(c), enrollment.EnrollInput{CourseID: req.CourseID, BatchID: req.BatchID})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"enrollmentId": e.ID, "batchId": e.BatchID})
}

func (h *handler) listEnrollments(c *gin.Context) {
	out, err := h.Enrollment.ListForStudent(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": out})
}

func (h *handler) recordAttendance(c *gin.Context) {
	var req attendance.ManualInput
	if !h.bind(c, &req) {
		return
	}
	n, err := h.Attendance.RecordManualAttendance(c.Request.Context(), actor(c), c.Param("batchId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inserted": n})
}

func (h *handler) listAttendance(c *gin.Context) {
	out, err := h.Attendance.ListRecords(c.Request.Context(), actor(c), c.Param("batchId"), c.Query("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (h *handler) reportSessionTime(c *gin.Context) {
	var req sessionTimeRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.Attendance.ReportSessionTime(c.Request.Context(), actor(c), c.Param("batchId"), *req.MinutesDelta)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) submitAttempt(c *gin.Context) {
	var req quiz.SubmitInput
	if !h.bind(c, &req) {
		return
	}
	a, err := h.Quiz.SubmitAttempt(c.Request.Context(), actor(c), c.Param("quizId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *handler) listAttempts(c *gin.Context) {
	out, err := h.Quiz.ListAttempts(c.Request.Context(), actor(c), c.Param("quizId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": out})
}

func actor(c *gin.Context) model.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}

func (h *handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperr.Wrap(apperr.InvalidInput, err, "invalid request body"))
		return false
	}
	return true
}

// fail writes the error body. Internal causes are logged, never returned.
func (h *handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		_ = c.Error(err)
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	msg := apperr.Message(err)
	var ae *apperr.Error
	if kind == apperr.InvalidInput && errors.As(err, &ae) && ae.Err != nil {
		msg = ae.Message + ": " + ae.Err.Error()
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{"error": msg, "code": kind})
}
