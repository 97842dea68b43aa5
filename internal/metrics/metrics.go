package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_enrollments_total",
		Help: "Enrollment attempts by result kind.",
	}, []string{"result"})

	AttendanceRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_attendance_records_total",
		Help: "Attendance records inserted, by source.",
	}, []string{"source"})

	QuizAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_quiz_attempts_total",
		Help: "Persisted quiz attempts by status.",
	}, []string{"status"})

	SessionMinutes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "academy_session_minutes_total",
		Help: "Session minutes reported by trainees.",
	})

	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_side_effect_failures_total",
		Help: "Best-effort side effects that failed and were discarded.",
	}, []string{"effect"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_notifications_total",
		Help: "Notification dispatch and delivery outcomes.",
	}, []string{"result"})
)
