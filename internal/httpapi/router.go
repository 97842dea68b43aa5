// Package httpapi exposes the enrollment, attendance and quiz services over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"academy/internal/attendance"
	"academy/internal/auth"
	"academy/internal/enrollment"
	"academy/internal/httpmiddleware"
	"academy/internal/model"
	"academy/internal/quiz"
	"academy/internal/store"
)

// Options configures authentication and request limits.
type Options struct {
	SigningKey      string
	Issuer          string
	RateLimitPerMin int
	AllowedOrigins  []string
}

// Deps are the services and handles the routes call into.
type Deps struct {
	DB         *store.DB
	Redis      *store.Redis
	Enrollment *enrollment.Service
	Attendance *attendance.Service
	Quiz       *quiz.Service
	Resolver   auth.Resolver
}

type handler struct {
	Deps
	log zerolog.Logger
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(opts Options, deps Deps, log zerolog.Logger) *gin.Engine {
	h := &handler{Deps: deps, log: log.With().Str("component", "http").Logger()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(h.log, "/healthz", "/metrics"))
	r.Use(corsMiddleware(opts.AllowedOrigins))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)

	limiter := httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin)
	v1 := r.Group("/v1", auth.Authenticate(opts.SigningKey, opts.Issuer, deps.Resolver), limiter.GinMiddleware())

	staff := auth.RequireRole(model.RoleTrainer, model.RoleAdmin)
	student := auth.RequireRole(model.RoleStudent)

	v1.POST("/enrollments", student, h.enroll)
	v1.GET("/enrollments", h.listEnrollments)

	v1.POST("/batches/:batchId/attendance", staff, h.recordAttendance)
	v1.GET("/batches/:batchId/attendance", staff, h.listAttendance)
	v1.POST("/batches/:batchId/session-time", student, h.reportSessionTime)

	v1.POST("/quizzes/:quizId/attempts", student, h.submitAttempt)
	v1.GET("/quizzes/:quizId/attempts", h.listAttempts)

	return r
}

func (h *handler) health(c *gin.Context) {
	ctx := c.Request.Context()
	dbHealthy := h.DB.Healthy(ctx)
	redis := "disabled"
	redisHealthy := true
	if h.Redis != nil {
		redisHealthy = h.Redis.Healthy(ctx)
		redis = "down"
		if redisHealthy {
			redis = "up"
		}
	}
	status, text := http.StatusOK, "ok"
	if !dbHealthy || !redisHealthy {
		status, text = http.StatusServiceUnavailable, "degraded"
	}
	c.JSON(status, gin.H{"status": text, "db": dbHealthy, "redis": redis})
}

// corsMiddleware allows any origin without credentials when none are configured. Auth is a
// bearer header, so only an explicit origin list enables credentials.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func requestLogger(log zerolog.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if actor, ok := auth.ActorFrom(c); ok {
			ev = ev.Str("actor", actor.Email)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}
