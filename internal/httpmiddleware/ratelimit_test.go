package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"academy/internal/auth"
	"academy/internal/model"
)

func init() { gin.SetMode(gin.TestMode) }

func TestTokenBucketRefills(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("k"))
	assert.True(t, l.allow("k"), "capacity of 2")
	assert.False(t, l.allow("k"), "third call is limited")
	assert.True(t, l.allow("other"), "keys are independent")
	now = now.Add(time.Second)
	assert.True(t, l.allow("k"), "one token after a second at 60/min")
}

func TestMiddlewareKeysByActor(t *testing.T) {
	t.Parallel()

	l := NewSimpleTokenBucket(1, 1)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if email := c.GetHeader("X-Test-Actor"); email != "" {
			auth.SetActor(c, model.Actor{Email: email, Role: model.RoleStudent})
		}
		c.Next()
	}, l.GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	call := func(actor string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if actor != "" {
			req.Header.Set("X-Test-Actor", actor)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("a@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, call("a@example.com"), "second call for same actor")
	assert.Equal(t, http.StatusNoContent, call("b@example.com"), "other actor on same IP")
	assert.Equal(t, http.StatusNoContent, call(""), "anonymous call")
}
