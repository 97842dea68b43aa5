package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("enroll: %w", E(CapacityExceeded, "batch is full"))
	assert.Equal(t, CapacityExceeded, KindOf(wrapped))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.ErrorIs(t, wrapped, E(CapacityExceeded, ""), "errors.Is should match on kind")
	assert.NotErrorIs(t, wrapped, E(NotFound, ""))
}

func TestMessageHidesInternalCause(t *testing.T) {
	t.Parallel()

	err := Wrap(Internal, sql.ErrConnDone, "load batch")
	assert.Equal(t, "internal error", Message(err))
	assert.ErrorIs(t, err, sql.ErrConnDone, "cause should stay reachable through Unwrap")
	assert.Equal(t, "not enrolled in batch", Message(E(NotEnrolled, "not enrolled in batch")))
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := map[Kind]int{
		InvalidInput:        http.StatusBadRequest,
		NotFound:            http.StatusNotFound,
		Unauthorized:        http.StatusUnauthorized,
		Forbidden:           http.StatusForbidden,
		NotEnrolled:         http.StatusForbidden,
		CapacityExceeded:    http.StatusConflict,
		DuplicateEnrollment: http.StatusConflict,
		Conflict:            http.StatusConflict,
		Internal:            http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, HTTPStatus(kind), kind)
	}
}
