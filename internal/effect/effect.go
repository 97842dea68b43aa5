// Package effect runs best-effort work whose failure must never fail the caller's primary operation.
package effect

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"academy/internal/metrics"
)

// Task is a unit of non-critical work.
type Task func(ctx context.Context) error

// Result is the outcome of a best-effort task. It is logged and discarded, never returned as an error.
type Result struct {
	Name string
	Err  error
}

// OK reports whether the task succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Log records a failed task and counts it. Successful results are logged at debug level.
func (r Result) Log(log zerolog.Logger) {
	if r.Err == nil {
		log.Debug().Str("effect", r.Name).Msg("side effect done")
		return
	}
	metrics.SideEffectFailures.WithLabelValues(r.Name).Inc()
	log.Warn().Err(r.Err).Str("effect", r.Name).Msg("side effect failed")
}

// Attempt runs task, converting a panic into a failed Result.
func Attempt(ctx context.Context, name string, task Task) (res Result) {
	res.Name = name
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
		}
	}()
	res.Err = task(ctx)
	return res
}
