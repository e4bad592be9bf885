package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrorHandler receives the errors of failed executions: a returned error,
// a *PanicError for a panicking handler, or a *TimeoutError. Errors never
// propagate further and a failing job keeps its schedule.
type ErrorHandler interface {
	HandleError(job *Job, fireTime time.Time, err error)
}

// ErrorHandlerFunc adapts a function to the ErrorHandler interface.
type ErrorHandlerFunc func(job *Job, fireTime time.Time, err error)

// HandleError calls f.
func (f ErrorHandlerFunc) HandleError(job *Job, fireTime time.Time, err error) {
	f(job, fireTime, err)
}

// Default rate of the logging error handler.
const (
	DefaultErrorRate  = rate.Limit(10)
	DefaultErrorBurst = 20
)

// LogErrorHandler logs failed executions with their job context. Reports
// beyond the rate limit are counted and the count is attached to the next
// report that gets through.
type LogErrorHandler struct {
	logger     Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewLogErrorHandler returns a LogErrorHandler with the default rate.
func NewLogErrorHandler(logger Logger) *LogErrorHandler {
	return NewRateLimitedErrorHandler(logger, DefaultErrorRate, DefaultErrorBurst)
}

// NewRateLimitedErrorHandler returns a LogErrorHandler allowing limit
// reports per second with the given burst.
func NewRateLimitedErrorHandler(logger Logger, limit rate.Limit, burst int) *LogErrorHandler {
	if logger == nil {
		logger = DefaultLogger
	}
	return &LogErrorHandler{logger: logger, limiter: rate.NewLimiter(limit, burst)}
}

// HandleError implements ErrorHandler.
func (h *LogErrorHandler) HandleError(job *Job, fireTime time.Time, err error) {
	if !h.limiter.Allow() {
		h.suppressed.Add(1)
		return
	}
	kv := []any{
		"job", job.ID(),
		"kind", job.Kind().String(),
		"schedule", job.Original(),
		"fire_time", fireTime,
	}
	if name := job.Name(); name != "" {
		kv = append(kv, "name", name)
	}
	if n := h.suppressed.Swap(0); n > 0 {
		kv = append(kv, "suppressed", n)
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		kv = append(kv, "stack", string(pe.Stack))
	}
	msg := "job failed"
	if errors.Is(err, ErrJobTimeout) {
		msg = "job timed out"
	}
	h.logger.Error(err, msg, kv...)
}

// Suppressed returns how many reports were dropped since the last one
// logged.
func (h *LogErrorHandler) Suppressed() int64 { return h.suppressed.Load() }

// handleError passes err to the error handler. A panicking error handler is
// reported on stderr and otherwise ignored.
func (s *Scheduler) handleError(j *Job, fireTime time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(s.stderr, "scheduler: error handler panicked: %v (job %s: %v)\n", r, j.ID(), err)
		}
	}()
	s.errorHandler.HandleError(j, fireTime, err)
}

// safeCall runs the handler and converts a panic into a *PanicError
// carrying the stack at the point of panic.
func safeCall(ctx context.Context, h Handler, j *Job, fireTime time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			err = &PanicError{Value: r, Stack: buf}
		}
	}()
	return h.Handle(ctx, j, fireTime)
}
