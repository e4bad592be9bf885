package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Middleware decorates a Handler with some behavior.
type Middleware func(Handler) Handler

// Chain is a sequence of Middleware that decorates handlers with
// cross-cutting behaviors like logging or retries.
type Chain struct {
	middleware []Middleware
}

// NewChain returns a Chain consisting of the given Middleware.
func NewChain(m ...Middleware) Chain {
	return Chain{middleware: m}
}

// Then decorates the given handler with all Middleware in the chain.
//
// This:
//
//	NewChain(m1, m2, m3).Then(h)
//
// is equivalent to:
//
//	m1(m2(m3(h)))
func (c Chain) Then(h Handler) Handler {
	for i := len(c.middleware) - 1; i >= 0; i-- {
		h = c.middleware[i](h)
	}
	return h
}

// LogLevel defines the severity used by Recover.
type LogLevel int

const (
	// LogLevelError logs at Error.
	LogLevelError LogLevel = iota
	// LogLevelInfo logs at Info, for use under a retrying middleware.
	LogLevelInfo
)

type recoverOpts struct {
	level LogLevel
}

// RecoverOption configures Recover.
type RecoverOption func(*recoverOpts)

// WithLogLevel sets the level recovered panics are logged at.
func WithLogLevel(level LogLevel) RecoverOption {
	return func(o *recoverOpts) { o.level = level }
}

// Recover turns panics in the wrapped handler into a *PanicError, logging
// them first. Without it the scheduler still recovers panics and routes
// them to the ErrorHandler; Recover is for handlers invoked by other
// middleware that expects errors.
//
//	h := scheduler.NewChain(scheduler.Recover(logger)).Then(h)
func Recover(logger Logger, opts ...RecoverOption) Middleware {
	o := recoverOpts{}
	for _, opt := range opts {
		opt(&o)
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, job *Job, fireTime time.Time) error {
			err := safeCall(ctx, next, job, fireTime)
			var pe *PanicError
			if errors.As(err, &pe) {
				if o.level == LogLevelInfo {
					logger.Info("panic", "job", jobID(job), "error", fmt.Sprint(pe.Value))
				} else {
					logger.Error(pe, "panic", "job", jobID(job), "stack", string(pe.Stack))
				}
			}
			return err
		})
	}
}

// LogRuns logs the start and end of every execution at Info.
func LogRuns(logger Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, job *Job, fireTime time.Time) error {
			logger.Info("job start", "job", jobID(job), "fire_time", fireTime)
			start := time.Now()
			err := next.Handle(ctx, job, fireTime)
			logger.Info("job end", "job", jobID(job), "elapsed", time.Since(start), "ok", err == nil)
			return err
		})
	}
}

func jobID(j *Job) string {
	if j == nil {
		return ""
	}
	return j.ID()
}
