package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// Option represents a modification to the default behavior of a Scheduler.
type Option func(*Scheduler)

// WithFrequency sets the tick period. Repeating jobs finer than the
// frequency are rejected when scheduled.
func WithFrequency(d time.Duration) Option {
	return func(s *Scheduler) {
		s.frequency = d
	}
}

// WithThreads bounds the worker pool.
func WithThreads(minThreads, maxThreads int) Option {
	return func(s *Scheduler) {
		s.minThreads = minThreads
		s.maxThreads = maxThreads
	}
}

// WithWorkerIdleTimeout sets how long a worker above the minimum count may
// idle before it exits.
func WithWorkerIdleTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.idleTimeout = d
	}
}

// WithClock uses the provided clock instead of the real one. It drives the
// loop, job times and timeouts, which makes the scheduler deterministic
// under a clockwork.FakeClock:
//
//	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
//	s, _ := scheduler.New(scheduler.WithClock(clock))
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		if clock == nil {
			s.optErr = fmt.Errorf("%w: nil clock", ErrInvalidOption)
			return
		}
		s.clock = clock
	}
}

// WithLocation overrides the location used for time strings and cron
// expressions that do not name a zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithZones sets the resolver for zone tokens in cron expressions and time
// strings.
func WithZones(z ZoneResolver) Option {
	return func(s *Scheduler) {
		if z != nil {
			s.zones = z
		}
	}
}

// WithLogger uses the provided logger.
func WithLogger(logger Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithErrorHandler routes failed executions to h instead of the logging
// default.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Scheduler) {
		s.errorHandler = h
	}
}

// WithHooks configures observability hooks. Hooks are called synchronously,
// so implementations should be lightweight.
func WithHooks(hooks Hooks) Option {
	return func(s *Scheduler) {
		s.hooks = hooks
	}
}

// WithTracer wraps every execution in a span started from t.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

// WithDefaultDiscardPast sets the discard-past policy of jobs that do not
// choose one with WithDiscardPast. Default true.
func WithDefaultDiscardPast(discard bool) Option {
	return func(s *Scheduler) {
		s.discardPast = discard
	}
}

// WithLockFile guards the scheduler with an advisory file lock on path.
func WithLockFile(path string) Option {
	return func(s *Scheduler) {
		s.lockFile = path
	}
}

// WithSchedulerLock guards the scheduler with a custom lock, acquired in New.
func WithSchedulerLock(l Lock) Option {
	return func(s *Scheduler) {
		s.schedulerLock = l
	}
}

// WithTriggerLock sets a lock consulted on every tick before due jobs are
// triggered. Ticks where it cannot be acquired trigger nothing.
func WithTriggerLock(l Lock) Option {
	return func(s *Scheduler) {
		s.triggerLock = l
	}
}

// WithFailOnLocked makes New return ErrLocked instead of a down scheduler
// when the scheduler lock is held elsewhere.
func WithFailOnLocked() Option {
	return func(s *Scheduler) {
		s.failOnLocked = true
	}
}

// WithContext sets the context every job context derives from. Canceling it
// cancels all executions.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}
