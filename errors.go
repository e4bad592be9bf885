package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig is matched (errors.Is) by every error returned synchronously
// because a schedule call or a scheduler option was invalid.
var ErrConfig = errors.New("scheduler: invalid configuration")

// Configuration errors. They are always returned wrapped together with ErrConfig
// when they come out of a schedule call.
var (
	ErrInvalidCron         = errors.New("invalid cron expression")
	ErrInvalidDuration     = errors.New("invalid duration")
	ErrInvalidTime         = errors.New("invalid time")
	ErrInvalidOption       = errors.New("invalid job option")
	ErrTooFrequent         = errors.New("job frequency is finer than scheduler frequency")
	ErrTimeoutWithBlocking = errors.New("timeout cannot be combined with blocking")
	ErrMissingHandler      = errors.New("missing job handler")
)

// Runtime errors.
var (
	// ErrJobTimeout is the cause attached to a job context whose timeout elapsed.
	ErrJobTimeout = errors.New("scheduler: job timed out")

	// ErrJobKilled is the cause attached to a job context canceled by Kill or
	// by Shutdown in ShutdownKill mode.
	ErrJobKilled = errors.New("scheduler: job killed")

	// ErrSchedulerDown is returned by Start when the scheduler lock could not
	// be acquired. The scheduler stays inactive for its whole lifetime.
	ErrSchedulerDown = errors.New("scheduler: down, scheduler lock not acquired")

	// ErrLocked is returned by New when WithFailOnLocked is set and the
	// scheduler lock is held elsewhere.
	ErrLocked = errors.New("scheduler: lock held by another scheduler")

	// ErrSchedulerStopped is returned when scheduling on a scheduler that was shut down.
	ErrSchedulerStopped = errors.New("scheduler: shut down")

	// ErrJobNotFound is returned when an id does not name a known job.
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrCircuitOpen is returned by CircuitBreaker while the circuit is open.
	ErrCircuitOpen = errors.New("scheduler: circuit open")
)

// configError tags err as a configuration error.
func configError(err error) error {
	if errors.Is(err, ErrConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfig, err)
}

// TimeoutError is the distinguished signal delivered when a job exceeds its
// timeout option. It is the context cause seen by the handler and the error
// passed to the ErrorHandler when the handler did not absorb it.
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scheduler: job %s timed out after %s", e.JobID, e.Timeout)
}

// Is makes errors.Is(err, ErrJobTimeout) true for a *TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrJobTimeout
}

// PanicError wraps a value recovered from a panicking handler, together with
// the stack at the point of panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Unwrap returns the panic value when it was itself an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}
