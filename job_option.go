package scheduler

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// JobConfig lists every per-job option with its default. It is filled by
// JobOption functions and validated when the job is scheduled.
type JobConfig struct {
	// Tags label the job for UnscheduleByTag and Jobs filtering.
	Tags []string
	// ID overrides the generated id. Scheduling a job with the id of a
	// pending job replaces that job.
	ID string
	// Name is a free-form label used in logs and hooks.
	Name string
	// Overlap allows a new trigger while a previous one still runs.
	// Default true.
	Overlap bool
	// Mutexes names mutual exclusion domains held while the handler runs.
	Mutexes []string
	// Lockers are caller-owned locks held while the handler runs, acquired
	// after the named mutexes.
	Lockers []sync.Locker
	// Timeout cancels the handler's context with a *TimeoutError. Zero
	// disables it.
	Timeout time.Duration
	// Blocking runs the handler on the scheduler loop goroutine.
	Blocking bool
	// Times caps how often a repeating job fires, -1 for unlimited.
	Times int
	// FirstAt, FirstIn and FirstNow override the first occurrence of a
	// repeating job. At most one may be set.
	FirstAt  time.Time
	FirstIn  time.Duration
	FirstNow bool
	// LastAt and LastIn bound a repeating job. At most one may be set.
	LastAt time.Time
	LastIn time.Duration
	// DiscardPast drops occurrences already in the past instead of catching
	// up. Nil means the scheduler default.
	DiscardPast *bool
	// Paused schedules the job paused.
	Paused bool
}

// DefaultJobConfig returns the configuration used when no option is given.
func DefaultJobConfig() JobConfig {
	return JobConfig{Overlap: true, Times: -1}
}

// JobOption configures a job.
type JobOption func(*JobConfig)

// WithTags adds tags to the job.
func WithTags(tags ...string) JobOption {
	return func(c *JobConfig) { c.Tags = append(c.Tags, tags...) }
}

// WithJobID sets an explicit job id.
func WithJobID(id string) JobOption {
	return func(c *JobConfig) { c.ID = id }
}

// WithName names the job.
func WithName(name string) JobOption {
	return func(c *JobConfig) { c.Name = name }
}

// WithOverlap sets whether the job may fire while a previous execution still
// runs.
func WithOverlap(allow bool) JobOption {
	return func(c *JobConfig) { c.Overlap = allow }
}

// WithMutex adds named mutual exclusion domains.
func WithMutex(names ...string) JobOption {
	return func(c *JobConfig) { c.Mutexes = append(c.Mutexes, names...) }
}

// WithLocker adds caller-owned locks held while the handler runs.
func WithLocker(lockers ...sync.Locker) JobOption {
	return func(c *JobConfig) { c.Lockers = append(c.Lockers, lockers...) }
}

// WithTimeout cancels the handler's context after d.
func WithTimeout(d time.Duration) JobOption {
	return func(c *JobConfig) { c.Timeout = d }
}

// WithBlocking runs the handler on the scheduler loop goroutine.
func WithBlocking() JobOption {
	return func(c *JobConfig) { c.Blocking = true }
}

// WithTimes caps how many times a repeating job fires.
func WithTimes(n int) JobOption {
	return func(c *JobConfig) { c.Times = n }
}

// WithFirstAt sets the first occurrence of a repeating job.
func WithFirstAt(t time.Time) JobOption {
	return func(c *JobConfig) { c.FirstAt = t }
}

// WithFirstIn sets the first occurrence of a repeating job relative to
// scheduling.
func WithFirstIn(d time.Duration) JobOption {
	return func(c *JobConfig) { c.FirstIn = d }
}

// WithFirstNow makes a repeating job fire on the next tick.
func WithFirstNow() JobOption {
	return func(c *JobConfig) { c.FirstNow = true }
}

// WithLastAt stops a repeating job after t.
func WithLastAt(t time.Time) JobOption {
	return func(c *JobConfig) { c.LastAt = t }
}

// WithLastIn stops a repeating job d after scheduling.
func WithLastIn(d time.Duration) JobOption {
	return func(c *JobConfig) { c.LastIn = d }
}

// WithDiscardPast overrides the scheduler's discard-past policy for the job.
func WithDiscardPast(discard bool) JobOption {
	return func(c *JobConfig) { c.DiscardPast = &discard }
}

// WithPaused schedules the job paused.
func WithPaused() JobOption {
	return func(c *JobConfig) { c.Paused = true }
}

func newJobConfig(opts []JobOption) JobConfig {
	c := DefaultJobConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// validate checks c against the job kind.
func (c *JobConfig) validate(kind Kind) error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidOption, c.Timeout)
	}
	if c.Timeout > 0 && c.Blocking {
		return ErrTimeoutWithBlocking
	}
	if c.Times == 0 || c.Times < -1 {
		return fmt.Errorf("%w: times must be positive or -1, got %d", ErrInvalidOption, c.Times)
	}
	if c.FirstIn < 0 || c.LastIn < 0 {
		return fmt.Errorf("%w: negative first_in or last_in", ErrInvalidOption)
	}
	firsts := 0
	for _, set := range []bool{!c.FirstAt.IsZero(), c.FirstIn > 0, c.FirstNow} {
		if set {
			firsts++
		}
	}
	if firsts > 1 {
		return fmt.Errorf("%w: at most one of first_at, first_in and first_now", ErrInvalidOption)
	}
	hasLast := !c.LastAt.IsZero() || c.LastIn > 0
	if !c.LastAt.IsZero() && c.LastIn > 0 {
		return fmt.Errorf("%w: at most one of last_at and last_in", ErrInvalidOption)
	}
	if !kind.Repeating() {
		if firsts > 0 || hasLast || c.Times != -1 {
			return fmt.Errorf("%w: first, last and times only apply to repeating jobs", ErrInvalidOption)
		}
	}
	if slices.Contains(c.Mutexes, "") {
		return fmt.Errorf("%w: empty mutex name", ErrInvalidOption)
	}
	if slices.Contains(c.Lockers, nil) {
		return fmt.Errorf("%w: nil locker", ErrInvalidOption)
	}
	return nil
}
