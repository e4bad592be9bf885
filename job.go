package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Kind identifies how a job computes its occurrences.
type Kind int

const (
	// KindAt fires once at an absolute instant.
	KindAt Kind = iota
	// KindIn fires once after a delay measured from scheduling.
	KindIn
	// KindEvery fires repeatedly at a fixed wall-clock cadence.
	KindEvery
	// KindInterval fires repeatedly, the cadence measured from the end of
	// the previous execution.
	KindInterval
	// KindCron fires on a calendar schedule.
	KindCron
)

// String returns the lower-case kind name, also used as job id prefix.
func (k Kind) String() string {
	switch k {
	case KindAt:
		return "at"
	case KindIn:
		return "in"
	case KindEvery:
		return "every"
	case KindInterval:
		return "interval"
	case KindCron:
		return "cron"
	default:
		return "unknown"
	}
}

// Repeating reports whether jobs of this kind fire more than once.
func (k Kind) Repeating() bool {
	return k == KindEvery || k == KindInterval || k == KindCron
}

// State is the lifecycle state of a job. Paused is orthogonal and reported
// by Job.Paused.
type State int

const (
	// StateScheduled jobs wait in the queue for their next time.
	StateScheduled State = iota
	// StateTriggering jobs have at least one execution in flight.
	StateTriggering
	// StateExhausted jobs used up their times budget, passed their last
	// bound, or are one-shot jobs that already fired.
	StateExhausted
	// StateUnscheduled jobs were removed by Unschedule or discarded.
	StateUnscheduled
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateTriggering:
		return "triggering"
	case StateExhausted:
		return "exhausted"
	case StateUnscheduled:
		return "unscheduled"
	default:
		return "unknown"
	}
}

// Handler is the unit of work run when a job fires. The context is canceled
// when the job times out (cause *TimeoutError), is killed (cause
// ErrJobKilled) or the scheduler is shut down in kill mode.
type Handler interface {
	Handle(ctx context.Context, job *Job, fireTime time.Time) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job, fireTime time.Time) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *Job, fireTime time.Time) error {
	return f(ctx, job, fireTime)
}

// Func adapts a plain function that needs neither the job nor its context.
func Func(fn func()) Handler {
	return HandlerFunc(func(context.Context, *Job, time.Time) error {
		fn()
		return nil
	})
}

// Job is one scheduled unit of work. It is a tagged variant over Kind: at
// carries the target instant of KindAt and KindIn jobs, duration the delay
// or period of KindIn, KindEvery and KindInterval jobs and cron the
// expression of KindCron jobs.
//
// All methods are safe for concurrent use.
type Job struct {
	id       string
	kind     Kind
	original string
	at       time.Time
	duration time.Duration
	cron     *CronExpression

	handler     Handler
	sched       *Scheduler
	cfg         JobConfig
	tags        []string
	scheduledAt time.Time
	lastAt      time.Time // zero when unbounded
	discardPast bool

	mu            sync.Mutex
	nextTime      time.Time
	previousTime  time.Time
	lastTime      time.Time
	count         int
	timesLeft     int
	paused        bool
	pausedAt      time.Time
	exhausted     bool
	unscheduledAt time.Time
	lastWork      time.Duration
	totalWork     time.Duration
	completed     int
	runs          map[uint64]*execution
	runSeq        uint64
	queued        int // triggers waiting for a worker
}

// execution is the handle of one in-flight run of a job.
type execution struct {
	id       uint64
	fireTime time.Time
	started  time.Time
	cancel   context.CancelCauseFunc
}

// ID returns the job id, unique within its scheduler.
func (j *Job) ID() string { return j.id }

// Name returns the optional name given with WithName.
func (j *Job) Name() string { return j.cfg.Name }

// Kind returns the job kind.
func (j *Job) Kind() Kind { return j.kind }

// Original returns the schedule as given by the caller.
func (j *Job) Original() string { return j.original }

// Tags returns a copy of the job's tags.
func (j *Job) Tags() []string { return slices.Clone(j.tags) }

// HasTag reports whether the job carries tag.
func (j *Job) HasTag(tag string) bool { return slices.Contains(j.tags, tag) }

// Config returns a copy of the job's configuration.
func (j *Job) Config() JobConfig {
	c := j.cfg
	c.Tags = slices.Clone(c.Tags)
	c.Mutexes = slices.Clone(c.Mutexes)
	c.Lockers = slices.Clone(c.Lockers)
	return c
}

// CronExpression returns the expression of a KindCron job, nil otherwise.
func (j *Job) CronExpression() *CronExpression { return j.cron }

// Duration returns the delay of a KindIn job or the period of a KindEvery
// or KindInterval job.
func (j *Job) Duration() time.Duration { return j.duration }

// Scheduler returns the scheduler the job belongs to.
func (j *Job) Scheduler() *Scheduler { return j.sched }

// ScheduledAt returns when the job was scheduled.
func (j *Job) ScheduledAt() time.Time { return j.scheduledAt }

// LastAt returns the job's last bound, zero when unbounded.
func (j *Job) LastAt() time.Time { return j.lastAt }

// NextTime returns the time the job fires next. It is zero for jobs that
// will not fire again.
func (j *Job) NextTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextTime
}

// PreviousTime returns the scheduled time of the latest trigger.
func (j *Job) PreviousTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.previousTime
}

// LastTime returns the wall time the latest trigger actually happened.
func (j *Job) LastTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastTime
}

// Count returns how many times the job was triggered.
func (j *Job) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// TimesLeft returns the remaining trigger budget, -1 when unlimited.
func (j *Job) TimesLeft() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.timesLeft
}

// MeanWorkTime returns the mean duration of completed executions.
func (j *Job) MeanWorkTime() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.completed == 0 {
		return 0
	}
	return j.totalWork / time.Duration(j.completed)
}

// LastWorkTime returns the duration of the latest completed execution.
func (j *Job) LastWorkTime() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastWork
}

// Paused reports whether the job is paused.
func (j *Job) Paused() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.paused
}

// PausedAt returns when the job was paused, zero when it is not.
func (j *Job) PausedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pausedAt
}

// Running reports whether at least one execution is in flight.
func (j *Job) Running() bool { return j.RunningCount() > 0 }

// RunningCount returns the number of executions in flight.
func (j *Job) RunningCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.runs)
}

// Unscheduled reports whether the job was unscheduled.
func (j *Job) Unscheduled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.unscheduledAt.IsZero()
}

// UnscheduledAt returns when the job was unscheduled, zero when it was not.
func (j *Job) UnscheduledAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.unscheduledAt
}

// State returns the job's lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case !j.unscheduledAt.IsZero():
		return StateUnscheduled
	case len(j.runs) > 0 || j.queued > 0:
		return StateTriggering
	case j.exhausted:
		return StateExhausted
	default:
		return StateScheduled
	}
}

// Unschedule removes the job from its scheduler. Running executions finish.
func (j *Job) Unschedule() { j.sched.UnscheduleJob(j) }

// Pause stops the job from executing until Resume.
func (j *Job) Pause() { j.setPaused(true, j.sched.clock.Now()) }

// Resume undoes Pause.
func (j *Job) Resume() { j.setPaused(false, time.Time{}) }

// Kill cancels the job's in-flight executions with ErrJobKilled. The job
// stays scheduled.
func (j *Job) Kill() int { return j.cancelRuns(ErrJobKilled) }

func (j *Job) setPaused(p bool, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.paused = p
	j.pausedAt = at
}

// markUnscheduled records the unschedule time. It returns false when the
// job was already unscheduled.
func (j *Job) markUnscheduled(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.unscheduledAt.IsZero() {
		return false
	}
	j.unscheduledAt = now
	j.nextTime = time.Time{}
	return true
}

// enqueued records a trigger handed to the dispatcher. beginRun or dropped
// takes it back.
func (j *Job) enqueued() {
	j.mu.Lock()
	j.queued++
	j.mu.Unlock()
}

func (j *Job) dropped() {
	j.mu.Lock()
	if j.queued > 0 {
		j.queued--
	}
	j.mu.Unlock()
}

// inFlight reports whether an execution is running or waiting for a worker.
func (j *Job) inFlight() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.runs) > 0 || j.queued > 0
}

// beginRun registers an in-flight execution and returns its context. A run
// that waited in the dispatcher stops counting as queued in the same step.
func (j *Job) beginRun(parent context.Context, fireTime, now time.Time, wasQueued bool) (context.Context, *execution) {
	ctx, cancel := context.WithCancelCause(parent)
	j.mu.Lock()
	defer j.mu.Unlock()
	if wasQueued && j.queued > 0 {
		j.queued--
	}
	j.runSeq++
	run := &execution{id: j.runSeq, fireTime: fireTime, started: now, cancel: cancel}
	if j.runs == nil {
		j.runs = make(map[uint64]*execution)
	}
	j.runs[run.id] = run
	return ctx, run
}

// endRun unregisters run and records its work time. It reports whether no
// other execution is in flight.
func (j *Job) endRun(run *execution, work time.Duration) bool {
	run.cancel(nil)
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.runs, run.id)
	j.lastWork = work
	j.totalWork += work
	j.completed++
	return len(j.runs) == 0
}

func (j *Job) cancelRuns(cause error) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range j.runs {
		r.cancel(cause)
	}
	return len(j.runs)
}

// Occurrences returns the times the job would fire in (from, to], assuming
// it is neither paused nor unscheduled. Interval jobs are approximated as if
// executions took no time.
func (j *Job) Occurrences(from, to time.Time) []time.Time {
	j.mu.Lock()
	next, left, done := j.nextTime, j.timesLeft, j.exhausted || !j.unscheduledAt.IsZero()
	j.mu.Unlock()
	if done || next.IsZero() || !from.Before(to) {
		return nil
	}

	var out []time.Time
	within := func(t time.Time) bool {
		return !t.After(to) && (j.lastAt.IsZero() || !t.After(j.lastAt)) && (left < 0 || len(out) < left)
	}
	switch j.kind {
	case KindAt, KindIn:
		if next.After(from) && within(next) {
			out = append(out, next)
		}
	case KindEvery, KindInterval:
		t := next
		if t.Before(from) || t.Equal(from) {
			k := from.Sub(t)/j.duration + 1
			t = t.Add(k * j.duration)
		}
		for ; within(t); t = t.Add(j.duration) {
			out = append(out, t)
		}
	case KindCron:
		t := next
		if !t.After(from) {
			t = j.cron.Next(from)
		}
		for ; !t.IsZero() && within(t); t = j.cron.Next(t) {
			out = append(out, t)
		}
	}
	return out
}
