package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFrequency is the tick period used when WithFrequency is not given.
const DefaultFrequency = 300 * time.Millisecond

// ShutdownMode selects what Shutdown does with executions in flight.
type ShutdownMode int

const (
	// ShutdownImmediate stops the loop and returns without waiting for
	// running executions.
	ShutdownImmediate ShutdownMode = iota
	// ShutdownWait waits for running and already dispatched executions.
	ShutdownWait
	// ShutdownKill cancels running executions with ErrJobKilled and waits
	// for them to return.
	ShutdownKill
)

func (m ShutdownMode) String() string {
	switch m {
	case ShutdownImmediate:
		return "immediate"
	case ShutdownWait:
		return "wait"
	case ShutdownKill:
		return "kill"
	default:
		return "unknown"
	}
}

// Scheduler keeps track of any number of jobs, firing them when due. A
// single loop goroutine wakes every Frequency, sweeps unscheduled jobs,
// pops due jobs from the queue and hands them to a pool of workers.
//
// Jobs may be scheduled, paused or unscheduled at any time, also while the
// scheduler is running.
type Scheduler struct {
	frequency     time.Duration
	minThreads    int
	maxThreads    int
	idleTimeout   time.Duration
	clock         clockwork.Clock
	loc           *time.Location
	zones         ZoneResolver
	logger        Logger
	errorHandler  ErrorHandler
	hooks         Hooks
	tracer        trace.Tracer
	discardPast   bool
	lockFile      string
	schedulerLock Lock
	triggerLock   Lock
	failOnLocked  bool
	baseCtx       context.Context
	stderr        io.Writer
	optErr        error

	queue      *JobQueue
	mutexes    *MutexRegistry
	dispatcher *dispatcher
	inflight   sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	down      bool
	startedAt time.Time
	running   map[*Job]int
	jobs      map[string]*Job // current job per id: queued, being triggered or running
	stop      chan struct{}
	loopDone  chan struct{}
	done      chan struct{}
}

// New returns a scheduler, not yet started, configured by the given options.
//
// When a scheduler lock is configured (WithLockFile or WithSchedulerLock) it
// is acquired here. If it is held elsewhere the scheduler is down: Start
// returns ErrSchedulerDown and no job ever fires. With WithFailOnLocked, New
// returns ErrLocked instead.
func New(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		frequency:   DefaultFrequency,
		minThreads:  DefaultMinThreads,
		maxThreads:  DefaultMaxThreads,
		idleTimeout: DefaultWorkerIdleTimeout,
		clock:       clockwork.NewRealClock(),
		loc:         time.Local,
		zones:       DefaultZones,
		logger:      DefaultLogger,
		discardPast: true,
		baseCtx:     context.Background(),
		stderr:      os.Stderr,
		queue:       NewJobQueue(),
		mutexes:     NewMutexRegistry(),
		running:     make(map[*Job]int),
		jobs:        make(map[string]*Job),
		stop:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.validate(); err != nil {
		return nil, configError(err)
	}
	if s.errorHandler == nil {
		s.errorHandler = NewLogErrorHandler(s.logger)
	}
	s.dispatcher = newDispatcher(s.minThreads, s.maxThreads, s.idleTimeout, s.execute, func(r any) {
		s.logger.Error(fmt.Errorf("panic: %v", r), "worker recovered from panic")
	})

	if s.lockFile != "" && s.schedulerLock == nil {
		s.schedulerLock = NewFileLock(s.lockFile)
	}
	if s.schedulerLock != nil {
		ok, err := s.schedulerLock.Lock()
		if err != nil || !ok {
			if s.failOnLocked {
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrLocked, err)
				}
				return nil, ErrLocked
			}
			s.down = true
			s.logger.Error(errors.Join(ErrSchedulerDown, err), "scheduler lock not acquired, scheduler is down")
		}
	}
	return s, nil
}

func (s *Scheduler) validate() error {
	if s.optErr != nil {
		return s.optErr
	}
	if s.frequency <= 0 {
		return fmt.Errorf("%w: frequency must be positive, got %s", ErrInvalidOption, s.frequency)
	}
	if s.minThreads < 0 || s.maxThreads < 1 || s.minThreads > s.maxThreads {
		return fmt.Errorf("%w: threads must satisfy 0 <= min <= max, max >= 1 (got %d, %d)",
			ErrInvalidOption, s.minThreads, s.maxThreads)
	}
	if s.idleTimeout <= 0 {
		return fmt.Errorf("%w: worker idle timeout must be positive", ErrInvalidOption)
	}
	return nil
}

// Start launches the scheduler loop. Starting a started scheduler is a
// no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.down:
		return ErrSchedulerDown
	case s.stopped:
		return ErrSchedulerStopped
	case s.started:
		return nil
	}
	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info("start", "frequency", s.frequency, "min_threads", s.minThreads, "max_threads", s.maxThreads)
	go s.run()
	return nil
}

// run is the scheduler loop.
func (s *Scheduler) run() {
	defer close(s.loopDone)
	overruns := 0
	for {
		start := s.clock.Now()
		s.tick(start)

		wait := s.frequency - s.clock.Since(start)
		if wait <= 0 {
			if overruns == 0 {
				s.logger.Info("tick overran", "elapsed", s.frequency-wait, "frequency", s.frequency)
			}
			overruns++
			select {
			case <-s.stop:
				return
			default:
			}
			continue
		}
		if overruns > 0 {
			s.logger.Info("ticks back on schedule", "overruns", overruns)
			overruns = 0
		}
		select {
		case <-s.stop:
			return
		case <-s.clock.After(wait):
		}
	}
}

type dueJob struct {
	job *Job
	at  time.Time
}

// tick runs one iteration of the loop.
func (s *Scheduler) tick(now time.Time) {
	if n := s.queue.RemoveUnscheduled(); n > 0 {
		s.logger.Info("swept unscheduled jobs", "count", n)
	}
	if s.triggerLock != nil {
		ok, err := s.triggerLock.Lock()
		if err != nil {
			s.logger.Error(err, "trigger lock failed")
			return
		}
		if !ok {
			return
		}
	}

	var due []dueJob
	for {
		j, at, ok := s.queue.PopDue(now)
		if !ok {
			break
		}
		due = append(due, dueJob{j, at})
	}
	for _, d := range due {
		s.triggerJob(d.job, d.at, now)
	}
}

// triggerJob decides whether a due job executes, then computes its next
// occurrence. Failures are contained to the job.
func (s *Scheduler) triggerJob(j *Job, fireTime, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Errorf("panic: %v", r), "job trigger failed", "job", j.id)
		}
	}()

	j.mu.Lock()
	unscheduled := !j.unscheduledAt.IsZero()
	paused := j.paused
	j.mu.Unlock()
	if unscheduled {
		s.forget(j)
		return
	}

	if paused {
		if j.kind.Repeating() {
			s.reschedule(j, fireTime, now)
		} else {
			s.enqueue(j, fireTime)
		}
		return
	}
	if !j.cfg.Overlap && j.inFlight() {
		s.logger.Info("skipping overlapping trigger", "job", j.id)
		s.reschedule(j, fireTime, now)
		return
	}
	if !s.hooks.preTrigger(j, fireTime) {
		s.logger.Info("trigger vetoed by hook", "job", j.id)
		s.reschedule(j, fireTime, now)
		return
	}
	if j.Unscheduled() {
		s.forget(j)
		return
	}

	j.mu.Lock()
	j.count++
	if j.timesLeft > 0 {
		j.timesLeft--
	}
	j.previousTime = fireTime
	j.lastTime = now
	if j.kind == KindInterval {
		j.nextTime = time.Time{}
		if j.timesLeft == 0 {
			j.exhausted = true
		}
	}
	j.mu.Unlock()

	if j.kind != KindInterval {
		s.reschedule(j, fireTime, now)
	}
	s.hooks.trigger(j, fireTime)

	t := task{job: j, fireTime: fireTime}
	if j.cfg.Blocking {
		s.execute(t)
		return
	}
	if !s.submit(t) {
		s.logger.Info("dispatcher stopped, trigger dropped", "job", j.id)
	}
}

// submit hands t to the dispatcher, counting it against the job's overlap
// rule until a worker picks it up.
func (s *Scheduler) submit(t task) bool {
	t.queued = true
	t.job.enqueued()
	if !s.dispatcher.submit(t) {
		t.job.dropped()
		return false
	}
	return true
}

// enqueue inserts j into the queue unless it was unscheduled or another job
// took over its id. A job it displaces from the queue is unscheduled.
func (s *Scheduler) enqueue(j *Job, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.jobs[j.id]; ok && cur != j {
		j.markUnscheduled(s.clock.Now())
		return false
	}
	if j.Unscheduled() {
		return false
	}
	if replaced := s.queue.Insert(j, at); replaced != nil {
		replaced.markUnscheduled(s.clock.Now())
	}
	return true
}

// forget drops j from the id registry if it still owns its id.
func (s *Scheduler) forget(j *Job) {
	s.mu.Lock()
	if s.jobs[j.id] == j {
		delete(s.jobs, j.id)
	}
	s.mu.Unlock()
}

// reschedule computes the occurrence after fireTime and reinserts j, or
// marks it exhausted.
func (s *Scheduler) reschedule(j *Job, fireTime, now time.Time) {
	next := s.nextOccurrence(j, fireTime, now)

	j.mu.Lock()
	exhausted := next.IsZero() || j.timesLeft == 0 || (!j.lastAt.IsZero() && next.After(j.lastAt))
	unscheduled := !j.unscheduledAt.IsZero()
	if exhausted {
		j.exhausted = true
		j.nextTime = time.Time{}
	} else {
		j.nextTime = next
	}
	j.mu.Unlock()

	if exhausted {
		s.forget(j)
		s.logger.Info("job done", "job", j.id, "count", j.Count())
		return
	}
	if unscheduled || !s.enqueue(j, next) {
		s.forget(j)
		return
	}
	s.hooks.schedule(j, next)
}

// rescheduleInterval reinserts an interval job measured from end.
func (s *Scheduler) rescheduleInterval(j *Job, end time.Time) {
	s.reschedule(j, end, end)
}

// execute runs one triggered execution. It is called by workers, and on the
// loop goroutine for blocking jobs.
func (s *Scheduler) execute(t task) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	j := t.job
	ctx, run := j.beginRun(s.baseCtx, t.fireTime, s.clock.Now(), t.queued)
	s.addRunning(j)

	start := s.clock.Now()
	release, err := s.mutexes.Acquire(ctx, j.cfg.Mutexes, j.cfg.Lockers)
	if err == nil {
		var timer clockwork.Timer
		if j.cfg.Timeout > 0 {
			cause := &TimeoutError{JobID: j.id, Timeout: j.cfg.Timeout}
			timer = s.clock.AfterFunc(j.cfg.Timeout, func() { run.cancel(cause) })
		}
		start = s.clock.Now()
		err = s.invoke(ctx, j, t.fireTime)
		if timer != nil {
			timer.Stop()
		}
		release()
	}
	err = resolveCause(ctx, err)
	end := s.clock.Now()
	work := end.Sub(start)

	if j.kind == KindInterval && !t.manual {
		s.rescheduleInterval(j, end)
	}
	j.endRun(run, work)
	s.removeRunning(j)

	switch {
	case err == nil:
	case errors.Is(err, ErrJobKilled):
		s.logger.Info("job killed", "job", j.id)
	default:
		s.handleError(j, t.fireTime, err)
	}
	s.hooks.complete(j, t.fireTime, work, err)
}

// resolveCause replaces a bare context cancellation returned by a handler
// with the reason the context was canceled.
func resolveCause(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}
	return err
}

func (s *Scheduler) addRunning(j *Job) {
	s.mu.Lock()
	s.running[j]++
	s.mu.Unlock()
}

func (s *Scheduler) removeRunning(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[j] <= 1 {
		delete(s.running, j)
		return
	}
	s.running[j]--
}

// Shutdown stops the loop. Jobs stay where they are; a stopped scheduler
// cannot be restarted. The context bounds how long Shutdown waits for
// executions in ShutdownWait and ShutdownKill modes.
func (s *Scheduler) Shutdown(ctx context.Context, mode ShutdownMode) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return s.Join(ctx)
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()
	close(s.stop)

	s.logger.Info("stop", "mode", mode.String())
	switch mode {
	case ShutdownWait:
		s.dispatcher.shutdown(false)
	case ShutdownKill:
		s.release(s.dispatcher.shutdown(true))
		s.killAll()
	default:
		s.release(s.dispatcher.shutdown(true))
	}

	var err error
	if started {
		select {
		case <-s.loopDone:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if mode != ShutdownImmediate && err == nil {
		if !s.dispatcher.wait(ctx.Done()) {
			err = ctx.Err()
		} else if !waitGroup(&s.inflight, ctx.Done()) {
			err = ctx.Err()
		}
	}

	if s.triggerLock != nil {
		if uerr := s.triggerLock.Unlock(); uerr != nil {
			s.logger.Error(uerr, "trigger lock release failed")
		}
	}
	if s.schedulerLock != nil && !s.down {
		if uerr := s.schedulerLock.Unlock(); uerr != nil {
			s.logger.Error(uerr, "scheduler lock release failed")
		}
	}
	close(s.done)
	return err
}

func waitGroup(wg *sync.WaitGroup, done <-chan struct{}) bool {
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-done:
		return false
	}
}

// release takes dropped tasks off their jobs' queued counts.
func (s *Scheduler) release(dropped []task) {
	for _, t := range dropped {
		if t.queued {
			t.job.dropped()
		}
	}
}

func (s *Scheduler) killAll() {
	for _, j := range s.RunningJobs() {
		j.cancelRuns(ErrJobKilled)
	}
}

// Join blocks until Shutdown has completed or ctx is done.
func (s *Scheduler) Join(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the loop has been started and not shut down.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// Down reports whether the scheduler lock could not be acquired.
func (s *Scheduler) Down() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

// Uptime returns how long the scheduler has been running.
func (s *Scheduler) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return 0
	}
	return s.clock.Since(s.startedAt)
}

// Frequency returns the tick period.
func (s *Scheduler) Frequency() time.Duration { return s.frequency }

// Location returns the location used for times and cron expressions that
// do not name a zone.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Mutexes returns the scheduler's named mutex registry.
func (s *Scheduler) Mutexes() *MutexRegistry { return s.mutexes }

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// newJob builds a job of the given kind. Kind-specific fields are set by
// the caller before add.
func (s *Scheduler) newJob(kind Kind, original string, h Handler, opts []JobOption) *Job {
	cfg := newJobConfig(opts)
	id := cfg.ID
	if id == "" {
		id = kind.String() + "_" + uuid.NewString()
	}
	return &Job{
		id:       id,
		kind:     kind,
		original: original,
		handler:  h,
		sched:    s,
		cfg:      cfg,
		tags:     dedupe(cfg.Tags),
	}
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// add validates j, computes its first occurrence and queues it.
func (s *Scheduler) add(j *Job) (*Job, error) {
	if s.isStopped() {
		return nil, ErrSchedulerStopped
	}
	if j.handler == nil {
		return nil, configError(ErrMissingHandler)
	}
	if err := j.cfg.validate(j.kind); err != nil {
		return nil, configError(err)
	}
	if err := s.checkFrequency(j); err != nil {
		return nil, configError(err)
	}

	now := s.clock.Now()
	j.scheduledAt = now
	j.discardPast = s.discardPast
	if j.cfg.DiscardPast != nil {
		j.discardPast = *j.cfg.DiscardPast
	}
	if j.kind == KindIn {
		j.at = now.Add(j.duration)
	}
	switch {
	case !j.cfg.LastAt.IsZero():
		j.lastAt = j.cfg.LastAt
	case j.cfg.LastIn > 0:
		j.lastAt = now.Add(j.cfg.LastIn)
	}
	if !j.lastAt.IsZero() && !j.lastAt.After(now) {
		return nil, configError(fmt.Errorf("%w: last bound %s is in the past", ErrInvalidOption, j.lastAt))
	}
	var firstBound time.Time
	switch {
	case !j.cfg.FirstAt.IsZero():
		firstBound = j.cfg.FirstAt
	case j.cfg.FirstIn > 0:
		firstBound = now.Add(j.cfg.FirstIn)
	}
	if !firstBound.IsZero() && !j.lastAt.IsZero() && firstBound.After(j.lastAt) {
		return nil, configError(fmt.Errorf("%w: last bound %s before first bound %s", ErrInvalidOption, j.lastAt, firstBound))
	}

	first := s.firstOccurrence(j, now)
	j.timesLeft = j.cfg.Times
	j.paused = j.cfg.Paused
	if j.paused {
		j.pausedAt = now
	}

	if !j.kind.Repeating() && j.discardPast && first.Before(now.Add(-s.frequency)) {
		j.markUnscheduled(now)
		s.logger.Info("job discarded, time in the past", "job", j.id, "at", first)
		return j, nil
	}
	if first.IsZero() || (!j.lastAt.IsZero() && first.After(j.lastAt)) {
		j.exhausted = true
		s.logger.Info("job has no occurrence", "job", j.id)
		return j, nil
	}

	j.nextTime = first
	s.mu.Lock()
	if old, ok := s.jobs[j.id]; ok && old != j {
		old.markUnscheduled(now)
	}
	s.jobs[j.id] = j
	if replaced := s.queue.Insert(j, first); replaced != nil {
		replaced.markUnscheduled(now)
	}
	for r := range s.running {
		if r.id == j.id && r != j {
			r.markUnscheduled(now)
		}
	}
	s.mu.Unlock()

	s.hooks.schedule(j, first)
	s.logger.Info("job scheduled", "job", j.id, "kind", j.kind.String(), "next", first)
	return j, nil
}

// checkFrequency rejects repeating jobs finer than the tick period.
func (s *Scheduler) checkFrequency(j *Job) error {
	switch j.kind {
	case KindEvery, KindInterval:
		if j.duration <= 0 {
			return fmt.Errorf("%w: period must be positive, got %s", ErrInvalidDuration, j.duration)
		}
		if j.duration < s.frequency {
			return fmt.Errorf("%w: period %s < frequency %s", ErrTooFrequent, j.duration, s.frequency)
		}
	case KindCron:
		if j.cron.RoughFrequency() >= s.frequency {
			return nil
		}
		if b := j.cron.BruteFrequency(); b > 0 && b < s.frequency {
			return fmt.Errorf("%w: cron %q fires every %s < frequency %s", ErrTooFrequent, j.original, b, s.frequency)
		}
	}
	return nil
}

// ScheduleAt fires h once at t.
func (s *Scheduler) ScheduleAt(t time.Time, h Handler, opts ...JobOption) (*Job, error) {
	j := s.newJob(KindAt, t.Format(time.RFC3339Nano), h, opts)
	j.at = t
	return s.add(j)
}

// ScheduleIn fires h once, d from now.
func (s *Scheduler) ScheduleIn(d time.Duration, h Handler, opts ...JobOption) (*Job, error) {
	j := s.newJob(KindIn, FormatDuration(d), h, opts)
	j.duration = d
	return s.add(j)
}

// ScheduleEvery fires h every d, keeping wall-clock cadence.
func (s *Scheduler) ScheduleEvery(d time.Duration, h Handler, opts ...JobOption) (*Job, error) {
	j := s.newJob(KindEvery, FormatDuration(d), h, opts)
	j.duration = d
	return s.add(j)
}

// ScheduleInterval fires h repeatedly, d after the end of each execution.
func (s *Scheduler) ScheduleInterval(d time.Duration, h Handler, opts ...JobOption) (*Job, error) {
	j := s.newJob(KindInterval, FormatDuration(d), h, opts)
	j.duration = d
	return s.add(j)
}

// ScheduleCron fires h on every occurrence of expr.
func (s *Scheduler) ScheduleCron(expr *CronExpression, h Handler, opts ...JobOption) (*Job, error) {
	if expr == nil {
		return nil, configError(fmt.Errorf("%w: nil expression", ErrInvalidCron))
	}
	j := s.newJob(KindCron, expr.Original(), h, opts)
	j.cron = expr
	return s.add(j)
}

// At parses spec with ParseTime, in the scheduler's location, and
// schedules h at that instant.
func (s *Scheduler) At(spec string, h Handler, opts ...JobOption) (*Job, error) {
	t, err := parseTime(spec, s.loc, s.zones)
	if err != nil {
		return nil, configError(err)
	}
	j := s.newJob(KindAt, spec, h, opts)
	j.at = t
	return s.add(j)
}

// In parses spec with ParseDuration and schedules h once after it.
func (s *Scheduler) In(spec string, h Handler, opts ...JobOption) (*Job, error) {
	d, err := ParseDuration(spec)
	if err != nil {
		return nil, configError(err)
	}
	j := s.newJob(KindIn, spec, h, opts)
	j.duration = d
	return s.add(j)
}

// Every parses spec with ParseDuration and schedules h at that cadence.
func (s *Scheduler) Every(spec string, h Handler, opts ...JobOption) (*Job, error) {
	d, err := ParseDuration(spec)
	if err != nil {
		return nil, configError(err)
	}
	j := s.newJob(KindEvery, spec, h, opts)
	j.duration = d
	return s.add(j)
}

// Interval parses spec with ParseDuration and schedules h at that interval.
func (s *Scheduler) Interval(spec string, h Handler, opts ...JobOption) (*Job, error) {
	d, err := ParseDuration(spec)
	if err != nil {
		return nil, configError(err)
	}
	j := s.newJob(KindInterval, spec, h, opts)
	j.duration = d
	return s.add(j)
}

// Cron parses spec with the scheduler's zone resolver and location.
func (s *Scheduler) Cron(spec string, h Handler, opts ...JobOption) (*Job, error) {
	expr, err := s.parseCron(spec)
	if err != nil {
		return nil, configError(err)
	}
	return s.ScheduleCron(expr, h, opts...)
}

func (s *Scheduler) parseCron(spec string) (*CronExpression, error) {
	return ParseCron(spec, WithZoneResolver(s.zones), WithDefaultLocation(s.loc))
}

// Schedule interprets spec as a one-shot or cron schedule: a duration
// ("10m") schedules an In job, a cron expression a Cron job and an
// absolute time an At job.
func (s *Scheduler) Schedule(spec string, h Handler, opts ...JobOption) (*Job, error) {
	if _, derr := ParseDuration(spec); derr == nil {
		return s.In(spec, h, opts...)
	} else if _, cerr := s.parseCron(spec); cerr == nil {
		return s.Cron(spec, h, opts...)
	} else if _, terr := parseTime(spec, s.loc, s.zones); terr == nil {
		return s.At(spec, h, opts...)
	} else {
		return nil, configError(errors.Join(derr, cerr, terr))
	}
}

// Repeat interprets spec as a repeating schedule: a cron expression
// schedules a Cron job, a duration an Every job.
func (s *Scheduler) Repeat(spec string, h Handler, opts ...JobOption) (*Job, error) {
	if _, cerr := s.parseCron(spec); cerr == nil {
		return s.Cron(spec, h, opts...)
	} else if _, derr := ParseDuration(spec); derr == nil {
		return s.Every(spec, h, opts...)
	} else {
		return nil, configError(errors.Join(cerr, derr))
	}
}

// Job returns the job with the given id, pending or running.
func (s *Scheduler) Job(id string) (*Job, bool) {
	if j, ok := s.queue.Lookup(id); ok {
		return j, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for j := range s.running {
		if j.id == id {
			return j, true
		}
	}
	return nil, false
}

// Unschedule marks the job with the given id for removal. Its running
// executions are not interrupted. Unscheduling a job twice is a no-op.
func (s *Scheduler) Unschedule(id string) error {
	j, ok := s.Job(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	s.UnscheduleJob(j)
	return nil
}

// UnscheduleJob marks j for removal. Unscheduling a job twice is a no-op.
func (s *Scheduler) UnscheduleJob(j *Job) {
	if j == nil {
		return
	}
	if j.markUnscheduled(s.clock.Now()) {
		s.forget(j)
		s.logger.Info("job unscheduled", "job", j.id)
	}
}

// UnscheduleByTag unschedules every job carrying tag and returns how many
// were unscheduled.
func (s *Scheduler) UnscheduleByTag(tag string) int {
	n := 0
	for _, j := range s.Jobs(JobFilter{Tags: []string{tag}}) {
		if j.markUnscheduled(s.clock.Now()) {
			s.forget(j)
			n++
		}
	}
	return n
}

// Pause pauses the job with the given id.
func (s *Scheduler) Pause(id string) error {
	j, ok := s.Job(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.Pause()
	return nil
}

// Resume resumes the job with the given id.
func (s *Scheduler) Resume(id string) error {
	j, ok := s.Job(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.Resume()
	return nil
}

// Kill cancels the running executions of the job with the given id and
// returns how many were canceled.
func (s *Scheduler) Kill(id string) (int, error) {
	j, ok := s.Job(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.Kill(), nil
}

// JobFilter selects jobs in Jobs. The zero value selects every job, pending
// or running.
type JobFilter struct {
	// Tags keeps jobs carrying all of these tags.
	Tags []string
	// Running keeps jobs with an execution in flight.
	Running bool
	// Pending keeps jobs waiting in the queue.
	Pending bool
	// Kinds keeps jobs of these kinds.
	Kinds []Kind
}

func (f JobFilter) match(j *Job, pending bool) bool {
	if f.Running && !j.Running() {
		return false
	}
	if f.Pending && !pending {
		return false
	}
	for _, t := range f.Tags {
		if !j.HasTag(t) {
			return false
		}
	}
	if len(f.Kinds) > 0 {
		for _, k := range f.Kinds {
			if j.kind == k {
				return true
			}
		}
		return false
	}
	return true
}

// Jobs returns the jobs selected by f: pending jobs in queue order, then
// jobs that only exist as running executions. Unscheduled jobs awaiting
// the sweep are left out.
func (s *Scheduler) Jobs(f JobFilter) []*Job {
	var out []*Job
	seen := make(map[*Job]struct{})
	for _, j := range s.queue.Snapshot() {
		seen[j] = struct{}{}
		if !j.Unscheduled() && f.match(j, true) {
			out = append(out, j)
		}
	}
	s.mu.Lock()
	running := make([]*Job, 0, len(s.running))
	for j := range s.running {
		running = append(running, j)
	}
	s.mu.Unlock()
	for _, j := range running {
		if _, ok := seen[j]; ok {
			continue
		}
		if f.match(j, false) {
			out = append(out, j)
		}
	}
	return out
}

// RunningJobs returns the jobs with an execution in flight.
func (s *Scheduler) RunningJobs() []*Job {
	return s.Jobs(JobFilter{Running: true})
}
