package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// newTestScheduler returns an unstarted scheduler on a fake clock at epoch.
// Tests drive it with step, which advances the clock and runs one tick.
func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	base := []Option{WithClock(clock), WithLogger(DiscardLogger), WithLocation(time.UTC), WithFrequency(100 * time.Millisecond)}
	s, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx, ShutdownKill)
	})
	return s, clock
}

// step advances the clock by d in increments of the scheduler frequency,
// ticking after each increment.
func step(s *Scheduler, clock *clockwork.FakeClock, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += s.frequency {
		clock.Advance(s.frequency)
		s.tick(clock.Now())
	}
}

// recorder collects the fire times its handler is called with.
type recorder struct {
	mu    sync.Mutex
	fires []time.Time
}

func (r *recorder) Handle(_ context.Context, _ *Job, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fires = append(r.fires, at)
	return nil
}

// times returns the recorded fire times in order.
func (r *recorder) times() []time.Time {
	r.mu.Lock()
	out := slices.Clone(r.fires)
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fires)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

// waitIdle waits until no execution is in flight or waiting for a worker.
func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	eventually(t, func() bool {
		st := s.Stats()
		return st.Running == 0 && st.Backlog == 0
	}, "executions still in flight")
}

func TestEverySecondCron(t *testing.T) {
	s, clock := newTestScheduler(t)
	rec := &recorder{}
	_, err := s.Cron("* * * * * *", rec)
	require.NoError(t, err)

	step(s, clock, 5*time.Second)
	waitIdle(t, s)

	fires := rec.times()
	require.Len(t, fires, 5)
	seen := make(map[int64]bool)
	for i, at := range fires {
		sec := at.Unix()
		assert.False(t, seen[sec], "second %s fired twice", at)
		seen[sec] = true
		assert.Equal(t, epoch.Add(time.Duration(i+1)*time.Second), at)
	}
}

func TestEveryTimes(t *testing.T) {
	s, clock := newTestScheduler(t)
	rec := &recorder{}
	j, err := s.Every("1s", rec, WithTimes(3))
	require.NoError(t, err)

	step(s, clock, 3*time.Second)
	waitIdle(t, s)
	assert.Equal(t, 3, rec.count())
	assert.Equal(t, StateExhausted, j.State())
	assert.True(t, j.NextTime().IsZero())
	assert.Equal(t, 0, j.TimesLeft())

	step(s, clock, 2*time.Second)
	waitIdle(t, s)
	assert.Equal(t, 3, rec.count(), "exhausted job fired again")
	assert.Equal(t, 3, j.Count())
}

func TestInPast(t *testing.T) {
	t.Run("discard", func(t *testing.T) {
		s, clock := newTestScheduler(t)
		rec := &recorder{}
		j, err := s.ScheduleIn(-1000*time.Second, rec, WithDiscardPast(true))
		require.NoError(t, err)
		assert.Equal(t, StateUnscheduled, j.State())

		step(s, clock, time.Second)
		waitIdle(t, s)
		assert.Zero(t, rec.count())
	})
	t.Run("keep", func(t *testing.T) {
		s, clock := newTestScheduler(t)
		rec := &recorder{}
		j, err := s.ScheduleIn(-1000*time.Second, rec, WithDiscardPast(false))
		require.NoError(t, err)
		assert.Equal(t, StateScheduled, j.State())

		step(s, clock, s.frequency)
		waitIdle(t, s)
		require.Equal(t, 1, rec.count())
		assert.Equal(t, epoch.Add(-1000*time.Second), rec.times()[0])
		assert.Equal(t, StateExhausted, j.State())
	})
}

func TestMutexNoOverlap(t *testing.T) {
	s, clock := newTestScheduler(t)
	type span struct{ start, end time.Time }
	var mu sync.Mutex
	var spans []span
	h := HandlerFunc(func(context.Context, *Job, time.Time) error {
		start := time.Now()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		spans = append(spans, span{start, time.Now()})
		mu.Unlock()
		return nil
	})

	at := epoch.Add(time.Second)
	for range 3 {
		_, err := s.ScheduleAt(at, h, WithMutex("m"))
		require.NoError(t, err)
	}
	step(s, clock, time.Second)
	waitIdle(t, s)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, spans, 3)
	for i := range spans {
		for k := i + 1; k < len(spans); k++ {
			a, b := spans[i], spans[k]
			overlap := a.start.Before(b.end) && b.start.Before(a.end)
			assert.False(t, overlap, "executions %d and %d overlap", i, k)
		}
	}
}

func TestTimeoutInterrupts(t *testing.T) {
	errs := make(chan error, 1)
	s, err := New(
		WithFrequency(50*time.Millisecond),
		WithLogger(DiscardLogger),
		WithErrorHandler(ErrorHandlerFunc(func(_ *Job, _ time.Time, err error) { errs <- err })),
	)
	require.NoError(t, err)
	defer s.Shutdown(context.Background(), ShutdownKill)

	var elapsed atomic.Int64
	_, err = s.ScheduleIn(0, HandlerFunc(func(ctx context.Context, _ *Job, _ time.Time) error {
		start := time.Now()
		defer func() { elapsed.Store(int64(time.Since(start))) }()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}), WithTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	var got error
	select {
	case got = <-errs:
	case <-time.After(4 * time.Second):
		t.Fatal("job was not interrupted")
	}
	var te *TimeoutError
	require.ErrorAs(t, got, &te)
	assert.Equal(t, time.Second, te.Timeout)
	assert.ErrorIs(t, got, ErrJobTimeout)

	d := time.Duration(elapsed.Load())
	assert.GreaterOrEqual(t, d, 900*time.Millisecond)
	assert.Less(t, d, 2*time.Second)
	require.Eventually(t, func() bool { return len(s.RunningJobs()) == 0 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, s.Stats().Running)
}

func TestTimeoutFakeClock(t *testing.T) {
	s, clock := newTestScheduler(t)
	errs := make(chan error, 1)
	s.errorHandler = ErrorHandlerFunc(func(_ *Job, _ time.Time, err error) { errs <- err })

	j, err := s.ScheduleIn(time.Second, HandlerFunc(func(ctx context.Context, _ *Job, _ time.Time) error {
		<-ctx.Done()
		return ctx.Err()
	}), WithTimeout(10*time.Second))
	require.NoError(t, err)

	step(s, clock, time.Second)
	eventually(t, j.Running, "job did not start")
	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(10 * time.Second)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrJobTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout not delivered")
	}
	waitIdle(t, s)
	assert.False(t, j.Running())
}

func TestConfigErrors(t *testing.T) {
	s, _ := newTestScheduler(t, WithFrequency(2*time.Second))
	noop := Func(func() {})

	tests := []struct {
		name string
		add  func() (*Job, error)
		want error
	}{
		{"every too frequent", func() (*Job, error) { return s.Every("1s", noop) }, ErrTooFrequent},
		{"interval too frequent", func() (*Job, error) { return s.Interval("500ms", noop) }, ErrTooFrequent},
		{"cron too frequent", func() (*Job, error) { return s.Cron("* * * * * *", noop) }, ErrTooFrequent},
		{"zero period", func() (*Job, error) { return s.ScheduleEvery(0, noop) }, ErrInvalidDuration},
		{"bad duration", func() (*Job, error) { return s.Every("soon", noop) }, ErrInvalidDuration},
		{"bad cron", func() (*Job, error) { return s.Cron("61 * * * *", noop) }, ErrInvalidCron},
		{"bad time", func() (*Job, error) { return s.At("tomorrow", noop) }, ErrInvalidTime},
		{"timeout with blocking", func() (*Job, error) {
			return s.Every("1m", noop, WithTimeout(time.Second), WithBlocking())
		}, ErrTimeoutWithBlocking},
		{"nil handler", func() (*Job, error) { return s.Every("1m", nil) }, ErrMissingHandler},
		{"last in the past", func() (*Job, error) { return s.Every("1m", noop, WithLastAt(epoch.Add(-time.Hour))) }, ErrInvalidOption},
		{"last before first in", func() (*Job, error) {
			return s.Every("1m", noop, WithFirstIn(10*time.Minute), WithLastIn(5*time.Minute))
		}, ErrInvalidOption},
		{"last before first at", func() (*Job, error) {
			return s.Every("1m", noop, WithFirstAt(epoch.Add(time.Hour)), WithLastAt(epoch.Add(30*time.Minute)))
		}, ErrInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := tt.add()
			assert.Nil(t, j)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
	assert.Empty(t, s.Jobs(JobFilter{}))

	// Hourly with seconds restricted is coarse enough.
	_, err := s.Cron("0,30 * * * * *", noop)
	assert.NoError(t, err)
}

func TestNewInvalidOptions(t *testing.T) {
	for _, opt := range []Option{
		WithFrequency(0),
		WithThreads(5, 2),
		WithThreads(0, 0),
		WithWorkerIdleTimeout(0),
		WithClock(nil),
	} {
		s, err := New(opt)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, ErrConfig)
		assert.ErrorIs(t, err, ErrInvalidOption)
	}
}

func TestScheduleDetectsKind(t *testing.T) {
	s, _ := newTestScheduler(t)
	noop := Func(func() {})

	tests := []struct {
		spec   string
		repeat bool
		want   Kind
	}{
		{"10m", false, KindIn},
		{"1h30m", false, KindIn},
		{"0 9 * * mon-fri", false, KindCron},
		{"@daily", false, KindCron},
		{"2030-01-01 00:00:00", false, KindAt},
		{"2030-01-01T00:00:00Z", false, KindAt},
		{"5m", true, KindEvery},
		{"*/5 * * * *", true, KindCron},
	}
	for _, tt := range tests {
		var j *Job
		var err error
		if tt.repeat {
			j, err = s.Repeat(tt.spec, noop)
		} else {
			j, err = s.Schedule(tt.spec, noop)
		}
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.want, j.Kind(), tt.spec)
		assert.Equal(t, tt.spec, j.Original())
	}

	_, err := s.Schedule("whenever", noop)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = s.Repeat("2030-01-01", noop)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestUnschedule(t *testing.T) {
	s, clock := newTestScheduler(t)
	rec := &recorder{}
	j, err := s.Every("1s", rec, WithJobID("tick"))
	require.NoError(t, err)
	assert.Equal(t, "tick", j.ID())

	require.NoError(t, s.Unschedule("tick"))
	assert.Equal(t, StateUnscheduled, j.State())
	at := j.UnscheduledAt()
	clock.Advance(time.Second)
	require.NoError(t, s.Unschedule("tick"), "job awaiting sweep is still known")
	assert.Equal(t, at, j.UnscheduledAt(), "second unschedule moved the time")
	assert.Empty(t, s.Jobs(JobFilter{}))

	step(s, clock, 2*time.Second)
	assert.Zero(t, rec.count())
	assert.ErrorIs(t, s.Unschedule("tick"), ErrJobNotFound)
	assert.Zero(t, s.Stats().Pending)
}

func TestUnscheduleByTag(t *testing.T) {
	s, _ := newTestScheduler(t)
	noop := Func(func() {})
	for _, tags := range [][]string{{"a"}, {"a", "b"}, {"b"}, nil} {
		_, err := s.Every("1m", noop, WithTags(tags...))
		require.NoError(t, err)
	}
	assert.Len(t, s.Jobs(JobFilter{Tags: []string{"a"}}), 2)
	assert.Len(t, s.Jobs(JobFilter{Tags: []string{"a", "b"}}), 1)
	assert.Equal(t, 2, s.UnscheduleByTag("a"))
	assert.Equal(t, 0, s.UnscheduleByTag("a"))
	assert.Len(t, s.Jobs(JobFilter{}), 2)
}

func TestDuplicateIDReplaces(t *testing.T) {
	s, clock := newTestScheduler(t)
	first, second := &recorder{}, &recorder{}
	old, err := s.Every("1s", first, WithJobID("x"))
	require.NoError(t, err)
	cur, err := s.Every("2s", second, WithJobID("x"))
	require.NoError(t, err)

	assert.True(t, old.Unscheduled())
	got, ok := s.Job("x")
	require.True(t, ok)
	assert.Same(t, cur, got)

	step(s, clock, 2*time.Second)
	waitIdle(t, s)
	assert.Zero(t, first.count())
	assert.Equal(t, 1, second.count())
}

func TestDuplicateIDWhileTriggering(t *testing.T) {
	s, clock := newTestScheduler(t)
	first, second := &recorder{}, &recorder{}
	var replacement *Job
	s.hooks.OnPreTrigger = func(j *Job, _ time.Time) bool {
		if j.ID() == "x" && replacement == nil {
			var err error
			replacement, err = s.Every("10s", second, WithJobID("x"))
			require.NoError(t, err)
		}
		return true
	}
	old, err := s.Every("1s", first, WithJobID("x"))
	require.NoError(t, err)

	step(s, clock, time.Second)
	waitIdle(t, s)
	require.NotNil(t, replacement)
	got, ok := s.Job("x")
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.True(t, old.Unscheduled())
	assert.Equal(t, StateScheduled, replacement.State())
	assert.Equal(t, epoch.Add(11*time.Second), replacement.NextTime())

	step(s, clock, 10*time.Second)
	waitIdle(t, s)
	assert.Zero(t, first.count())
	assert.Equal(t, []time.Time{epoch.Add(11 * time.Second)}, second.times())
}

func TestPauseResume(t *testing.T) {
	s, clock := newTestScheduler(t)
	rec := &recorder{}
	j, err := s.Every("1s", rec)
	require.NoError(t, err)

	require.NoError(t, s.Pause(j.ID()))
	assert.True(t, j.Paused())
	assert.Equal(t, epoch, j.PausedAt())
	step(s, clock, 3*time.Second)
	waitIdle(t, s)
	assert.Zero(t, rec.count())
	assert.Equal(t, epoch.Add(4*time.Second), j.NextTime(), "paused job keeps its cadence")

	require.NoError(t, s.Resume(j.ID()))
	assert.True(t, j.PausedAt().IsZero())
	step(s, clock, time.Second)
	waitIdle(t, s)
	assert.Equal(t, []time.Time{epoch.Add(4 * time.Second)}, rec.times())

	assert.ErrorIs(t, s.Pause("missing"), ErrJobNotFound)
}

func TestPausedOneShotWaits(t *testing.T) {
	s, clock := newTestScheduler(t)
	rec := &recorder{}
	j, err := s.In("1s", rec, WithPaused())
	require.NoError(t, err)

	step(s, clock, 2*time.Second)
	waitIdle(t, s)
	assert.Zero(t, rec.count())

	j.Resume()
	step(s, clock, s.frequency)
	waitIdle(t, s)
	assert.Equal(t, []time.Time{epoch.Add(time.Second)}, rec.times())
}

func TestOverlapSkipped(t *testing.T) {
	s, clock := newTestScheduler(t)
	release := make(chan struct{})
	var calls atomic.Int32
	j, err := s.Every("1s", HandlerFunc(func(ctx context.Context, _ *Job, _ time.Time) error {
		calls.Add(1)
		<-release
		return nil
	}), WithOverlap(false))
	require.NoError(t, err)

	step(s, clock, time.Second)
	eventually(t, j.Running, "job did not start")
	step(s, clock, 2*time.Second)
	close(release)
	waitIdle(t, s)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, j.Count())
	assert.Equal(t, epoch.Add(4*time.Second), j.NextTime())
}

func TestOverlapAllowed(t *testing.T) {
	s, clock := newTestScheduler(t)
	release := make(chan struct{})
	j, err := s.Every("1s", HandlerFunc(func(ctx context.Context, _ *Job, _ time.Time) error {
		<-release
		return nil
	}))
	require.NoError(t, err)

	step(s, clock, 3*time.Second)
	eventually(t, func() bool { return j.RunningCount() == 3 }, "executions did not overlap")
	assert.Equal(t, StateTriggering, j.State())
	assert.Equal(t, 3, s.Stats().Running)
	close(release)
	waitIdle(t, s)
	assert.Equal(t, StateScheduled, j.State())
}

func TestOverlapCountsQueuedTriggers(t *testing.T) {
	s, clock := newTestScheduler(t, WithThreads(1, 1))
	started := make(chan struct{})
	release := make(chan struct{})
	_, err := s.In("1s", HandlerFunc(func(context.Context, *Job, time.Time) error {
		close(started)
		<-release
		return nil
	}))
	require.NoError(t, err)
	rec := &recorder{}
	j, err := s.Every("1s", rec, WithOverlap(false))
	require.NoError(t, err)

	step(s, clock, time.Second)
	<-started
	assert.Equal(t, StateTriggering, j.State(), "a trigger waiting for a worker is in flight")
	assert.False(t, j.Running())

	step(s, clock, 4*time.Second)
	assert.Equal(t, 1, s.Stats().Backlog)
	assert.Equal(t, 1, j.Count())

	close(release)
	waitIdle(t, s)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, StateScheduled, j.State())
}

func TestIntervalMeasuredFromEnd(t *testing.T) {
	s, clock := newTestScheduler(t)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	j, err := s.Interval("1s", HandlerFunc(func(context.Context, *Job, time.Time) error {
		started <- struct{}{}
		<-release
		return nil
	}))
	require.NoError(t, err)

	step(s, clock, time.Second)
	<-started
	assert.True(t, j.NextTime().IsZero(), "interval job has a next time while running")

	clock.Advance(3 * time.Second)
	release <- struct{}{}
	eventually(t, func() bool { return !j.NextTime().IsZero() }, "interval job not rescheduled")
	assert.Equal(t, epoch.Add(5*time.Second), j.NextTime())
	close(release)
}

func TestBlockingRunsOnTick(t *testing.T) {
	s, clock := newTestScheduler(t)
	rec := &recorder{}
	_, err := s.In("1s", rec, WithBlocking())
	require.NoError(t, err)

	step(s, clock, time.Second)
	assert.Equal(t, 1, rec.count(), "blocking job did not run inside the tick")
	assert.Zero(t, s.Stats().Workers)
}

func TestFirstAndLast(t *testing.T) {
	s, clock := newTestScheduler(t)
	rec := &recorder{}
	j, err := s.Every("1s", rec, WithFirstNow(), WithLastIn(2500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, epoch, j.NextTime())
	assert.Equal(t, epoch.Add(2500*time.Millisecond), j.LastAt())

	step(s, clock, 5*time.Second)
	waitIdle(t, s)
	assert.Equal(t, []time.Time{epoch, epoch.Add(time.Second), epoch.Add(2 * time.Second)}, rec.times())
	assert.Equal(t, StateExhausted, j.State())
}

func TestTriggerLock(t *testing.T) {
	var allow atomic.Bool
	var unlocked atomic.Bool
	lock := LockFunc{
		LockFn:   func() (bool, error) { return allow.Load(), nil },
		UnlockFn: func() error { unlocked.Store(true); return nil },
	}
	s, clock := newTestScheduler(t, WithTriggerLock(lock))
	rec := &recorder{}
	_, err := s.Every("1s", rec)
	require.NoError(t, err)

	step(s, clock, 2*time.Second)
	waitIdle(t, s)
	assert.Zero(t, rec.count())

	allow.Store(true)
	step(s, clock, s.frequency)
	waitIdle(t, s)
	assert.Equal(t, 1, rec.count(), "held back job fires once")

	require.NoError(t, s.Shutdown(t.Context(), ShutdownWait))
	assert.True(t, unlocked.Load())
}

func TestSchedulerLockDown(t *testing.T) {
	held := LockFunc{LockFn: func() (bool, error) { return false, nil }}
	s, err := New(WithSchedulerLock(held), WithLogger(DiscardLogger))
	require.NoError(t, err)
	assert.True(t, s.Down())
	assert.ErrorIs(t, s.Start(), ErrSchedulerDown)
	assert.False(t, s.Running())

	// A down scheduler still accepts jobs.
	_, err = s.Every("1m", Func(func() {}))
	assert.NoError(t, err)

	failing := LockFunc{LockFn: func() (bool, error) { return false, errors.New("disk full") }}
	_, err = New(WithSchedulerLock(failing), WithFailOnLocked(), WithLogger(DiscardLogger))
	assert.ErrorIs(t, err, ErrLocked)
}

func TestShutdownKill(t *testing.T) {
	s, clock := newTestScheduler(t)
	var handled atomic.Int32
	s.errorHandler = ErrorHandlerFunc(func(*Job, time.Time, error) { handled.Add(1) })
	done := make(chan error, 1)
	s.hooks.OnComplete = func(_ *Job, _ time.Time, _ time.Duration, err error) { done <- err }

	j, err := s.In("1s", HandlerFunc(func(ctx context.Context, _ *Job, _ time.Time) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, err)
	step(s, clock, time.Second)
	eventually(t, j.Running, "job did not start")

	require.NoError(t, s.Shutdown(t.Context(), ShutdownKill))
	assert.ErrorIs(t, <-done, ErrJobKilled)
	assert.Zero(t, handled.Load(), "kills are not errors")
	assert.False(t, j.Running())

	_, err = s.In("1s", Func(func() {}))
	assert.ErrorIs(t, err, ErrSchedulerStopped)
	assert.ErrorIs(t, s.Start(), ErrSchedulerStopped)
	assert.NoError(t, s.Join(t.Context()))
}

func TestShutdownWaitDrains(t *testing.T) {
	s, clock := newTestScheduler(t, WithThreads(1, 1))
	var ran atomic.Int32
	for range 3 {
		_, err := s.In("1s", HandlerFunc(func(context.Context, *Job, time.Time) error {
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
			return nil
		}))
		require.NoError(t, err)
	}
	step(s, clock, time.Second)
	require.NoError(t, s.Shutdown(t.Context(), ShutdownWait))
	assert.Equal(t, int32(3), ran.Load())
}

func TestKillJob(t *testing.T) {
	s, clock := newTestScheduler(t)
	causes := make(chan error, 1)
	j, err := s.Every("1s", HandlerFunc(func(ctx context.Context, _ *Job, _ time.Time) error {
		<-ctx.Done()
		causes <- context.Cause(ctx)
		return nil
	}))
	require.NoError(t, err)

	step(s, clock, time.Second)
	eventually(t, j.Running, "job did not start")
	n, err := s.Kill(j.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, <-causes, ErrJobKilled)
	waitIdle(t, s)
	assert.Equal(t, StateScheduled, j.State(), "killed job stays scheduled")
}

func TestHandlerPanicContained(t *testing.T) {
	s, clock := newTestScheduler(t)
	errs := make(chan error, 4)
	s.errorHandler = ErrorHandlerFunc(func(_ *Job, _ time.Time, err error) { errs <- err })

	j, err := s.Every("1s", Func(func() { panic("boom") }))
	require.NoError(t, err)
	step(s, clock, 2*time.Second)
	waitIdle(t, s)

	for range 2 {
		var pe *PanicError
		require.ErrorAs(t, <-errs, &pe)
		assert.Equal(t, "boom", pe.Value)
		assert.NotEmpty(t, pe.Stack)
	}
	assert.Equal(t, 2, j.Count())
	assert.Equal(t, StateScheduled, j.State())
}

func TestWorkTimes(t *testing.T) {
	s, clock := newTestScheduler(t)
	j, err := s.In("1s", HandlerFunc(func(context.Context, *Job, time.Time) error {
		clock.Advance(3 * time.Second)
		return nil
	}), WithBlocking())
	require.NoError(t, err)

	step(s, clock, time.Second)
	assert.Equal(t, 3*time.Second, j.LastWorkTime())
	assert.Equal(t, 3*time.Second, j.MeanWorkTime())
	assert.Equal(t, epoch.Add(time.Second), j.PreviousTime())
	assert.Equal(t, epoch.Add(time.Second), j.LastTime())
}

func TestStartStopState(t *testing.T) {
	s, clock := newTestScheduler(t)
	assert.False(t, s.Running())
	assert.Zero(t, s.Uptime())
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	clock.Advance(time.Minute)
	assert.Equal(t, time.Minute, s.Uptime())
	require.NoError(t, s.Shutdown(t.Context(), ShutdownImmediate))
	assert.False(t, s.Running())
	assert.NoError(t, s.Shutdown(t.Context(), ShutdownImmediate))
}

func TestLoopFires(t *testing.T) {
	s, clock := newTestScheduler(t)
	rec := &recorder{}
	_, err := s.Every("1s", rec)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	for i := 0; i < 12; i++ {
		require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
		clock.Advance(s.frequency)
	}
	eventually(t, func() bool { return rec.count() == 1 }, "loop did not fire the job")
}

func TestTickOverrunLoggedOncePerStreak(t *testing.T) {
	logs := &testLogCapture{}
	s, clock := newTestScheduler(t, WithLogger(logs))
	var runs atomic.Int32
	_, err := s.Every("100ms", Func(func() {
		if runs.Add(1) <= 5 {
			clock.Advance(150 * time.Millisecond)
		}
	}), WithBlocking(), WithDiscardPast(false))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(s.frequency)

	count := func(msg string) int {
		info, _ := logs.calls()
		n := 0
		for _, m := range info {
			if m == msg {
				n++
			}
		}
		return n
	}
	eventually(t, func() bool { return count("ticks back on schedule") == 1 }, "overrun streak did not end")
	assert.Equal(t, 1, count("tick overran"))
	assert.GreaterOrEqual(t, int(runs.Load()), 6)
}
