/*
Package scheduler implements an in-process job scheduler: one-shot jobs at an
instant or after a delay, repeating jobs every period, at an interval after
each execution, or on a cron expression.

# Installation

	go get github.com/netresearch/go-scheduler

It requires Go 1.25 or later.

# Usage

	s, err := scheduler.New()
	if err != nil {
		log.Fatal(err)
	}
	s.Cron("30 * * * *", scheduler.Func(func() { fmt.Println("every hour on the half hour") }))
	s.Every("10m", scheduler.Func(func() { fmt.Println("every ten minutes") }))
	s.In("2h", scheduler.Func(func() { fmt.Println("once, two hours from now") }))
	s.At("2030-01-01 00:00:00 Europe/Berlin", scheduler.Func(func() { fmt.Println("happy new year") }))
	s.Interval("5m", scheduler.Func(func() { fmt.Println("five minutes after the last run ended") }))
	s.Start()
	..
	s.Shutdown(ctx, scheduler.ShutdownWait)

Handlers receive a context canceled on timeout, kill or shutdown, the job
and the time the trigger was scheduled for:

	s.Every("1h", scheduler.HandlerFunc(func(ctx context.Context, j *scheduler.Job, at time.Time) error {
		return sync(ctx)
	}), scheduler.WithTimeout(10*time.Minute), scheduler.WithTags("sync"))

Errors and panics from handlers never stop the scheduler. They go to the
ErrorHandler, which by default logs them rate-limited.

# Loop and workers

A single loop goroutine wakes every Frequency (300ms by default), removes
unscheduled jobs, pops every due job from a queue sorted by next time, and
hands each one to a pool of worker goroutines. The pool grows on demand up
to the maximum thread count and idle workers above the minimum retire.
Jobs marked WithBlocking run on the loop goroutine instead and delay the
jobs behind them.

Repeating jobs finer than the frequency are rejected when scheduled.

# Durations

Durations are written as number and unit pairs, concatenated:

	y   365 days
	M   30 days
	w   7 days
	d   24 hours
	h, m, s, ms

"1h30m", "1d2h", "1.5w" and "-2h" are valid. A bare number means seconds.

# Cron expressions

A cron expression has five or six space separated fields, optionally
followed by a time zone:

	Field name   | Allowed values      | Allowed special characters
	----------   | --------------      | --------------------------
	Seconds      | 0-59                | * / , -
	Minutes      | 0-59                | * / , -
	Hours        | 0-23 (24 = 0)       | * / , -
	Day of month | 1-31, -1..-31, L    | * / , - ?
	Month        | 1-12 or JAN-DEC     | * / , -
	Day of week  | 0-6 (7 = 0), SUN-SAT| * / , - ? # L

The five field form has an implicit seconds field of 0. Names are case
insensitive and may be written out ("monday", "january"). Out of range
values are rejected.

Ranges may wrap around: "22-2" in the hours field is 22, 23, 0, 1 and 2, and
"fri-mon" is Friday through Monday. "3/15" is "3-59/15".

Negative days of month count from the end: -1 and L are the last day, -2
and L-1 the day before. In the weekday field "fri#2" is the second Friday of
the month, "fri#-1" and "friL" the last one.

When both day of month and day of week are restricted a day matching either
one fires, as in POSIX cron.

The descriptors @yearly, @annually, @monthly, @weekly, @daily, @midnight and
@hourly stand for their usual expressions.

# Time zones

Expressions and time strings without a zone use the scheduler's location,
time.Local by default. A zone is named by a trailing token or a TZ=/CRON_TZ=
prefix:

	0 9 * * mon-fri America/New_York
	CRON_TZ=Asia/Tokyo 30 04 * * *
	0 0 * * * +09:00

Zone tokens are resolved by a ZoneResolver; the default accepts IANA names,
UTC and fixed offsets.

Occurrences falling in a daylight saving gap do not exist and are skipped.
A wall clock time repeated when clocks fall back fires once, at its first
instant.

# Missed occurrences

Occurrences that fall behind the clock are dropped by default: an Every job
advances whole periods until it is in the future, a cron job continues from
now and a one-shot job in the past is discarded. WithDiscardPast(false)
makes a job catch up instead.

# Locks

WithLockFile guards a scheduler with an advisory file lock so that only one
process on a host schedules. A scheduler that cannot take its lock is down:
it accepts jobs but never fires them. WithTriggerLock is consulted on every
tick and can hand triggering over between processes.

# Testing

WithClock accepts a clockwork.Clock. With a fake clock the loop, job times
and timeouts all follow the fake time:

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 1, 59, 0, 0, time.UTC))
	s, _ := scheduler.New(scheduler.WithClock(clock))
*/
package scheduler
