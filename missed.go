package scheduler

import "time"

// Occurrences that fall behind the clock, because the scheduler was busy,
// paused or started late, are handled per job by the discard-past policy:
//
//   - discard (the default): an Every job advances by whole periods until
//     its next time is in the future, a Cron job continues from now, and a
//     one-shot job whose time passed more than one tick ago is dropped.
//   - keep: an Every job keeps its phase and catches up one occurrence per
//     tick, a Cron job walks every missed occurrence, a one-shot job fires
//     on the next tick.
//
// Interval jobs are always measured from the end of the previous execution
// and have nothing to catch up.

// firstOccurrence computes the first time j fires.
func (s *Scheduler) firstOccurrence(j *Job, now time.Time) time.Time {
	c := &j.cfg
	switch j.kind {
	case KindAt, KindIn:
		return j.at
	case KindEvery, KindInterval:
		var first time.Time
		switch {
		case !c.FirstAt.IsZero():
			first = c.FirstAt
		case c.FirstIn > 0:
			first = now.Add(c.FirstIn)
		case c.FirstNow:
			first = now
		default:
			first = now.Add(j.duration)
		}
		if j.discardPast && first.Before(now) {
			first = advancePast(first, j.duration, now)
		}
		return first
	case KindCron:
		switch {
		case !c.FirstAt.IsZero():
			from := c.FirstAt.Add(-time.Second)
			if j.discardPast && from.Before(now) {
				from = now
			}
			return j.cron.Next(from)
		case c.FirstIn > 0:
			return now.Add(c.FirstIn)
		case c.FirstNow:
			return now
		default:
			return j.cron.Next(now)
		}
	}
	return time.Time{}
}

// nextOccurrence computes the time a repeating job fires after the trigger
// scheduled at fireTime. It returns zero for one-shot jobs.
func (s *Scheduler) nextOccurrence(j *Job, fireTime, now time.Time) time.Time {
	switch j.kind {
	case KindEvery:
		next := fireTime.Add(j.duration)
		if j.discardPast && !next.After(now) {
			next = advancePast(next, j.duration, now)
		}
		return next
	case KindInterval:
		if now.After(fireTime) {
			fireTime = now
		}
		return fireTime.Add(j.duration)
	case KindCron:
		from := fireTime
		if j.discardPast && now.After(from) {
			from = now
		}
		return j.cron.Next(from)
	}
	return time.Time{}
}

// advancePast adds whole periods to t until it is after now.
func advancePast(t time.Time, period time.Duration, now time.Time) time.Time {
	if t.After(now) || period <= 0 {
		return t
	}
	k := now.Sub(t)/period + 1
	return t.Add(k * period)
}
