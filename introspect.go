package scheduler

import (
	"sort"
	"time"
)

// Count returns the number of occurrences in (from, to]. When limit is
// positive counting stops there.
//
//	expr := scheduler.MustParseCron("0 * * * *")
//	n := expr.Count(start, start.Add(24*time.Hour), 0) // 24
func (e *CronExpression) Count(from, to time.Time, limit int) int {
	n := 0
	for t := e.Next(from); !t.IsZero() && !t.After(to); t = e.Next(t) {
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return n
}

// Occurrence is one planned trigger of a job.
type Occurrence struct {
	Job  *Job
	Time time.Time
}

// Timeline returns the planned triggers of every pending job in (from, to],
// sorted by time. Paused jobs are included; they would decline to run.
//
// For high-frequency jobs over long ranges this can return many results.
func (s *Scheduler) Timeline(from, to time.Time) []Occurrence {
	var out []Occurrence
	for _, j := range s.Jobs(JobFilter{Pending: true}) {
		for _, t := range j.Occurrences(from, to) {
			out = append(out, Occurrence{Job: j, Time: t})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Time.Before(out[b].Time)
	})
	return out
}

// Stats is a point-in-time view of the scheduler's load.
type Stats struct {
	// Pending is the number of queued jobs.
	Pending int
	// Running is the number of executions in flight.
	Running int
	// Workers is the number of live worker goroutines.
	Workers int
	// Vacant is the number of workers waiting for a task.
	Vacant int
	// Backlog is the number of triggered executions waiting for a worker.
	Backlog int
}

// Stats returns the current load.
func (s *Scheduler) Stats() Stats {
	workers, vacant, queued := s.dispatcher.stats()
	st := Stats{
		Pending: s.queue.Len(),
		Workers: workers,
		Vacant:  vacant,
		Backlog: queued,
	}
	s.mu.Lock()
	for _, n := range s.running {
		st.Running += n
	}
	s.mu.Unlock()
	return st
}
