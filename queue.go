package scheduler

import (
	"sort"
	"sync"
	"time"
)

// JobQueue holds pending jobs sorted ascending by next time. Jobs with equal
// times keep their insertion order. All methods are safe for concurrent use.
type JobQueue struct {
	mu      sync.Mutex
	entries []queueEntry
	byID    map[string]*Job
}

// queueEntry pins the sort key so that a job changing its next time under its
// own lock cannot break the ordering.
type queueEntry struct {
	at  time.Time
	job *Job
}

// NewJobQueue returns an empty queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{byID: make(map[string]*Job)}
}

// Insert places job at time at. A pending job with the same id is replaced
// and returned.
func (q *JobQueue) Insert(job *Job, at time.Time) (replaced *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if old, ok := q.byID[job.id]; ok {
		q.removeLocked(job.id)
		if old != job {
			replaced = old
		}
	}
	i := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].at.After(at)
	})
	q.entries = append(q.entries, queueEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = queueEntry{at: at, job: job}
	q.byID[job.id] = job
	return replaced
}

// PopDue removes and returns the earliest job if its time is not after now.
func (q *JobQueue) PopDue(now time.Time) (*Job, time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 || q.entries[0].at.After(now) {
		return nil, time.Time{}, false
	}
	e := q.entries[0]
	q.entries[0] = queueEntry{}
	q.entries = q.entries[1:]
	delete(q.byID, e.job.id)
	return e.job, e.at, true
}

// Peek returns the earliest job without removing it.
func (q *JobQueue) Peek() (*Job, time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, time.Time{}, false
	}
	return q.entries[0].job, q.entries[0].at, true
}

// RemoveUnscheduled drops every unscheduled job and returns how many were
// dropped.
func (q *JobQueue) RemoveUnscheduled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.job.Unscheduled() {
			delete(q.byID, e.job.id)
			continue
		}
		kept = append(kept, e)
	}
	removed := len(q.entries) - len(kept)
	clear(q.entries[len(kept):])
	q.entries = kept
	return removed
}

// Remove drops the job with the given id.
func (q *JobQueue) Remove(id string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.byID[id]
	if !ok {
		return nil, false
	}
	q.removeLocked(id)
	return j, true
}

func (q *JobQueue) removeLocked(id string) {
	for i, e := range q.entries {
		if e.job.id == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.byID, id)
}

// Lookup returns the pending job with the given id.
func (q *JobQueue) Lookup(id string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.byID[id]
	return j, ok
}

// Snapshot returns the pending jobs in queue order.
func (q *JobQueue) Snapshot() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.job
	}
	return out
}

// Times returns the queue keys in order. It exists for invariant checks.
func (q *JobQueue) Times() []time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]time.Time, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.at
	}
	return out
}

// Len returns the number of pending jobs.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
