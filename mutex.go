package scheduler

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"
)

// MutexRegistry holds the named mutual exclusion domains of one scheduler.
// Domains are created on first use. Each is a weighted semaphore of size one
// so that waiting for it can be abandoned when the job is killed.
type MutexRegistry struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewMutexRegistry returns an empty registry.
func NewMutexRegistry() *MutexRegistry {
	return &MutexRegistry{sems: make(map[string]*semaphore.Weighted)}
}

func (r *MutexRegistry) get(name string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sems[name]
	if !ok {
		s = semaphore.NewWeighted(1)
		r.sems[name] = s
	}
	return s
}

// Names returns the names of the domains created so far, sorted.
func (r *MutexRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sems))
	for n := range r.sems {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Acquire takes the named domains in sorted order, then the lockers in the
// given order. Sorting gives every job the same acquisition order, so two
// jobs sharing several names cannot deadlock. On error nothing is held.
// The returned release function undoes the acquisition in reverse order.
func (r *MutexRegistry) Acquire(ctx context.Context, names []string, lockers []sync.Locker) (release func(), err error) {
	if len(names) == 0 && len(lockers) == 0 {
		return func() {}, nil
	}
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*semaphore.Weighted, 0, len(sorted))
	releaseSems := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}
	for _, n := range sorted {
		s := r.get(n)
		if err := s.Acquire(ctx, 1); err != nil {
			releaseSems()
			if cause := context.Cause(ctx); cause != nil {
				return nil, cause
			}
			return nil, err
		}
		held = append(held, s)
	}
	for _, l := range lockers {
		l.Lock()
	}
	return func() {
		for i := len(lockers) - 1; i >= 0; i-- {
			lockers[i].Unlock()
		}
		releaseSems()
	}, nil
}
