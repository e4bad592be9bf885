package scheduler

// Lock is an advisory single-instance lock. Lock reports whether the lock
// is held by the caller after the call; taking a lock already held by the
// caller succeeds. Unlock releases it.
//
// A scheduler lock is taken once in New. A trigger lock is consulted on
// every tick before due jobs are triggered.
type Lock interface {
	Lock() (bool, error)
	Unlock() error
}

// LockFunc adapts a pair of functions to the Lock interface.
type LockFunc struct {
	LockFn   func() (bool, error)
	UnlockFn func() error
}

// Lock calls LockFn.
func (l LockFunc) Lock() (bool, error) {
	if l.LockFn == nil {
		return true, nil
	}
	return l.LockFn()
}

// Unlock calls UnlockFn.
func (l LockFunc) Unlock() error {
	if l.UnlockFn == nil {
		return nil
	}
	return l.UnlockFn()
}
