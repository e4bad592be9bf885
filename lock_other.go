//go:build !unix

package scheduler

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLock is an advisory lock on a file. On platforms without flock(2) it
// falls back to exclusive creation of the file, so a lock left behind by a
// crashed process must be removed by hand.
type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewFileLock returns a lock on path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Lock tries to take the lock without blocking.
func (l *FileLock) Lock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return true, nil
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("open lock file: %w", err)
	}
	_, _ = fmt.Fprintf(f, "pid: %d\nlocked_at: %s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.file = f
	return true, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	cerr := f.Close()
	if err := os.Remove(l.path); err != nil {
		return err
	}
	return cerr
}

// Locked reports whether this FileLock holds the lock.
func (l *FileLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}
