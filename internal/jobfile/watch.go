package jobfile

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last change event
// before reloading, so that editors writing in several steps trigger one
// reload.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the job file at path whenever it changes and passes the
// result to fn. A file that fails to parse is passed as a nil File and the
// error. Watch blocks until ctx is done.
//
// The directory is watched rather than the file so that editors replacing
// the file by rename are followed.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(*File, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	dir, base := filepath.Dir(path), filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("jobfile watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("jobfile watch %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if ctx.Err() != nil {
				return
			}
			fn(Load(path))
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fn(nil, fmt.Errorf("jobfile watch: %w", err))
		}
	}
}
