package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMutexRegistryExclusion(t *testing.T) {
	r := NewMutexRegistry()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(context.Background(), []string{"m"}, nil)
			if err != nil {
				t.Error(err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	if maxInside.Load() != 1 {
		t.Errorf("%d holders at once", maxInside.Load())
	}
}

// Two jobs naming the same domains in opposite order must not deadlock.
func TestMutexRegistryOrder(t *testing.T) {
	r := NewMutexRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := range 50 {
		names := []string{"a", "b", "c"}
		if i%2 == 1 {
			names = []string{"c", "b", "a", "a"}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, names, nil)
			if err != nil {
				t.Error(err)
				return
			}
			release()
		}()
	}
	wg.Wait()
	if got := fmt.Sprint(r.Names()); got != "[a b c]" {
		t.Errorf("Names = %s", got)
	}
}

func TestMutexRegistryCanceled(t *testing.T) {
	r := NewMutexRegistry()
	hold, err := r.Acquire(context.Background(), []string{"b"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer hold()

	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel(ErrJobKilled)
	}()
	if _, err := r.Acquire(ctx, []string{"a", "b"}, nil); !errors.Is(err, ErrJobKilled) {
		t.Fatalf("Acquire = %v, want ErrJobKilled", err)
	}

	// "a" was released when waiting for "b" was abandoned.
	release, err := r.Acquire(context.Background(), []string{"a"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	release()
}

func TestMutexRegistryLockers(t *testing.T) {
	r := NewMutexRegistry()
	var mu sync.Mutex
	release, err := r.Acquire(context.Background(), nil, []sync.Locker{&mu})
	if err != nil {
		t.Fatal(err)
	}
	if mu.TryLock() {
		t.Fatal("locker not held")
	}
	release()
	if !mu.TryLock() {
		t.Fatal("locker not released")
	}
	mu.Unlock()
}
