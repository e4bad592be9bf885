package scheduler

import (
	"sync"
	"time"
)

// Dispatcher defaults.
const (
	DefaultMinThreads        = 7
	DefaultMaxThreads        = 35
	DefaultWorkerIdleTimeout = time.Minute
)

// task is one triggered execution waiting for a worker.
type task struct {
	job      *Job
	fireTime time.Time
	manual   bool
	queued   bool // counted in the job's queued triggers
}

// dispatcher is a worker pool sized between min and max workers. Workers
// are spawned on demand: when a task arrives and the vacant workers cannot
// cover the tasks already waiting, a new worker is started unless max is
// reached. Workers above min retire after idling for idleTimeout.
type dispatcher struct {
	min, max    int
	idleTimeout time.Duration
	run         func(task)
	onPanic     func(any)

	mu      sync.Mutex
	queue   []task
	workers int
	vacant  int
	stopped bool

	signal chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newDispatcher(minWorkers, maxWorkers int, idle time.Duration, run func(task), onPanic func(any)) *dispatcher {
	return &dispatcher{
		min:         minWorkers,
		max:         maxWorkers,
		idleTimeout: idle,
		run:         run,
		onPanic:     onPanic,
		signal:      make(chan struct{}, maxWorkers),
		stop:        make(chan struct{}),
	}
}

// submit queues t for a worker. It returns false after shutdown.
func (d *dispatcher) submit(t task) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	spawn := d.vacant-len(d.queue) < 1 && d.workers < d.max
	d.queue = append(d.queue, t)
	if spawn {
		d.workers++
		d.vacant++
		d.wg.Add(1)
		go d.worker()
	}
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

func (d *dispatcher) worker() {
	defer d.wg.Done()
	idle := time.NewTimer(d.idleTimeout)
	defer idle.Stop()

	for {
		d.mu.Lock()
		if len(d.queue) > 0 {
			t := d.queue[0]
			d.queue[0] = task{}
			d.queue = d.queue[1:]
			d.vacant--
			d.mu.Unlock()

			d.runTask(t)

			d.mu.Lock()
			d.vacant++
			d.mu.Unlock()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.idleTimeout)
			continue
		}
		if d.stopped {
			d.retireLocked()
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		select {
		case <-d.signal:
		case <-d.stop:
		case <-idle.C:
			d.mu.Lock()
			if d.workers > d.min && len(d.queue) == 0 {
				d.retireLocked()
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idleTimeout)
		}
	}
}

// runTask keeps a worker alive across a panic escaping run.
func (d *dispatcher) runTask(t task) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(r)
		}
	}()
	d.run(t)
}

func (d *dispatcher) retireLocked() {
	d.workers--
	d.vacant--
}

// shutdown stops accepting tasks. With drop, tasks not yet picked up by a
// worker are discarded and returned; otherwise workers drain them first.
func (d *dispatcher) shutdown(drop bool) []task {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	var dropped []task
	if drop {
		dropped = d.queue
		d.queue = nil
	}
	d.mu.Unlock()
	close(d.stop)
	return dropped
}

// wait blocks until every worker exited or done is closed. It reports
// whether the workers exited.
func (d *dispatcher) wait(done <-chan struct{}) bool {
	exited := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(exited)
	}()
	select {
	case <-exited:
		return true
	case <-done:
		return false
	}
}

// stats returns the worker count, the vacant count and the number of
// waiting tasks.
func (d *dispatcher) stats() (workers, vacant, queued int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workers, d.vacant, len(d.queue)
}
