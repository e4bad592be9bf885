package scheduler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// jitterFraction is the maximum share of a retry delay added or removed as
// jitter.
const jitterFraction = 0.1

// backoffDelay returns the delay before the given attempt: initial for the
// second attempt, growing by multiplier per attempt, capped at maxDelay,
// with jitter applied.
func backoffDelay(attempt int, initial, maxDelay time.Duration, multiplier float64) time.Duration {
	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-2)))
	if delay > maxDelay || delay < 0 {
		delay = maxDelay
	}
	// #nosec G404 -- jitter needs no cryptographic randomness
	jitter := time.Duration(float64(delay) * jitterFraction * (2*rand.Float64() - 1))
	return delay + jitter
}

// RetryPolicy configures Retry.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt; -1
	// retries until the context is done.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay.
	MaxDelay time.Duration
	// Multiplier grows the delay per retry. Values below 1 mean 2.
	Multiplier float64
	// Clock measures delays. Nil means the real clock.
	Clock clockwork.Clock
}

// Retry re-runs a failing handler with exponential backoff. Panics count as
// failures. A canceled context (timeout, kill, shutdown) ends the retries
// and its cause is returned.
//
//	h = scheduler.NewChain(scheduler.Retry(logger, scheduler.RetryPolicy{
//	    MaxRetries:   3,
//	    InitialDelay: time.Second,
//	    MaxDelay:     time.Minute,
//	})).Then(h)
//
// Delays for MaxRetries 3, InitialDelay 1s and the default multiplier:
//
//	| Attempt | Delay |
//	|---------|-------|
//	| 1       | 0     |
//	| 2       | 1s    |
//	| 3       | 2s    |
//	| 4       | 4s    |
func Retry(logger Logger, p RetryPolicy) Middleware {
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = p.InitialDelay
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, job *Job, fireTime time.Time) error {
			var err error
			for attempt := 1; p.MaxRetries < 0 || attempt <= p.MaxRetries+1; attempt++ {
				if attempt > 1 {
					delay := backoffDelay(attempt, p.InitialDelay, p.MaxDelay, p.Multiplier)
					logger.Info("retry", "job", jobID(job), "attempt", attempt, "delay", delay, "last_error", err.Error())
					select {
					case <-ctx.Done():
						return context.Cause(ctx)
					case <-clock.After(delay):
					}
				}
				err = safeCall(ctx, next, job, fireTime)
				if err == nil {
					if attempt > 1 {
						logger.Info("retry succeeded", "job", jobID(job), "attempt", attempt)
					}
					return nil
				}
				if ctx.Err() != nil {
					return err
				}
			}
			return fmt.Errorf("retries exhausted after %d attempts: %w", p.MaxRetries+1, err)
		})
	}
}

// CircuitBreaker stops calling a handler after threshold consecutive
// failures. Once cooldown has passed one attempt is let through: success
// closes the circuit, failure opens it again.
//
//	CLOSED --[threshold failures]--> OPEN --[cooldown]--> HALF-OPEN
//	   ^                                                      |
//	   +---------------------[success]------------------------+
func CircuitBreaker(logger Logger, clock clockwork.Clock, threshold int, cooldown time.Duration) Middleware {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(next Handler) Handler {
		var (
			mu       sync.Mutex
			failures int
			lastFail time.Time
		)
		return HandlerFunc(func(ctx context.Context, job *Job, fireTime time.Time) error {
			mu.Lock()
			open := failures >= threshold
			if open {
				if remaining := cooldown - clock.Since(lastFail); remaining > 0 {
					mu.Unlock()
					logger.Info("circuit breaker open", "job", jobID(job), "failures", failures, "cooldown_remaining", remaining)
					return ErrCircuitOpen
				}
				logger.Info("circuit breaker half-open", "job", jobID(job))
			}
			mu.Unlock()

			err := safeCall(ctx, next, job, fireTime)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				lastFail = clock.Now()
				if failures == threshold {
					logger.Error(err, "circuit breaker opened", "job", jobID(job), "failures", failures, "cooldown", cooldown)
				}
				return err
			}
			if open {
				logger.Info("circuit breaker closed", "job", jobID(job))
			}
			failures = 0
			return nil
		})
	}
}
