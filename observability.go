package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Hooks provides callbacks for monitoring the scheduler.
// All callbacks are optional; nil callbacks are safely ignored.
//
// Hooks are called synchronously, OnPreTrigger, OnTrigger and OnSchedule on
// the loop goroutine, so implementations should be lightweight or dispatch
// to a separate goroutine for expensive operations.
//
// Example with Prometheus:
//
//	hooks := scheduler.Hooks{
//	    OnTrigger: func(j *scheduler.Job, fireTime time.Time) {
//	        jobsTriggered.WithLabelValues(j.Kind().String()).Inc()
//	    },
//	    OnComplete: func(j *scheduler.Job, _ time.Time, d time.Duration, err error) {
//	        jobDuration.WithLabelValues(j.Kind().String()).Observe(d.Seconds())
//	    },
//	}
//	s, _ := scheduler.New(scheduler.WithHooks(hooks))
type Hooks struct {
	// OnPreTrigger is called before a due job executes. Returning false
	// skips this trigger; the job is rescheduled as usual.
	OnPreTrigger func(job *Job, fireTime time.Time) bool

	// OnTrigger is called when a job is handed to a worker.
	OnTrigger func(job *Job, fireTime time.Time)

	// OnComplete is called when an execution finishes. err is nil on
	// success.
	OnComplete func(job *Job, fireTime time.Time, duration time.Duration, err error)

	// OnSchedule is called when a job's next time is set.
	OnSchedule func(job *Job, next time.Time)
}

func (h *Hooks) preTrigger(j *Job, fireTime time.Time) bool {
	if h.OnPreTrigger == nil {
		return true
	}
	return h.OnPreTrigger(j, fireTime)
}

func (h *Hooks) trigger(j *Job, fireTime time.Time) {
	if h.OnTrigger != nil {
		h.OnTrigger(j, fireTime)
	}
}

func (h *Hooks) complete(j *Job, fireTime time.Time, d time.Duration, err error) {
	if h.OnComplete != nil {
		h.OnComplete(j, fireTime, d, err)
	}
}

func (h *Hooks) schedule(j *Job, next time.Time) {
	if h.OnSchedule != nil {
		h.OnSchedule(j, next)
	}
}

// spanName is the name of the span wrapping each execution.
const spanName = "scheduler.job"

// invoke runs the handler, inside a span when a tracer is configured.
func (s *Scheduler) invoke(ctx context.Context, j *Job, fireTime time.Time) error {
	if s.tracer == nil {
		return safeCall(ctx, j.handler, j, fireTime)
	}
	ctx, span := s.tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("job.id", j.id),
			attribute.String("job.kind", j.kind.String()),
			attribute.String("job.schedule", j.original),
			attribute.Int("job.count", j.Count()),
			attribute.String("job.fire_time", fireTime.Format(time.RFC3339)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	err := safeCall(ctx, j.handler, j, fireTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
