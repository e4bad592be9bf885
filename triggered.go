package scheduler

import "fmt"

// TriggerNow runs the job with the given id once, immediately, outside its
// schedule. The run does not count against Times and does not move the
// job's next time. Overlap, mutexes, timeout and hooks apply as for a
// scheduled trigger. Blocking jobs run on the caller's goroutine.
//
//	if err := s.TriggerNow("nightly-report"); err != nil {
//	    log.Println(err)
//	}
func (s *Scheduler) TriggerNow(id string) error {
	if s.isStopped() {
		return ErrSchedulerStopped
	}
	j, ok := s.Job(id)
	if !ok || j.Unscheduled() {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !j.cfg.Overlap && j.inFlight() {
		s.logger.Info("skipping overlapping manual trigger", "job", j.id)
		return nil
	}

	now := s.clock.Now()
	if !s.hooks.preTrigger(j, now) {
		s.logger.Info("manual trigger vetoed by hook", "job", j.id)
		return nil
	}
	s.hooks.trigger(j, now)
	s.logger.Info("manual trigger", "job", j.id)

	t := task{job: j, fireTime: now, manual: true}
	if j.cfg.Blocking {
		s.execute(t)
		return nil
	}
	if !s.submit(t) {
		return ErrSchedulerStopped
	}
	return nil
}
