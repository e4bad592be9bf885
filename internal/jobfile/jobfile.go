// Package jobfile loads scheduler jobs from a YAML document and keeps a
// scheduler in sync with it.
//
//	jobs:
//	  - id: backup
//	    cron: "0 3 * * * Europe/Berlin"
//	    command: /usr/local/bin/backup
//	    mutex: [disk]
//	    timeout: 2h
//	  - id: heartbeat
//	    every: 30s
//	    command: curl -fsS https://hc.example.com/ping
package jobfile

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	scheduler "github.com/netresearch/go-scheduler"
	yaml "go.yaml.in/yaml/v3"
)

// Tag marks every job created from a job file.
const Tag = "jobfile"

// revPrefix prefixes the tag carrying a job's revision hash.
const revPrefix = "jobfile.rev="

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("jobfile: invalid")

// File is a decoded job file.
type File struct {
	Jobs []Spec `yaml:"jobs"`
}

// Spec describes one job. Exactly one of Cron, Every, Interval, At and In
// must be set.
type Spec struct {
	ID       string `yaml:"id"`
	Cron     string `yaml:"cron,omitempty"`
	Every    string `yaml:"every,omitempty"`
	Interval string `yaml:"interval,omitempty"`
	At       string `yaml:"at,omitempty"`
	In       string `yaml:"in,omitempty"`

	Command string   `yaml:"command"`
	Tags    []string `yaml:"tags,omitempty"`

	Overlap     *bool    `yaml:"overlap,omitempty"`
	Mutex       []string `yaml:"mutex,omitempty"`
	Timeout     string   `yaml:"timeout,omitempty"`
	Times       int      `yaml:"times,omitempty"`
	FirstIn     string   `yaml:"first_in,omitempty"`
	LastIn      string   `yaml:"last_in,omitempty"`
	DiscardPast *bool    `yaml:"discard_past,omitempty"`
	Blocking    bool     `yaml:"blocking,omitempty"`
	Retries     int      `yaml:"retries,omitempty"`
}

// Kind returns the schedule kind the spec selects.
func (s Spec) Kind() scheduler.Kind {
	switch {
	case s.Cron != "":
		return scheduler.KindCron
	case s.Every != "":
		return scheduler.KindEvery
	case s.Interval != "":
		return scheduler.KindInterval
	case s.At != "":
		return scheduler.KindAt
	default:
		return scheduler.KindIn
	}
}

// Schedule returns the schedule string of the selected kind.
func (s Spec) Schedule() string {
	for _, v := range []string{s.Cron, s.Every, s.Interval, s.At, s.In} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Load reads and parses the job file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a job file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks ids, schedule keys and durations of every spec.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(f.Jobs))
	for i, s := range f.Jobs {
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w", i, err))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w: duplicate id %q", i, ErrInvalid, s.ID))
		}
		seen[s.ID] = true
	}
	return errors.Join(errs...)
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("%w: %s: missing command", ErrInvalid, s.ID)
	}
	n := 0
	for _, v := range []string{s.Cron, s.Every, s.Interval, s.At, s.In} {
		if v != "" {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: %s: exactly one of cron, every, interval, at, in is required", ErrInvalid, s.ID)
	}
	if s.Cron != "" {
		if err := scheduler.ValidateCron(s.Cron); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, s.ID, err)
		}
	}
	for name, v := range map[string]string{"timeout": s.Timeout, "first_in": s.FirstIn, "last_in": s.LastIn} {
		if v == "" {
			continue
		}
		if _, err := scheduler.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: %s: %s: %w", ErrInvalid, s.ID, name, err)
		}
	}
	if s.Retries < 0 {
		return fmt.Errorf("%w: %s: retries must not be negative", ErrInvalid, s.ID)
	}
	return nil
}

// Revision is a hash of the spec. Jobs are rescheduled when it changes.
func (s Spec) Revision() string {
	b, err := yaml.Marshal(s)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Options converts the spec into job options. The id and the job file tags
// are always included.
func (s Spec) Options() []scheduler.JobOption {
	tags := append([]string{Tag, revPrefix + s.Revision()}, s.Tags...)
	opts := []scheduler.JobOption{
		scheduler.WithJobID(s.ID),
		scheduler.WithName(s.ID),
		scheduler.WithTags(tags...),
	}
	if s.Overlap != nil {
		opts = append(opts, scheduler.WithOverlap(*s.Overlap))
	}
	if len(s.Mutex) > 0 {
		opts = append(opts, scheduler.WithMutex(s.Mutex...))
	}
	if d, ok := duration(s.Timeout); ok {
		opts = append(opts, scheduler.WithTimeout(d))
	}
	if s.Times > 0 {
		opts = append(opts, scheduler.WithTimes(s.Times))
	}
	if d, ok := duration(s.FirstIn); ok {
		opts = append(opts, scheduler.WithFirstIn(d))
	}
	if d, ok := duration(s.LastIn); ok {
		opts = append(opts, scheduler.WithLastIn(d))
	}
	if s.DiscardPast != nil {
		opts = append(opts, scheduler.WithDiscardPast(*s.DiscardPast))
	}
	if s.Blocking {
		opts = append(opts, scheduler.WithBlocking())
	}
	return opts
}

func duration(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	d, err := scheduler.ParseDuration(v)
	return d, err == nil
}

// Runner builds the handler of a spec.
type Runner func(Spec) scheduler.Handler

// Result lists the ids touched by Apply.
type Result struct {
	Added     []string
	Updated   []string
	Removed   []string
	Unchanged []string
}

// Syncer keeps a scheduler in line with successive versions of a job file.
// It remembers what it applied, so one-shot jobs that already fired are not
// scheduled again on reload.
type Syncer struct {
	sched *scheduler.Scheduler
	run   Runner

	mu      sync.Mutex
	applied map[string]string
}

// NewSyncer returns a Syncer scheduling on s with handlers built by run.
func NewSyncer(s *scheduler.Scheduler, run Runner) *Syncer {
	return &Syncer{sched: s, run: run, applied: make(map[string]string)}
}

// Apply schedules f once on s. See Syncer.Apply.
func Apply(s *scheduler.Scheduler, f *File, run Runner) (Result, error) {
	return NewSyncer(s, run).Apply(f)
}

// Apply brings the job file jobs in line with f: jobs missing from f are
// unscheduled, jobs whose spec changed are scheduled anew under the same id
// and new jobs are added. Specs that fail to schedule are reported in the
// returned error and do not stop the others.
func (y *Syncer) Apply(f *File) (Result, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	var (
		res  Result
		errs []error
	)
	current := make(map[string]string, len(y.applied))
	for _, j := range y.sched.Jobs(scheduler.JobFilter{Tags: []string{Tag}}) {
		current[j.ID()] = revisionOf(j)
	}
	for id, rev := range y.applied {
		current[id] = rev
	}

	wanted := make(map[string]bool, len(f.Jobs))
	for _, spec := range f.Jobs {
		wanted[spec.ID] = true
		rev := spec.Revision()
		old, exists := current[spec.ID]
		if exists && old == rev {
			res.Unchanged = append(res.Unchanged, spec.ID)
			continue
		}
		if _, err := schedule(y.sched, spec, y.run(spec)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", spec.ID, err))
			continue
		}
		y.applied[spec.ID] = rev
		if exists {
			res.Updated = append(res.Updated, spec.ID)
		} else {
			res.Added = append(res.Added, spec.ID)
		}
	}

	for id := range current {
		if wanted[id] {
			continue
		}
		delete(y.applied, id)
		if err := y.sched.Unschedule(id); err == nil {
			res.Removed = append(res.Removed, id)
		}
	}
	slices.Sort(res.Removed)
	return res, errors.Join(errs...)
}

func schedule(s *scheduler.Scheduler, spec Spec, h scheduler.Handler) (*scheduler.Job, error) {
	opts := spec.Options()
	switch spec.Kind() {
	case scheduler.KindCron:
		return s.Cron(spec.Cron, h, opts...)
	case scheduler.KindEvery:
		return s.Every(spec.Every, h, opts...)
	case scheduler.KindInterval:
		return s.Interval(spec.Interval, h, opts...)
	case scheduler.KindAt:
		return s.At(spec.At, h, opts...)
	default:
		return s.In(spec.In, h, opts...)
	}
}

func revisionOf(j *scheduler.Job) string {
	for _, t := range j.Tags() {
		if rev, ok := strings.CutPrefix(t, revPrefix); ok {
			return rev
		}
	}
	return ""
}
