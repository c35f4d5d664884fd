// Package scheduler runs functions on cron schedules.
//
// A Scheduler is owned by whoever starts it: call Start before serving and
// Stop (then optionally Wait) on shutdown. Nothing is registered with process
// exit hooks.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepmind9/groupmebot/internal/logger"
	"github.com/keepmind9/groupmebot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Func is the work a job performs. The context is cancelled when the
// scheduler stops.
type Func func(ctx context.Context)

// JobInfo describes a registered job.
type JobInfo struct {
	ID      string
	Name    string
	Trigger string
	NextRun time.Time
}

func (j JobInfo) String() string {
	if j.NextRun.IsZero() {
		return fmt.Sprintf("%s (trigger: %s, pending)", j.Name, j.Trigger)
	}
	return fmt.Sprintf("%s (trigger: %s, next run at: %s)", j.Name, j.Trigger, j.NextRun.Format("2006-01-02 15:04:05 MST"))
}

type job struct {
	id   string
	name string
	cron Cron
	fn   Func
	last time.Time // second of the latest run
}

// Scheduler evaluates its jobs every tick and runs the due ones in their
// own goroutines.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []*job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	tick time.Duration
	now  func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick changes how often jobs are evaluated.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New returns a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tick: constants.SchedulerTick,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers fn under name. The schedule is validated here so a bad
// schedule fails at setup rather than at run time.
func (s *Scheduler) Add(name string, c Cron, fn Func) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("job %s has no function", name)
	}
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("job %s: %w", name, err)
	}

	j := &job{id: uuid.NewString(), name: name, cron: c, fn: fn}

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"job_id":  j.id,
		"job":     name,
		"trigger": c.String(),
	}).Info("job-added")
	return j.id, nil
}

// Jobs lists the registered jobs in registration order.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	jobs := append([]*job(nil), s.jobs...)
	running := s.running
	s.mu.Unlock()

	now := s.now()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		info := JobInfo{ID: j.id, Name: j.name, Trigger: j.cron.String()}
		if running {
			if next, err := j.cron.Next(now); err == nil {
				info.NextRun = next
			}
		}
		out = append(out, info)
	}
	return out
}

// Running reports whether Start has been called without a later Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins evaluating jobs. Calling it on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)
	logger.WithField("jobs", len(s.jobs)).Info("scheduler-started")
}

// Stop cancels the evaluation loop and in-flight jobs' contexts. It does not
// wait for them; use Wait for that.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	logger.Info("scheduler-stopped")
}

// Wait blocks until the loop and all job runs have returned, or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx, s.now())
		}
	}
}

// runDue starts every job due in the second containing now. A job runs at
// most once per second.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	sec := now.Truncate(time.Second)

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.last.Before(sec) {
			continue
		}
		ok, err := j.cron.IsDue(sec)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"job":   j.name,
				"error": err,
			}).Warn("job-schedule-evaluation-failed")
			continue
		}
		if ok {
			j.last = sec
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.wg.Add(1)
		go s.run(ctx, j)
	}
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"job":   j.name,
				"panic": r,
			}).Error("job-panicked")
		}
	}()

	if j.cron.Jitter > 0 {
		delay := time.Duration(rand.Int63n(int64(j.cron.Jitter)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	logger.WithFields(logrus.Fields{
		"job_id": j.id,
		"job":    j.name,
	}).Debug("job-running")
	j.fn(ctx)
}
