// Package scheduler runs catalog audits on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultTickInterval = 30 * time.Second

// Task is the work a job performs on each run.
type Task func(ctx context.Context) error

// JobStatus is a snapshot of a scheduled job.
type JobStatus struct {
	Name          string    `json:"name"`
	Cron          string    `json:"cron"`
	NextRunAt     time.Time `json:"next_run_at"`
	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string    `json:"last_run_status,omitempty"`
	Runs          int       `json:"runs"`
	Skipped       int       `json:"skipped"`
}

type job struct {
	status   JobStatus
	schedule cron.Schedule
	task     Task
}

// Scheduler checks its jobs on a ticker and runs those that are due. A job
// that is still running when it becomes due again is skipped.
type Scheduler struct {
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	jobs   map[string]*job
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		interval: defaultTickInterval,
		now:      func() time.Time { return time.Now().UTC() },
		jobs:     make(map[string]*job),
		inflight: make(map[string]struct{}),
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(name, cronExpr string, task Task) error {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}
	s.jobs[name] = &job{
		status:   JobStatus{Name: name, Cron: cronExpr, NextRunAt: schedule.Next(s.now())},
		schedule: schedule,
		task:     task,
	}
	return nil
}

// Jobs returns job snapshots sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.status)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.Jobs())))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts every due job that is not already running.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.status.NextRunAt.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if !s.tryAcquire(j.status.Name) {
			s.mu.Lock()
			j.status.Skipped++
			j.status.NextRunAt = j.schedule.Next(now)
			s.mu.Unlock()
			s.logger.Warn("previous run still in progress, skipping", slog.String("job", j.status.Name))
			continue
		}
		s.wg.Add(1)
		go func(j *job) {
			defer s.wg.Done()
			defer s.releaseJob(j.status.Name)
			s.runJob(ctx, j, now)
		}(j)
	}
}

// RunNow runs a job immediately, in the caller's goroutine. It returns an
// error without running when the job is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	if !s.tryAcquire(name) {
		return fmt.Errorf("job %q already running", name)
	}
	defer s.releaseJob(name)
	return s.runJob(ctx, j, s.now())
}

// runJob executes a job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, j *job, now time.Time) error {
	s.logger.Info("running scheduled job", slog.String("job", j.status.Name))

	s.mu.Lock()
	j.status.NextRunAt = j.schedule.Next(now)
	s.mu.Unlock()

	start := time.Now()
	err := j.task(ctx)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled job failed",
			slog.String("job", j.status.Name),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("scheduled job finished",
			slog.String("job", j.status.Name),
			slog.Duration("duration", time.Since(start)),
		)
	}

	s.mu.Lock()
	j.status.LastRunAt = now
	j.status.LastRunStatus = status
	j.status.Runs++
	s.mu.Unlock()
	return err
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop cancels the loop and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}
