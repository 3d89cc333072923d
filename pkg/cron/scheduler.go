// Package cron runs maintenance jobs on cron expressions.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/picobot/pkg/logger"
)

// Job is a named task run on a cron schedule.
type Job struct {
	Name string
	Expr string
	Run  func(ctx context.Context) error
}

// JobStatus is the outcome of the last run of a job.
type JobStatus struct {
	Name    string
	Expr    string
	LastRun time.Time
	NextRun time.Time
	LastErr error
	Runs    int
}

type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	status  map[string]*JobStatus
	now     func() time.Time
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		status: make(map[string]*JobStatus),
		now:    time.Now,
	}
}

// Add registers a job. It fails on an invalid expression or a duplicate name.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("cron: job needs a name and a func")
	}
	if !gronx.New().IsValid(job.Expr) {
		return fmt.Errorf("cron: invalid expression %q for job %s", job.Expr, job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.status[job.Name]; ok {
		return fmt.Errorf("cron: duplicate job %s", job.Name)
	}
	s.jobs = append(s.jobs, job)
	s.status[job.Name] = &JobStatus{Name: job.Name, Expr: job.Expr}
	return nil
}

// Start launches one goroutine per job. Jobs stop when ctx is done or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	logger.InfoCF("cron", "Scheduler started", map[string]any{"jobs": len(s.jobs)})
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logger.InfoC("cron", "Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		next, err := gronx.NextTickAfter(job.Expr, s.now(), false)
		if err != nil {
			logger.ErrorCF("cron", "Cannot compute next run", map[string]any{"job": job.Name, "error": err.Error()})
			return
		}
		s.setNext(job.Name, next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.RunNow(ctx, job.Name)
	}
}

// RunNow runs the named job synchronously and records the outcome.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	var job *Job
	s.mu.Lock()
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			job = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return fmt.Errorf("cron: unknown job %s", name)
	}

	start := s.now()
	err := job.Run(ctx)

	s.mu.Lock()
	st := s.status[name]
	st.LastRun = start
	st.LastErr = err
	st.Runs++
	s.mu.Unlock()

	fields := map[string]any{"job": name, "duration_ms": s.now().Sub(start).Milliseconds()}
	if err != nil {
		fields["error"] = err.Error()
		logger.WarnCF("cron", "Job failed", fields)
		return err
	}
	logger.DebugCF("cron", "Job finished", fields)
	return nil
}

func (s *Scheduler) setNext(name string, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[name].NextRun = next
}

// Status returns a snapshot of all jobs.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *s.status[j.Name])
	}
	return out
}
