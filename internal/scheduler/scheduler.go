// Package scheduler runs the periodic automation jobs. Overlapping runs of
// the same job are skipped, not queued: each job carries an atomic running
// flag checked before every tick.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/monitoring"
)

// JobFunc is one periodic job body.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	running  atomic.Bool
}

// Scheduler owns the periodic jobs and their run-state.
type Scheduler struct {
	jobs   []*job
	logger *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    sync.WaitGroup
	started bool
}

// New creates an empty scheduler
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{logger: log}
}

// AddJob registers a named periodic job. Must be called before Start.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, interval: interval, fn: fn})
}

// Start launches one ticker goroutine per job. Calling Start twice is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, j := range s.jobs {
		s.done.Add(1)
		go s.runLoop(runCtx, j)
	}

	s.logger.WithField("jobs", len(s.jobs)).Info("Scheduler started")
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.done.Wait()
	s.logger.Info("Scheduler stopped")
}

// Status reports which jobs are currently mid-run.
func (s *Scheduler) Status() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]bool, len(s.jobs))
	for _, j := range s.jobs {
		status[j.name] = j.running.Load()
	}
	return status
}

func (s *Scheduler) runLoop(ctx context.Context, j *job) {
	defer s.done.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

// runOnce executes the job body unless a previous run is still in flight,
// in which case this tick is skipped entirely.
func (s *Scheduler) runOnce(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		s.logger.WithField("job", j.name).Warn("Skipping job run; previous run still in flight")
		return
	}
	defer j.running.Store(false)

	start := time.Now()
	err := j.fn(ctx)
	monitoring.RecordSweepRun(j.name, err)

	entry := s.logger.WithFields(map[string]interface{}{
		"job":         j.name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("Job run failed")
		return
	}
	entry.Debug("Job run completed")
}

// RunNow executes one registered job immediately under the same overlap
// exclusion as scheduled ticks. Returns false when the job was skipped
// because a run is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	s.mu.Lock()
	var target *job
	for _, j := range s.jobs {
		if j.name == name {
			target = j
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return false
	}
	if !target.running.CompareAndSwap(false, true) {
		return false
	}
	defer target.running.Store(false)

	err := target.fn(ctx)
	monitoring.RecordSweepRun(target.name, err)
	if err != nil {
		s.logger.WithField("job", name).WithError(err).Error("Job run failed")
	}
	return true
}
