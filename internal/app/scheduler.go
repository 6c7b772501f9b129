package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Notifuse/outreach/pkg/logger"
)

// Job is one scheduled unit of work
type Job func(ctx context.Context) error

type scheduledJob struct {
	name    string
	spec    string
	timeout time.Duration
	run     Job
	running sync.Mutex
}

// Scheduler runs the delivery, reaper and campaign jobs on cron specs.
// A job never overlaps with itself; a tick that finds it running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*scheduledJob
	ctx    context.Context
	logger logger.Logger
	mu     sync.Mutex
}

// NewScheduler creates a scheduler whose jobs stop when ctx is cancelled
func NewScheduler(ctx context.Context, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{log})),
		jobs:   make(map[string]*scheduledJob),
		ctx:    ctx,
		logger: log,
	}
}

// Add registers a job. An empty spec registers it for manual triggering only.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, run Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	job := &scheduledJob{name: name, spec: spec, timeout: timeout, run: run}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.execute(job, false) }); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}
	}
	s.jobs[name] = job

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": spec,
	}).Info("Job registered")
	return nil
}

// Trigger runs a job now and waits for it. It fails when the job is already in progress.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job: %s", name)
	}
	return s.execute(job, true)
}

func (s *Scheduler) execute(job *scheduledJob, manual bool) error {
	if !job.running.TryLock() {
		s.logger.WithField("job", job.name).Warn("Job still running, skipping")
		return fmt.Errorf("job %s is already running", job.name)
	}
	defer job.running.Unlock()

	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	ctx := s.ctx
	if job.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.run(ctx)
	fields := map[string]interface{}{
		"job":         job.name,
		"manual":      manual,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger.WithFields(fields).Error("Job failed")
		return err
	}
	s.logger.WithFields(fields).Debug("Job completed")
	return nil
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx, whichever comes first
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Entries returns how many jobs run on a schedule
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLogger routes cron's own messages into the application logger
type cronLogger struct {
	logger logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvToFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvToFields(keysAndValues)
	fields["error"] = err.Error()
	l.logger.WithFields(fields).Error("cron: " + msg)
}

func kvToFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
