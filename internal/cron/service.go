package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// Job is one unit of scheduled work. Names key the per-job lock and metrics.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  *metrics.CronMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval. Each job is guarded
// by its own lock, so replicas may split a cycle between them.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CronMetrics
	interval time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	seen := make(map[string]struct{}, len(params.Jobs))
	for _, job := range params.Jobs {
		if job == nil {
			continue
		}
		name := job.Name()
		if name == "" {
			return nil, fmt.Errorf("job name required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate job %q", name)
		}
		seen[name] = struct{}{}
		jobs = append(jobs, job)
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		jobs:     jobs,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.RunOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one cycle. A failing job does not stop the others.
func (s *Service) RunOnce(ctx context.Context) {
	s.logg.Info(ctx, "cron cycle starting")
	for _, job := range s.jobs {
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "cron cycle complete")
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})

	locked, err := s.lock.Acquire(jobCtx, job.Name())
	if err != nil {
		s.logg.Error(jobCtx, "job lock acquire failed", err)
		s.metrics.ObserveRun(job.Name(), metrics.CronOutcomeFailure, 0)
		return
	}
	if !locked {
		s.logg.Info(jobCtx, "job held by another worker, skipping")
		s.metrics.ObserveRun(job.Name(), metrics.CronOutcomeSkipped, 0)
		return
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(jobCtx), job.Name()); err != nil {
			s.logg.Error(jobCtx, "job lock release failed", err)
		}
	}()

	start := time.Now()
	err = job.Run(jobCtx)
	took := time.Since(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.ObserveRun(job.Name(), metrics.CronOutcomeFailure, took)
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.ObserveRun(job.Name(), metrics.CronOutcomeSuccess, took)
}
