// Package store provides the JobRunner for executing durable jobs.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobHandler executes one job. It receives the job's payload JSON and returns an error if the
// work should be retried.
type JobHandler func(ctx context.Context, payload string) error

// JobRunner periodically claims due jobs and dispatches them to handlers by kind.
type JobRunner struct {
	repo           JobRepo
	handlers       map[string]JobHandler
	mu             sync.RWMutex
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	baseBackoff    time.Duration
}

// RunnerOption configures a JobRunner or OutboxSender.
type RunnerOption func(*runnerOpts)

type runnerOpts struct {
	staleThreshold time.Duration
	claimLimit     int
	baseBackoff    time.Duration
}

// WithStaleThreshold sets how long a claimed item may stay locked before recovery requeues it.
func WithStaleThreshold(d time.Duration) RunnerOption {
	return func(o *runnerOpts) { o.staleThreshold = d }
}

// WithClaimLimit sets the maximum number of items claimed per poll.
func WithClaimLimit(n int) RunnerOption {
	return func(o *runnerOpts) { o.claimLimit = n }
}

// WithBaseBackoff sets the first retry delay; each further attempt doubles it.
func WithBaseBackoff(d time.Duration) RunnerOption {
	return func(o *runnerOpts) { o.baseBackoff = d }
}

func applyRunnerOpts(defaultBackoff time.Duration, opts []RunnerOption) runnerOpts {
	cfg := runnerOpts{staleThreshold: 5 * time.Minute, claimLimit: 10, baseBackoff: defaultBackoff}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.claimLimit <= 0 {
		cfg.claimLimit = 10
	}
	return cfg
}

// backoff returns base * 2^attempt.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	return base * time.Duration(1<<attempt)
}

func NewJobRunner(repo JobRepo, pollInterval time.Duration, opts ...RunnerOption) *JobRunner {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	cfg := applyRunnerOpts(30*time.Second, opts)
	return &JobRunner{
		repo:           repo,
		handlers:       make(map[string]JobHandler),
		pollInterval:   pollInterval,
		staleThreshold: cfg.staleThreshold,
		claimLimit:     cfg.claimLimit,
		baseBackoff:    cfg.baseBackoff,
	}
}

// RegisterHandler registers a handler for a given job kind.
func (r *JobRunner) RegisterHandler(kind string, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
	slog.Debug("JobRunner.RegisterHandler", "kind", kind)
}

// RecoverStaleJobs requeues jobs that were running when the process stopped.
// Call once at startup.
func (r *JobRunner) RecoverStaleJobs() error {
	n, err := r.repo.RequeueStaleRunningJobs(time.Now().Add(-r.staleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("JobRunner.RecoverStaleJobs: requeued stale jobs", "count", n)
	}
	return nil
}

// Run polls until the context is cancelled.
func (r *JobRunner) Run(ctx context.Context) {
	slog.Info("JobRunner.Run: starting job runner", "pollInterval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("JobRunner.Run: stopping")
			return
		case <-ticker.C:
			r.RunOnce(ctx, time.Now())
		}
	}
}

// RunOnce claims and executes the jobs due at now. It returns the number of jobs it claimed.
func (r *JobRunner) RunOnce(ctx context.Context, now time.Time) int {
	jobs, err := r.repo.ClaimDueJobs(now, r.claimLimit)
	if err != nil {
		slog.Error("JobRunner.RunOnce: claim failed", "error", err)
		return 0
	}

	for _, job := range jobs {
		r.mu.RLock()
		handler, ok := r.handlers[job.Kind]
		r.mu.RUnlock()

		if !ok {
			slog.Warn("JobRunner.RunOnce: no handler for job kind", "kind", job.Kind, "id", job.ID)
			if err := r.repo.FailJob(job.ID, "no handler registered for kind: "+job.Kind, now.Add(time.Minute)); err != nil {
				slog.Error("JobRunner.RunOnce: fail job error", "id", job.ID, "error", err)
			}
			continue
		}

		slog.Debug("JobRunner.RunOnce: executing job", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
		if err := handler(ctx, job.PayloadJSON); err != nil {
			slog.Error("JobRunner.RunOnce: job execution failed", "id", job.ID, "kind", job.Kind, "error", err)
			if err := r.repo.FailJob(job.ID, err.Error(), now.Add(backoff(r.baseBackoff, job.Attempt))); err != nil {
				slog.Error("JobRunner.RunOnce: fail job error", "id", job.ID, "error", err)
			}
			continue
		}
		if err := r.repo.CompleteJob(job.ID); err != nil {
			slog.Error("JobRunner.RunOnce: complete job error", "id", job.ID, "error", err)
		}
		slog.Debug("JobRunner.RunOnce: job completed", "id", job.ID, "kind", job.Kind)
	}
	return len(jobs)
}
