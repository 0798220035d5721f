// Package verifyrunner runs certificate verification in the background. A
// dispatcher hands queued jobs to a bounded set of workers; callers poll
// the run registry for the outcome.
package verifyrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrQueueFull = errors.New("verification queue is full")

type Config struct {
	Concurrency int
	QueueSize   int
	Timeout     time.Duration
}

type Runner struct {
	registry  *Registry
	processor Processor
	cfg       Config
	jobs      chan Job
	logger    *slog.Logger
}

func New(cfg Config, registry *Registry, processor Processor, logger *slog.Logger) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry:  registry,
		processor: processor,
		cfg:       cfg,
		jobs:      make(chan Job, cfg.QueueSize),
		logger:    logger,
	}
}

func (r *Runner) Registry() *Registry { return r.registry }

// Submit queues job without blocking. The run must already exist in the
// registry.
func (r *Runner) Submit(job Job) error {
	select {
	case r.jobs <- job:
		return nil
	default:
		r.registry.markFailed(job.RunID, ErrQueueFull)
		return ErrQueueFull
	}
}

// Run dispatches queued jobs until ctx is done, then waits for in-flight
// jobs to finish. Jobs still queued at that point are marked failed.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for {
		select {
		case <-gctx.Done():
			err := g.Wait()
			r.drain(context.Cause(gctx))
			return err
		case job := <-r.jobs:
			g.Go(func() error {
				_, _ = r.execute(gctx, job)
				return nil
			})
		}
	}
}

func (r *Runner) drain(cause error) {
	for {
		select {
		case job := <-r.jobs:
			r.registry.markFailed(job.RunID, cause)
			r.logger.Warn("verification abandoned", "run_id", job.RunID, "document_id", job.Submission.DocumentID, "error", cause)
		default:
			return
		}
	}
}

// ProcessInline runs job on the caller's goroutine with the same bookkeeping
// as the background workers.
func (r *Runner) ProcessInline(ctx context.Context, job Job) (Run, error) {
	return r.execute(ctx, job)
}

func (r *Runner) execute(ctx context.Context, job Job) (Run, error) {
	logger := r.logger.With("run_id", job.RunID, "document_id", job.Submission.DocumentID)
	r.registry.markRunning(job.RunID)

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	payload, err := r.processor.Process(ctx, job)
	if err != nil {
		logger.Warn("verification failed", "error", err, "elapsed", time.Since(start))
		return r.registry.markFailed(job.RunID, err), err
	}
	logger.Info("verification completed", "status", payload.Status, "elapsed", time.Since(start))
	return r.registry.markCompleted(job.RunID, payload), nil
}
