package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/generation"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
	"github.com/abdul-hamid-achik/scene.cheap/internal/tracing"
)

type Executor interface {
	Execute(ctx context.Context, jobID string, resume bool, sink stream.Sink) (*model.Job, error)
}

// EventSink returns the sink that records a job's frames for API followers.
type EventSink func(jobID string) stream.Sink

type Dependencies struct {
	Service Executor
	Events  EventSink
	Store   cache.Store
}

// GenerateHandler runs one queued generation. Runs that reached a terminal frame are
// never retried by the queue: their outcome is persisted and resumption is explicit.
func GenerateHandler(deps *Dependencies) func(context.Context, *job.Job) error {
	return func(ctx context.Context, j *job.Job) error {
		log := logger.FromContext(ctx).With("queue_job_id", j.ID, "job_type", JobTypeGenerate)

		var payload GeneratePayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return middleware.Permanent(fmt.Errorf("invalid payload: %w", err))
		}
		if err := payload.Validate(); err != nil {
			return middleware.Permanent(err)
		}

		ctx = tracing.ExtractTraceContext(ctx, payload.Trace)
		ctx, span := tracing.StartJobSpan(ctx, JobTypeGenerate, payload.JobID)
		ctx = logger.WithJobID(ctx, payload.JobID)
		log = log.With("job_id", payload.JobID, "resume", payload.Resume)
		log.Info("job started")
		start := time.Now()

		var sink stream.Sink = stream.Discard
		if deps.Events != nil {
			sink = deps.Events(payload.JobID)
		}

		final, err := deps.Service.Execute(ctx, payload.JobID, payload.Resume, sink)
		tracing.EndSpan(span, err)
		if err != nil {
			if permanent(final, err) {
				log.Warn("job finished with error", "error", err, "duration_ms", time.Since(start).Milliseconds())
				return middleware.Permanent(err)
			}
			log.Error("job failed", "error", err)
			return fmt.Errorf("execute %s: %w", payload.JobID, err)
		}

		log.Info("job completed", "duration_ms", time.Since(start).Milliseconds(), "scenes", len(final.Scenes))
		return nil
	}
}

// permanent reports whether a failed Execute must not be retried by the queue.
// A returned job means the run happened and its outcome is stored.
func permanent(final *model.Job, err error) bool {
	if final != nil {
		return true
	}
	return errors.Is(err, cache.ErrNotFound) ||
		errors.Is(err, resume.ErrNotResumable) ||
		errors.Is(err, model.ErrJobCompleted) ||
		errors.Is(err, generation.ErrAlreadyRunning)
}

// EvictHandler sweeps expired jobs from the cache.
func EvictHandler(deps *Dependencies) func(context.Context, *job.Job) error {
	return func(ctx context.Context, j *job.Job) error {
		_, err := RunEviction(ctx, deps.Store)
		return err
	}
}

// RunEviction purges expired job records and their phase entries.
func RunEviction(ctx context.Context, store cache.Store) (int, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	n, err := store.Evict(ctx)
	if err != nil {
		log.Error("cache eviction failed", "error", err)
		return n, fmt.Errorf("evict: %w", err)
	}
	log.Info("cache eviction completed", "evicted", n, "duration_ms", time.Since(start).Milliseconds())
	return n, nil
}
