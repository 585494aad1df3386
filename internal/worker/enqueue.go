package worker

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/metrics"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
	"github.com/abdul-hamid-achik/scene.cheap/internal/tracing"
)

type Broker interface {
	Enqueue(ctx context.Context, j *job.Job) error
}

// Enqueuer queues generation runs and carries the caller's trace context to the worker.
type Enqueuer struct {
	broker Broker
	redis  redis.UniversalClient
}

// NewEnqueuer builds an Enqueuer. When client is set, the job's event stream from a
// previous run is dropped before the new run is queued so followers never replay it.
func NewEnqueuer(b Broker, client redis.UniversalClient) *Enqueuer {
	return &Enqueuer{broker: b, redis: client}
}

func (e *Enqueuer) EnqueueGeneration(ctx context.Context, jobID string, resume bool) error {
	ctx, span := tracing.StartJobEnqueueSpan(ctx, JobTypeGenerate)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if e.redis != nil {
		if err = e.redis.Del(ctx, stream.StreamKey(jobID)).Err(); err != nil {
			return fmt.Errorf("reset event stream: %w", err)
		}
	}

	payload := GeneratePayload{
		JobID:  jobID,
		Resume: resume,
		Trace:  tracing.InjectTraceContext(ctx),
	}
	j, err := job.New(JobTypeGenerate, payload)
	if err != nil {
		return fmt.Errorf("create queue job: %w", err)
	}
	if err = e.broker.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("enqueue %s: %w", JobTypeGenerate, err)
	}

	metrics.RecordJobEnqueued(JobTypeGenerate)
	logger.FromContext(ctx).Debug("generation enqueued", "job_id", jobID, "queue_job_id", j.ID, "resume", resume)
	return nil
}

// EnqueueEviction queues one cache eviction sweep.
func (e *Enqueuer) EnqueueEviction(ctx context.Context) error {
	j, err := job.New(JobTypeEvict, struct{}{})
	if err != nil {
		return fmt.Errorf("create queue job: %w", err)
	}
	if err := e.broker.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("enqueue %s: %w", JobTypeEvict, err)
	}
	metrics.RecordJobEnqueued(JobTypeEvict)
	return nil
}
