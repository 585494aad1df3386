// Package orchestrator drives one generation job through its phases, emitting progress
// frames, persisting snapshots after every batch and turning failures and cancellation
// into resumable terminal states.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/phase"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

const DefaultPersistTimeout = 5 * time.Second

type Analyzer interface {
	ColorProfile(ctx context.Context, opts model.Options) (*model.ColorProfile, error)
	Merged(ctx context.Context, opts model.Options) (*phase.MergedResult, error)
	Script(ctx context.Context, opts model.Options) (string, error)
}

type CharacterExtractor interface {
	Extract(ctx context.Context, opts model.Options, script string) (*phase.CharacterResult, error)
}

type SceneGenerator interface {
	Batch(ctx context.Context, in phase.BatchInput) (*phase.BatchResult, error)
}

type Deps struct {
	Analyzer   Analyzer
	Characters CharacterExtractor
	Scenes     SceneGenerator
	Cache      cache.Store
	IDs        model.IDGenerator
	Clock      func() time.Time
	JobTTL     time.Duration
}

type Orchestrator struct {
	deps             Deps
	debug            bool
	persistTimeout   time.Duration
	defaultBatchSize int
	maxScenes        int
}

type Option func(*Orchestrator)

// WithDebug adds the raw error text to error frames.
func WithDebug(debug bool) Option {
	return func(o *Orchestrator) { o.debug = debug }
}

func WithPersistTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.persistTimeout = d }
}

// WithLimits sets the batch size used when a submission has none and the largest
// accepted scene count. Zero maxScenes means unlimited.
func WithLimits(defaultBatchSize, maxScenes int) Option {
	return func(o *Orchestrator) {
		o.defaultBatchSize = defaultBatchSize
		o.maxScenes = maxScenes
	}
}

func New(deps Deps, opts ...Option) *Orchestrator {
	if deps.IDs == nil {
		deps.IDs = model.UUIDGenerator{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.JobTTL <= 0 {
		deps.JobTTL = model.DefaultJobTTL
	}
	o := &Orchestrator{
		deps:             deps,
		persistTimeout:   DefaultPersistTimeout,
		defaultBatchSize: model.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewJob validates opts and returns a fresh in-progress job. Nothing is persisted yet.
func (o *Orchestrator) NewJob(opts model.Options) (*model.Job, error) {
	opts.ApplyDefaults(o.defaultBatchSize)
	if err := opts.Validate(o.maxScenes); err != nil {
		return nil, err
	}
	return model.NewJob(o.deps.IDs.NewID(), opts, o.deps.Clock(), o.deps.JobTTL), nil
}

// Start creates a job from opts and runs it to a terminal state.
func (o *Orchestrator) Start(ctx context.Context, opts model.Options, sink stream.Sink) (*model.Job, error) {
	job, err := o.NewJob(opts)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, job, sink)
}

// Prepare loads a cached job and restores it from its resume config so it can be run
// again under the same id. ov is applied on top of the stored config.
func (o *Orchestrator) Prepare(ctx context.Context, jobID string, ov resume.Overrides) (*model.Job, error) {
	job, err := o.deps.Cache.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := o.deps.Clock()
	var cfg *resume.Config
	if len(job.Resume) > 0 {
		if cfg, err = resume.Parse(job.Resume); err != nil {
			return nil, fmt.Errorf("%w: %v", resume.ErrNotResumable, err)
		}
	}
	if err := resume.Validate(cfg, job, now); err != nil {
		return nil, err
	}
	cfg.Apply(ov)
	if err := cfg.Restore(job, now); err != nil {
		return nil, err
	}
	return job, nil
}

// Resume restarts a partial, failed or cancelled job from its last completed batch.
func (o *Orchestrator) Resume(ctx context.Context, jobID string, ov resume.Overrides, sink stream.Sink) (*model.Job, error) {
	job, err := o.Prepare(ctx, jobID, ov)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, job, sink)
}

// Run drives job to a terminal state. The returned job is the final snapshot; the
// error is the classified terminal error, or nil when the job completed. A job that
// already holds finished batches or analysis results skips the work they cover.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job, sink stream.Sink) (*model.Job, error) {
	if job == nil {
		return nil, fmt.Errorf("orchestrator: nil job")
	}
	if job.Status == model.StatusCompleted {
		return job, model.ErrJobCompleted
	}
	if sink == nil {
		sink = stream.Discard
	}
	r := newRunner(o, job, sink)
	return r.run(ctx)
}
