// Package generation owns the lifecycle of generation runs inside a process: starting
// them synchronously or through the job queue, tracking them for cancellation and
// running completion hooks.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/orchestrator"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

const (
	cancelKeyPrefix     = "scene:cancel:"
	cancelFlagTTL       = time.Hour
	DefaultPollInterval = time.Second
	DefaultHookTimeout  = 2 * time.Minute
)

var (
	ErrAlreadyRunning = errors.New("generation: job is already running")
	ErrNotRunning     = errors.New("generation: job is not running")
	ErrNoQueue        = errors.New("generation: background execution is not configured")
)

func CancelKey(jobID string) string {
	return cancelKeyPrefix + jobID
}

// Enqueuer hands a job to background workers.
type Enqueuer interface {
	EnqueueGeneration(ctx context.Context, jobID string, resumed bool) error
}

// Hook runs after a job reaches a terminal state. terminal is the last frame emitted.
type Hook func(ctx context.Context, job *model.Job, terminal stream.Event)

// SinkFactory returns extra sinks that receive every frame of a run.
type SinkFactory func(ctx context.Context, jobID string) stream.Sink

type Service struct {
	orch    *orchestrator.Orchestrator
	store   cache.Store
	redis   redis.UniversalClient
	queue   Enqueuer
	hooks   []Hook
	sinks   SinkFactory
	poll    time.Duration
	hookTTL time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
	hookWG  sync.WaitGroup
}

type Option func(*Service)

// WithRedis enables cancel flags for runs owned by other processes.
func WithRedis(client redis.UniversalClient) Option {
	return func(s *Service) { s.redis = client }
}

func WithQueue(q Enqueuer) Option {
	return func(s *Service) { s.queue = q }
}

func WithHooks(hooks ...Hook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, hooks...) }
}

func WithSinks(f SinkFactory) Option {
	return func(s *Service) { s.sinks = f }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.poll = d }
}

func NewService(orch *orchestrator.Orchestrator, store cache.Store, opts ...Option) *Service {
	s := &Service{
		orch:    orch,
		store:   store,
		poll:    DefaultPollInterval,
		hookTTL: DefaultHookTimeout,
		running: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs a new job in the calling goroutine, streaming frames to sink.
func (s *Service) Generate(ctx context.Context, opts model.Options, sink stream.Sink) (*model.Job, error) {
	job, err := s.orch.NewJob(opts)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, job, sink)
}

// Submit validates and stores a new job and queues it for a worker.
func (s *Service) Submit(ctx context.Context, opts model.Options) (*model.Job, error) {
	if s.queue == nil {
		return nil, ErrNoQueue
	}
	job, err := s.orch.NewJob(opts)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}
	if err := s.queue.EnqueueGeneration(ctx, job.ID, false); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	logger.FromContext(ctx).Info("generation queued", "job_id", job.ID)
	return job, nil
}

// Resume restarts a partial or failed job in the calling goroutine.
func (s *Service) Resume(ctx context.Context, jobID string, ov resume.Overrides, sink stream.Sink) (*model.Job, error) {
	job, err := s.orch.Prepare(ctx, jobID, ov)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, job, sink)
}

// SubmitResume checks that the job can be resumed and queues the resumption. Non-empty
// overrides are written into the stored resume config for the worker to pick up.
func (s *Service) SubmitResume(ctx context.Context, jobID string, ov resume.Overrides) (*model.Job, error) {
	if s.queue == nil {
		return nil, ErrNoQueue
	}
	job, err := s.orch.Prepare(ctx, jobID, ov)
	if err != nil {
		return nil, err
	}
	if s.isRunning(jobID) {
		return nil, ErrAlreadyRunning
	}
	if !ov.Empty() {
		if err := s.storeOverrides(ctx, jobID, ov); err != nil {
			return nil, err
		}
	}
	if err := s.queue.EnqueueGeneration(ctx, jobID, true); err != nil {
		return nil, fmt.Errorf("enqueue resume: %w", err)
	}
	return job, nil
}

// Execute is the worker entry point for a queued job. The run also stops when a
// cancel flag for the job appears in Redis.
func (s *Service) Execute(ctx context.Context, jobID string, resumed bool, sink stream.Sink) (*model.Job, error) {
	var (
		job *model.Job
		err error
	)
	if resumed {
		job, err = s.orch.Prepare(ctx, jobID, resume.Overrides{})
	} else {
		job, err = s.store.Get(ctx, jobID)
	}
	if err != nil {
		return nil, err
	}
	return s.run(ctx, job, sink)
}

func (s *Service) storeOverrides(ctx context.Context, jobID string, ov resume.Overrides) error {
	stored, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	cfg, err := resume.ForJob(stored)
	if err != nil {
		return err
	}
	cfg.Apply(ov)
	if stored.Resume, err = cfg.Encode(); err != nil {
		return fmt.Errorf("encode resume config: %w", err)
	}
	if err := s.store.Put(ctx, stored); err != nil {
		return fmt.Errorf("store resume config: %w", err)
	}
	return nil
}

func (s *Service) run(ctx context.Context, job *model.Job, sink stream.Sink) (*model.Job, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.track(job.ID, cancel) {
		return nil, ErrAlreadyRunning
	}
	defer s.untrack(job.ID)

	if s.redis != nil {
		go s.watchCancel(ctx, job.ID, cancel)
	}

	capture := &terminalCapture{}
	sinks := []stream.Sink{sink, capture}
	if s.sinks != nil {
		sinks = append(sinks, s.sinks(ctx, job.ID))
	}

	final, err := s.orch.Run(ctx, job, stream.Multi(sinks...))
	if s.redis != nil {
		_ = s.redis.Del(context.WithoutCancel(ctx), CancelKey(job.ID)).Err()
	}
	if terminal := capture.last(); final != nil && terminal.Kind != "" {
		s.runHooks(ctx, final, terminal)
	}
	return final, err
}

func (s *Service) runHooks(ctx context.Context, job *model.Job, terminal stream.Event) {
	if len(s.hooks) == 0 {
		return
	}
	snapshot, err := job.Clone()
	if err != nil {
		logger.FromContext(ctx).Error("failed to snapshot job for hooks", "job_id", job.ID, "error", err)
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hookTTL)
	s.hookWG.Add(1)
	go func() {
		defer s.hookWG.Done()
		defer cancel()
		for _, hook := range s.hooks {
			hook(hctx, snapshot, terminal)
		}
	}()
}

// Wait blocks until every pending completion hook has returned.
func (s *Service) Wait() {
	s.hookWG.Wait()
}

// Cancel stops a run owned by this process, or flags it for the worker that owns it.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
		logger.FromContext(ctx).Info("generation cancel requested", "job_id", jobID, "owner", "local")
		return nil
	}

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.StatusInProgress || s.redis == nil {
		return ErrNotRunning
	}
	if err := s.redis.Set(ctx, CancelKey(jobID), "1", cancelFlagTTL).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	logger.FromContext(ctx).Info("generation cancel requested", "job_id", jobID, "owner", "worker")
	return nil
}

func (s *Service) watchCancel(ctx context.Context, jobID string, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.redis.Exists(ctx, CancelKey(jobID)).Result()
			if err != nil {
				continue
			}
			if n > 0 {
				logger.FromContext(ctx).Info("cancel flag observed", "job_id", jobID)
				cancel()
				return
			}
		}
	}
}

func (s *Service) track(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[id]; ok {
		return false
	}
	s.running[id] = cancel
	return true
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Service) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

// Running lists the ids of runs owned by this process.
func (s *Service) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.JobSummary, error) {
	return s.store.List(ctx)
}

// Delete removes a job that is not running here.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.isRunning(id) {
		return ErrAlreadyRunning
	}
	if err := s.store.DeletePhases(ctx, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// terminalCapture remembers the last terminal frame of a run.
type terminalCapture struct {
	mu sync.Mutex
	ev stream.Event
}

func (c *terminalCapture) Emit(ctx context.Context, ev stream.Event) error {
	if ev.Kind.Terminal() {
		c.mu.Lock()
		c.ev = ev
		c.mu.Unlock()
	}
	return nil
}

func (c *terminalCapture) last() stream.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ev
}
