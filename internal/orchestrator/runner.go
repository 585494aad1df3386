package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/metrics"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/phase"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
	"github.com/abdul-hamid-achik/scene.cheap/internal/tracing"
)

// Phase cache keys outside the scene batches.
const (
	analysisKey   = "analysis"
	charactersKey = "characters"
)

// runner holds the state of one Run. It is used by a single goroutine.
type runner struct {
	o       *Orchestrator
	job     *model.Job
	sink    stream.Sink
	seq     int64
	log     *slog.Logger
	resumed bool

	// characters produced by a merged analysis, registered in the characters step
	pending []model.Character
}

func newRunner(o *Orchestrator, job *model.Job, sink stream.Sink) *runner {
	return &runner{
		o:       o,
		job:     job,
		sink:    sink,
		resumed: len(job.Resume) > 0,
	}
}

func (r *runner) now() time.Time {
	return r.o.deps.Clock()
}

func (r *runner) run(ctx context.Context) (*model.Job, error) {
	job := r.job
	opts := job.Options
	workflow := string(opts.Workflow)

	ctx = logger.WithJobID(ctx, job.ID)
	ctx, span := tracing.StartGenerationSpan(ctx, workflow, job.ID, r.resumed)
	ctx = phase.WithObserver(ctx, r)
	r.log = logger.FromContext(ctx)

	start := time.Now()
	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	r.log.Info("generation started",
		"workflow", workflow,
		"mode", string(opts.Mode),
		"scenes", opts.SceneCount,
		"batch_size", opts.BatchSize,
		"resumed", r.resumed,
	)
	r.persist(ctx)

	err := r.phases(ctx)
	var outcome string
	if err == nil {
		err = r.complete(ctx)
		outcome = "completed"
	} else {
		err = r.fail(ctx, err)
		outcome = string(job.Status)
		if job.Error != nil && job.Error.Type == apperror.CodeCancelled {
			outcome = "cancelled"
		}
	}

	metrics.RecordGeneration(workflow, outcome, time.Since(start).Seconds())
	tracing.EndSpan(span, err)
	r.log.Info("generation finished",
		"outcome", outcome,
		"scenes", len(job.Scenes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return job, err
}

// failure carries the batch a terminal error happened in.
type failure struct {
	err   error
	batch *int
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func (r *runner) phases(ctx context.Context) error {
	steps := []func(context.Context) error{r.analysis, r.characters, r.scenes}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// analysis is Phase0. Text mode has none: the source text is the script.
func (r *runner) analysis(ctx context.Context) error {
	job := r.job
	opts := job.Options

	if opts.Mode == model.ModeText {
		if job.Script == "" {
			job.Script = opts.Source
		}
		return nil
	}

	var done bool
	var name, message string
	switch opts.Workflow {
	case model.WorkflowScript:
		done = job.Script != ""
		name, message = model.PhaseScript, "Extracting script from video"
	case model.WorkflowMerged:
		done = job.ColorProfile != nil
		name, message = model.PhaseAnalysis, "Analyzing color profile and characters"
	default:
		done = job.ColorProfile != nil
		name, message = model.PhaseColorProfile, "Analyzing color profile"
	}
	if done && !opts.ReextractColorProfile {
		r.log.Debug("analysis already present, skipping", "phase", name)
		return nil
	}

	r.progress(ctx, name, message, nil)

	var entry analysisEntry
	if !r.cached(ctx, analysisKey, !opts.ReextractColorProfile, &entry) {
		var err error
		switch opts.Workflow {
		case model.WorkflowScript:
			entry.Script, err = r.o.deps.Analyzer.Script(ctx, opts)
		case model.WorkflowMerged:
			var res *phase.MergedResult
			if res, err = r.o.deps.Analyzer.Merged(ctx, opts); err == nil {
				entry.Profile = res.Profile
				entry.Background = res.Background
				entry.Characters = named(res.Characters)
			}
		default:
			entry.Profile, err = r.o.deps.Analyzer.ColorProfile(ctx, opts)
		}
		if err != nil {
			return err
		}
		r.store(ctx, analysisKey, entry)
	}

	if entry.Profile != nil {
		job.ColorProfile = entry.Profile
		r.emit(ctx, stream.KindColorProfile, entry.Profile)
	}
	if entry.Script != "" {
		job.Script = entry.Script
		r.emit(ctx, stream.KindScript, stream.Script{Script: entry.Script})
	}
	if entry.Background != "" {
		job.Background = entry.Background
	}
	r.pending = unnamed(entry.Characters)
	job.UpdatedAt = r.now()
	return nil
}

// characters is Phase1. The merged workflow already has its characters from Phase0.
func (r *runner) characters(ctx context.Context) error {
	job := r.job
	opts := job.Options

	if len(job.Characters) > 0 && !opts.ReextractCharacters && r.pending == nil {
		r.log.Debug("characters already present, skipping")
		return nil
	}

	if opts.Workflow == model.WorkflowMerged && opts.Mode == model.ModeVideo {
		if r.pending == nil {
			return nil
		}
		r.progress(ctx, model.PhaseCharacters, "Registering characters", nil)
		r.register(ctx, r.pending)
		r.pending = nil
		return nil
	}

	r.progress(ctx, model.PhaseCharacters, "Extracting characters", nil)

	var entry analysisEntry
	if !r.cached(ctx, charactersKey, !opts.ReextractCharacters, &entry) {
		res, err := r.o.deps.Characters.Extract(ctx, opts, job.Script)
		if err != nil {
			return err
		}
		entry.Characters = named(res.Characters)
		entry.Background = res.Background
		r.store(ctx, charactersKey, entry)
	}

	if entry.Background != "" && job.Background == "" {
		job.Background = entry.Background
	}
	r.register(ctx, unnamed(entry.Characters))
	return nil
}

// scenes is Phase2, one batch at a time from the first batch not recorded as finished.
func (r *runner) scenes(ctx context.Context) error {
	job := r.job
	opts := job.Options
	total := opts.TotalBatches()

	first := job.CompletedBatches()
	job.TruncateBatches(first)

	for i := first; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return &failure{err: err, batch: intPtr(i)}
		}
		if err := r.batch(ctx, i, total); err != nil {
			return &failure{err: err, batch: intPtr(i)}
		}
	}
	return nil
}

func (r *runner) batch(ctx context.Context, i, total int) error {
	job := r.job
	opts := job.Options
	count := opts.BatchCount(i)
	startSeq := job.NextSequence()

	r.progress(ctx, model.PhaseScenes,
		fmt.Sprintf("Generating scenes %d-%d (batch %d of %d)", startSeq, startSeq+count-1, i+1, total),
		intPtr(i))

	key := cache.PhaseKey(i)
	var entry batchEntry
	hit := r.cached(ctx, key, true, &entry)
	if !hit {
		res, err := r.o.deps.Scenes.Batch(ctx, phase.BatchInput{
			Options:       opts,
			Index:         i,
			Total:         total,
			StartSequence: startSeq,
			Count:         count,
			Registry:      job.Characters.Clone(),
			Profile:       job.ColorProfile,
			Background:    job.Background,
			Script:        job.Script,
			PreviousTail:  phase.Tail(job.Scenes),
		})
		if err != nil {
			metrics.RecordBatch("provider", "error", 0)
			return err
		}
		entry = batchEntry{Scenes: res.Scenes, NewCharacters: named(res.NewCharacters)}
	}

	added, err := job.CompleteBatch(entry.Scenes, r.now())
	if err != nil {
		return err
	}
	newChars := r.register(ctx, unnamed(entry.NewCharacters))

	r.emit(ctx, stream.KindBatchComplete, stream.BatchComplete{
		BatchNumber:  i,
		TotalBatches: total,
		Scenes:       added,
		Characters:   named(newChars),
		CacheHit:     hit,
	})
	r.persist(ctx)
	source := "cache"
	if !hit {
		source = "provider"
		r.store(ctx, key, entry)
	}
	metrics.RecordBatch(source, "success", len(added))
	r.log.Info("batch completed", "batch", i, "scenes", len(added), "cache_hit", hit)
	return nil
}

// register merges characters into the registry and emits a frame per added name.
func (r *runner) register(ctx context.Context, chars []model.Character) []model.Character {
	added := r.job.Characters.Merge(chars)
	for _, c := range added {
		r.emit(ctx, stream.KindCharacter, stream.Character{Name: c.Name, Character: c})
	}
	if added == nil {
		added = []model.Character{}
	}
	return added
}

func (r *runner) complete(ctx context.Context) error {
	job := r.job
	if err := job.MarkCompleted(r.now()); err != nil {
		return err
	}
	r.persist(ctx)
	r.emit(ctx, stream.KindComplete, stream.Complete{
		JobID:        job.ID,
		Scenes:       job.Scenes,
		Characters:   job.Characters,
		ColorProfile: job.ColorProfile,
		Background:   job.Background,
		Script:       job.Script,
	})

	pctx, cancel := r.detached(ctx)
	defer cancel()
	if err := r.o.deps.Cache.DeletePhases(pctx, job.ID); err != nil {
		r.log.Warn("failed to delete phase entries", "error", err)
	}
	return nil
}

// fail persists the terminal state for err and emits the error or cancelled frame.
// It returns the classified error.
func (r *runner) fail(ctx context.Context, err error) error {
	job := r.job
	now := r.now()

	var batch *int
	var f *failure
	if errors.As(err, &f) {
		batch = f.batch
		err = f.err
	}

	cancelled := errors.Is(ctx.Err(), context.Canceled)
	var classified *apperror.Error
	if cancelled {
		classified = apperror.Wrap(err, apperror.ErrCancelled)
	} else {
		classified = apperror.Classify(err)
	}

	rec := model.ErrorRecord{
		Type:        classified.Code,
		Message:     classified.Message,
		Retryable:   classified.Retryable,
		FailedBatch: batch,
		At:          now,
	}

	cfg := resume.Build(job)
	job.Resume = nil
	if rec.Retryable {
		data, encErr := cfg.Encode()
		if encErr != nil {
			r.log.Error("failed to encode resume config", "error", encErr)
		} else {
			job.Resume = data
		}
	}
	if markErr := job.MarkFailed(rec, now); markErr != nil {
		return markErr
	}
	r.persist(ctx)

	total := job.Options.TotalBatches()
	if cancelled {
		r.log.Info("generation cancelled", "completed_batches", cfg.CompletedBatches)
		r.emit(ctx, stream.KindCancelled, stream.Cancelled{
			JobID:            job.ID,
			CompletedBatches: cfg.CompletedBatches,
			TotalBatches:     total,
			ScenesCompleted:  len(job.Scenes),
			Resumable:        true,
		})
		return classified
	}

	r.log.Error("generation failed",
		"type", rec.Type,
		"retryable", rec.Retryable,
		"completed_batches", cfg.CompletedBatches,
		"error", err,
	)
	frame := stream.Error{
		JobID:            job.ID,
		Type:             rec.Type,
		Message:          rec.Message,
		Retryable:        rec.Retryable,
		FailedBatch:      batch,
		CompletedBatches: cfg.CompletedBatches,
		TotalBatches:     total,
		ScenesCompleted:  len(job.Scenes),
	}
	if r.o.debug {
		frame.Debug = err.Error()
	}
	r.emit(ctx, stream.KindError, frame)
	return classified
}

// detached returns a context that survives cancellation of ctx, bounded by the persist
// timeout, so terminal snapshots are still written.
func (r *runner) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.o.persistTimeout)
}

func (r *runner) persist(ctx context.Context) {
	pctx, cancel := r.detached(ctx)
	defer cancel()
	if err := r.o.deps.Cache.Put(pctx, r.job); err != nil {
		r.log.Error("failed to persist job snapshot", "status", string(r.job.Status), "error", err)
	}
}

// cached loads the phase entry key into v. It reports false on a miss, on any cache
// error, or when use is false.
func (r *runner) cached(ctx context.Context, key string, use bool, v any) bool {
	if !use {
		return false
	}
	data, err := r.o.deps.Cache.GetPhase(ctx, r.job.ID, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			r.log.Warn("phase cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		r.log.Warn("discarding unreadable phase entry", "key", key, "error", err)
		return false
	}
	r.log.Debug("phase cache hit", "key", key)
	return true
}

func (r *runner) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Warn("failed to encode phase entry", "key", key, "error", err)
		return
	}
	pctx, cancel := r.detached(ctx)
	defer cancel()
	if err := r.o.deps.Cache.PutPhase(pctx, r.job.ID, key, data); err != nil {
		r.log.Warn("failed to write phase entry", "key", key, "error", err)
	}
}

// analysisEntry is the cached result of Phase0 or Phase1.
type analysisEntry struct {
	Profile    *model.ColorProfile `json:"colorProfile,omitempty"`
	Characters []stream.Character  `json:"characters,omitempty"`
	Background string              `json:"background,omitempty"`
	Script     string              `json:"script,omitempty"`
}

type batchEntry struct {
	Scenes        []model.Scene      `json:"scenes"`
	NewCharacters []stream.Character `json:"newCharacters,omitempty"`
}

// named keeps character names through JSON, which Character itself does not encode.
func named(chars []model.Character) []stream.Character {
	if chars == nil {
		return nil
	}
	out := make([]stream.Character, len(chars))
	for i, c := range chars {
		out[i] = stream.Character{Name: c.Name, Character: c}
	}
	return out
}

func unnamed(chars []stream.Character) []model.Character {
	if chars == nil {
		return nil
	}
	out := make([]model.Character, len(chars))
	for i, c := range chars {
		c.Character.Name = c.Name
		out[i] = c.Character
	}
	return out
}

func intPtr(i int) *int {
	return &i
}
