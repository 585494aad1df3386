// Package phase runs the provider calls of each generation phase: request building,
// retry, per-call timeout and normalization into domain records. A phase either returns
// a fully normalized result or an error; it never commits partial output.
package phase

import (
	"context"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/normalize"
	"github.com/abdul-hamid-achik/scene.cheap/internal/provider"
	"github.com/abdul-hamid-achik/scene.cheap/internal/retry"
	"github.com/abdul-hamid-achik/scene.cheap/internal/tracing"
)

const DefaultCallTimeout = 120 * time.Second

type Config struct {
	Policy      retry.Policy
	CallTimeout time.Duration
	// Model is used when the job options do not name one.
	Model string
	IDs   model.IDGenerator
	Now   func() time.Time
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.IDs == nil {
		c.IDs = model.UUIDGenerator{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Call is the record of one logical provider call, covering every retry attempt.
type Call struct {
	ID        string
	Phase     string
	Batch     *int
	Request   provider.Request
	StartedAt time.Time

	Attempts int
	Duration time.Duration
	Response *provider.Response
	Err      error
	Finished bool
}

// Entry renders the call as a job log entry.
func (c *Call) Entry() model.LogEntry {
	e := model.LogEntry{
		ID:          c.ID,
		Phase:       c.Phase,
		BatchNumber: c.Batch,
		Status:      model.LogPending,
		Request:     c.Request.Summary(),
		StartedAt:   c.StartedAt,
		Attempts:    c.Attempts,
	}
	if !c.Finished {
		return e
	}
	e.DurationMS = c.Duration.Milliseconds()
	if c.Response != nil {
		e.Response = normalize.Preview(c.Response.Text)
		e.Tokens = &model.TokenCounts{Prompt: c.Response.PromptTokens, Output: c.Response.OutputTokens}
	}
	if c.Err != nil {
		e.Status = model.LogError
		e.Error = apperror.Classify(c.Err).Message
	} else {
		e.Status = model.LogCompleted
	}
	return e
}

// Observer is told about every call a phase makes. Methods are called from the
// goroutine running the phase.
type Observer interface {
	CallStarted(c *Call)
	CallFinished(c *Call)
	Retrying(c *Call, a retry.Attempt)
}

type nopObserver struct{}

func (nopObserver) CallStarted(*Call)             {}
func (nopObserver) CallFinished(*Call)            {}
func (nopObserver) Retrying(*Call, retry.Attempt) {}

type observerKey struct{}

// WithObserver attaches obs to ctx for the phase calls made under it.
func WithObserver(ctx context.Context, obs Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

func observerFrom(ctx context.Context) Observer {
	if obs, ok := ctx.Value(observerKey{}).(Observer); ok && obs != nil {
		return obs
	}
	return nopObserver{}
}

type executor struct {
	gen provider.Generator
	cfg Config
}

func newExecutor(gen provider.Generator, cfg Config) executor {
	return executor{gen: gen, cfg: cfg.withDefaults()}
}

// run performs one logical call. Each attempt gets its own timeout detached from ctx
// cancellation, so an in-flight request finishes or times out on its own; ctx is
// checked again when it returns.
func (e executor) run(ctx context.Context, name string, batch *int, req provider.Request, parse func(text string) error) error {
	req.Phase = name
	if req.Model == "" {
		req.Model = e.cfg.Model
	}

	obs := observerFrom(ctx)
	call := &Call{
		ID:        e.cfg.IDs.NewID(),
		Phase:     name,
		Batch:     batch,
		Request:   req,
		StartedAt: e.cfg.Now(),
	}
	obs.CallStarted(call)

	spanBatch := -1
	if batch != nil {
		spanBatch = *batch
	}
	ctx, span := tracing.StartPhaseSpan(ctx, name, spanBatch)
	log := logger.FromContext(ctx).With("phase", name)
	if batch != nil {
		log = log.With("batch", *batch)
	}

	policy := e.cfg.Policy
	next := policy.OnRetry
	policy.OnRetry = func(a retry.Attempt) {
		log.Warn("retrying provider call",
			"attempt", a.Number,
			"delay_ms", a.Delay.Milliseconds(),
			"error", a.Err,
		)
		obs.Retrying(call, a)
		if next != nil {
			next(a)
		}
	}

	resp, err := retry.Value(ctx, policy, func(ctx context.Context) (*provider.Response, error) {
		call.Attempts++
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CallTimeout)
		defer cancel()

		resp, err := e.gen.Generate(callCtx, req)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return resp, err
	})
	if err == nil {
		call.Response = resp
		err = parse(resp.Text)
	}

	call.Err = err
	call.Duration = e.cfg.Now().Sub(call.StartedAt)
	call.Finished = true
	obs.CallFinished(call)
	tracing.EndSpan(span, err)

	if err != nil {
		log.Error("provider call failed", "attempts", call.Attempts, "duration_ms", call.Duration.Milliseconds(), "error", err)
		return err
	}
	log.Debug("provider call completed", "attempts", call.Attempts, "duration_ms", call.Duration.Milliseconds())
	return nil
}

// decode parses text and logs shape warnings for kind.
func decode(ctx context.Context, kind normalize.Kind, text string) (any, error) {
	doc, err := normalize.Decode(text)
	if err != nil {
		return nil, err
	}
	if warnings := normalize.Validate(kind, doc); len(warnings) > 0 {
		logger.FromContext(ctx).Warn("provider response does not match expected shape",
			"kind", string(kind),
			"warnings", warnings,
		)
	}
	return doc, nil
}
