package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/job"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/generation"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

type executeCall struct {
	jobID  string
	resume bool
	sink   stream.Sink
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []executeCall
	job   *model.Job
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, jobID string, resume bool, sink stream.Sink) (*model.Job, error) {
	f.mu.Lock()
	f.calls = append(f.calls, executeCall{jobID: jobID, resume: resume, sink: sink})
	f.mu.Unlock()
	return f.job, f.err
}

type fakeBroker struct {
	jobs []*job.Job
	err  error
}

func (b *fakeBroker) Enqueue(ctx context.Context, j *job.Job) error {
	if b.err != nil {
		return b.err
	}
	b.jobs = append(b.jobs, j)
	return nil
}

func queueJob(t *testing.T, payload GeneratePayload) *job.Job {
	t.Helper()
	j, err := job.New(JobTypeGenerate, payload)
	if err != nil {
		t.Fatalf("job.New() error = %v", err)
	}
	return j
}

func TestGenerateHandler(t *testing.T) {
	done := model.NewJob("job-1", model.Options{}, time.Now(), time.Hour)
	exec := &fakeExecutor{job: done}
	rec := &stream.Recorder{}
	var sinkFor string
	deps := &Dependencies{
		Service: exec,
		Events: func(jobID string) stream.Sink {
			sinkFor = jobID
			return rec
		},
	}

	err := GenerateHandler(deps)(context.Background(), queueJob(t, GeneratePayload{JobID: "job-1", Resume: true}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("Execute calls = %d, want 1", len(exec.calls))
	}
	c := exec.calls[0]
	if c.jobID != "job-1" || !c.resume {
		t.Errorf("Execute(%q, %v), want (job-1, true)", c.jobID, c.resume)
	}
	if sinkFor != "job-1" || c.sink != stream.Sink(rec) {
		t.Errorf("event sink not wired: for %q", sinkFor)
	}
}

func TestGenerateHandlerRejectsBadPayload(t *testing.T) {
	exec := &fakeExecutor{}
	err := GenerateHandler(&Dependencies{Service: exec})(context.Background(), queueJob(t, GeneratePayload{}))
	if err == nil {
		t.Fatal("handler error = nil, want error")
	}
	if len(exec.calls) != 0 {
		t.Errorf("Execute calls = %d, want 0", len(exec.calls))
	}
}

func TestGenerateHandlerDefaultsToDiscard(t *testing.T) {
	exec := &fakeExecutor{job: model.NewJob("job-2", model.Options{}, time.Now(), time.Hour)}
	if err := GenerateHandler(&Dependencies{Service: exec})(context.Background(), queueJob(t, GeneratePayload{JobID: "job-2"})); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if exec.calls[0].sink == nil {
		t.Error("sink = nil, want stream.Discard")
	}
}

func TestPermanent(t *testing.T) {
	stored := model.NewJob("job-1", model.Options{}, time.Now(), time.Hour)
	tests := []struct {
		name  string
		final *model.Job
		err   error
		want  bool
	}{
		{"run finished with error", stored, errors.New("GEMINI_QUOTA"), true},
		{"job missing", nil, cache.ErrNotFound, true},
		{"not resumable", nil, resume.ErrNotResumable, true},
		{"completed", nil, model.ErrJobCompleted, true},
		{"already running", nil, generation.ErrAlreadyRunning, true},
		{"cache unreachable", nil, errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := permanent(tt.final, tt.err); got != tt.want {
				t.Errorf("permanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnqueueGeneration(t *testing.T) {
	b := &fakeBroker{}
	e := NewEnqueuer(b, nil)

	if err := e.EnqueueGeneration(context.Background(), "job-7", true); err != nil {
		t.Fatalf("EnqueueGeneration() error = %v", err)
	}
	if len(b.jobs) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(b.jobs))
	}
	var p GeneratePayload
	if err := b.jobs[0].UnmarshalPayload(&p); err != nil {
		t.Fatalf("UnmarshalPayload() error = %v", err)
	}
	if p.JobID != "job-7" || !p.Resume {
		t.Errorf("payload = %+v", p)
	}

	b.err = errors.New("broker down")
	if err := e.EnqueueGeneration(context.Background(), "job-8", false); err == nil {
		t.Error("EnqueueGeneration() error = nil, want broker error")
	}
}

func TestRunEviction(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	store := cache.NewMemoryStore().WithClock(func() time.Time { return clock })
	ctx := context.Background()

	old := model.NewJob("old", model.Options{}, now, time.Minute)
	fresh := model.NewJob("fresh", model.Options{}, now, time.Hour)
	for _, j := range []*model.Job{old, fresh} {
		if err := store.Put(ctx, j); err != nil {
			t.Fatal(err)
		}
	}
	clock = now.Add(10 * time.Minute)

	handler := EvictHandler(&Dependencies{Store: store})
	j, err := job.New(JobTypeEvict, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := handler(ctx, j); err != nil {
		t.Fatalf("EvictHandler() error = %v", err)
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Errorf("Get(fresh) error = %v", err)
	}
	n, err := RunEviction(ctx, store)
	if err != nil || n != 0 {
		t.Errorf("second RunEviction() = %d, %v; want 0", n, err)
	}
}
