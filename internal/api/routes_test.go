package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
	"github.com/abdul-hamid-achik/scene.cheap/internal/archive"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/generation"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/orchestrator"
	"github.com/abdul-hamid-achik/scene.cheap/internal/phase"
	"github.com/abdul-hamid-achik/scene.cheap/internal/provider"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/retry"
	"github.com/abdul-hamid-achik/scene.cheap/internal/storage"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) EnqueueGeneration(ctx context.Context, jobID string, resumed bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, jobID)
	return nil
}

type testServer struct {
	handler http.Handler
	service *generation.Service
	store   cache.Store
	objects *storage.MemoryStorage
	queue   *recordingQueue
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	gen := provider.NewFake()
	pcfg := phase.Config{
		Policy:      retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		CallTimeout: time.Second,
	}
	store := cache.NewMemoryStore()
	orch := orchestrator.New(orchestrator.Deps{
		Analyzer:   phase.NewAnalyzer(gen, pcfg),
		Characters: phase.NewCharacterExtractor(gen, pcfg),
		Scenes:     phase.NewSceneGenerator(gen, pcfg),
		Cache:      store,
		IDs:        model.NewSequenceGenerator("job"),
	})
	objects := storage.NewMemoryStorage()
	archiver := archive.New(objects, 0)
	queue := &recordingQueue{}
	svc := generation.NewService(orch, store, generation.WithQueue(queue), generation.WithHooks(archiver.Hook))

	cfg := &Config{Service: svc, Archive: archiver}
	if mutate != nil {
		mutate(cfg)
	}
	return &testServer{handler: NewRouter(cfg), service: svc, store: store, objects: objects, queue: queue}
}

func (s *testServer) do(t *testing.T, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func jobOptions() model.Options {
	return model.Options{
		Workflow:   model.WorkflowStandard,
		Source:     "dQw4w9WgXcQ",
		SceneCount: 6,
		BatchSize:  3,
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apperror.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestCreateJobStreams(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/jobs", jobOptions(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames, err := stream.DecodeAll(rec.Body)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, stream.KindComplete, last.Kind)

	var done stream.Complete
	require.NoError(t, last.Decode(&done))

	jobs, err := srv.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.StatusCompleted, jobs[0].Status)
	assert.Equal(t, 6, jobs[0].SceneCount)

	srv.service.Wait()
	_, ok := srv.objects.ContentType(archive.Key(jobs[0].ID))
	assert.True(t, ok, "completed result should be archived")
}

func TestCreateJobInvalidOptions(t *testing.T) {
	srv := newTestServer(t, nil)
	opts := jobOptions()
	opts.SceneCount = 0

	rec := srv.do(t, http.MethodPost, "/v1/jobs", opts, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, apperror.CodeInvalidInput, errorCode(t, rec))
}

func TestCreateJobMalformedBody(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeInvalidInput, errorCode(t, rec))
}

func TestCreateJobAsync(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/jobs?async=true", jobOptions(), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp QueuedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "/v1/jobs/"+resp.JobID+"/events", resp.EventsURL)
	assert.Equal(t, []string{resp.JobID}, srv.queue.ids)

	rec = srv.do(t, http.MethodGet, "/v1/jobs/"+resp.JobID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateJobAsyncWithoutQueue(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.Service = generation.NewService(nil, cache.NewMemoryStore())
	})

	rec := srv.do(t, http.MethodPost, "/v1/jobs?async=1", jobOptions(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/v1/jobs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.ErrNotFound.Code, errorCode(t, rec))
}

func TestListAndDeleteJobs(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/v1/jobs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobs":[]}`, rec.Body.String())

	srv.do(t, http.MethodPost, "/v1/jobs", jobOptions(), nil)
	srv.do(t, http.MethodPost, "/v1/jobs", jobOptions(), nil)
	srv.service.Wait()

	rec = srv.do(t, http.MethodGet, "/v1/jobs", nil, nil)
	var list ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Jobs, 2)

	id := list.Jobs[0].ID
	rec = srv.do(t, http.MethodDelete, "/v1/jobs/"+id, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := srv.objects.ContentType(archive.Key(id))
	assert.False(t, ok, "archived result should be removed with the job")

	rec = srv.do(t, http.MethodGet, "/v1/jobs/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/v1/jobs", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	jobs, err := srv.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestResumeCompletedJobConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodPost, "/v1/jobs", jobOptions(), nil)
	jobs, err := srv.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	rec := srv.do(t, http.MethodPost, "/v1/jobs/"+jobs[0].ID+"/resume", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResumeOverridesStored(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()
	now := time.Now()

	job := model.NewJob("job-partial", jobOptions(), now, time.Hour)
	_, err := job.CompleteBatch([]model.Scene{{Prompt: "a"}, {Prompt: "b"}, {Prompt: "c"}}, now)
	require.NoError(t, err)
	require.NoError(t, job.MarkFailed(model.ErrorRecord{Type: apperror.CodeQuota, Retryable: true}, now))
	job.Resume, err = resume.Build(job).Encode()
	require.NoError(t, err)
	require.NoError(t, srv.store.Put(ctx, job))

	rec := srv.do(t, http.MethodPost, "/v1/jobs/job-partial/resume", "not an object", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeInvalidInput, errorCode(t, rec))

	body := map[string]bool{"reextractColorProfile": true, "reextractCharacters": true}
	rec = srv.do(t, http.MethodPost, "/v1/jobs/job-partial/resume?async=true", body, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"job-partial"}, srv.queue.ids)

	stored, err := srv.store.Get(ctx, "job-partial")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartial, stored.Status)
	cfg, err := resume.ForJob(stored)
	require.NoError(t, err)
	assert.True(t, cfg.ReextractColorProfile)
	assert.True(t, cfg.Options.ReextractCharacters)
	assert.Equal(t, 1, cfg.CompletedBatches)
}

func TestCancelNotRunning(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodPost, "/v1/jobs", jobOptions(), nil)
	jobs, err := srv.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	rec := srv.do(t, http.MethodPost, "/v1/jobs/"+jobs[0].ID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodPost, "/v1/jobs/missing/cancel", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobResultRedirect(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodPost, "/v1/jobs", jobOptions(), nil)
	srv.service.Wait()
	jobs, err := srv.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	rec := srv.do(t, http.MethodGet, "/v1/jobs/"+jobs[0].ID+"/result", nil, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), archive.Key(jobs[0].ID))

	rec = srv.do(t, http.MethodGet, "/v1/jobs/missing/result", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobEventsRequireRedis(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/v1/jobs/any/events", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthBypassesAuth(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) { cfg.JWTSecret = "secret" })

	rec := srv.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/jobs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticatedRequest(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, func(cfg *Config) { cfg.JWTSecret = secret })

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	rec := srv.do(t, http.MethodGet, "/v1/jobs", nil, http.Header{"Authorization": {"Bearer " + signed}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) bool { return false }

func TestRateLimitedRoutes(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) { cfg.Limiter = denyAll{} })

	rec := srv.do(t, http.MethodGet, "/v1/jobs", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec = srv.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", cache.ErrNotFound, http.StatusNotFound},
		{"not archived", archive.ErrNotArchived, http.StatusNotFound},
		{"completed", model.ErrJobCompleted, http.StatusConflict},
		{"already running", generation.ErrAlreadyRunning, http.StatusConflict},
		{"not running", generation.ErrNotRunning, http.StatusConflict},
		{"no queue", generation.ErrNoQueue, http.StatusServiceUnavailable},
		{"app error", apperror.ErrRateLimited, http.StatusTooManyRequests},
		{"other", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, apperror.StatusCode(toAPIError(tt.err)))
		})
	}
}
