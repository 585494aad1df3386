package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type storeFactory func(t *testing.T, clock Clock) Store

func testJob(id string, created time.Time, ttl time.Duration) *model.Job {
	j := model.NewJob(id, model.Options{
		Workflow:   model.WorkflowStandard,
		Mode:       model.ModeVideo,
		Source:     "dQw4w9WgXcQ",
		SceneCount: 10,
		BatchSize:  5,
	}, created, ttl)
	j.Characters.Merge([]model.Character{
		{Name: "Mara", Descriptor: &model.Descriptor{Gender: "female"}},
		{Name: "Tomas", Legacy: "old fisherman"},
	})
	_, _ = j.AppendScenes([]model.Scene{{Prompt: "a"}, {Prompt: "b"}}, created)
	return j
}

func runStoreContract(t *testing.T, factory storeFactory) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		clock := &testClock{t: t0}
		s := factory(t, clock.Now)

		job := testJob("job-1", t0, time.Hour)
		if err := s.Put(ctx, job); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		job.Scenes = nil

		got, err := s.Get(ctx, "job-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got.Scenes) != 2 || got.Scenes[1].Sequence != 2 {
			t.Errorf("Get().Scenes = %+v, want 2 renumbered scenes", got.Scenes)
		}
		if !got.Characters["Mara"].Structured() || got.Characters["Tomas"].Structured() {
			t.Errorf("character shapes not preserved: %+v", got.Characters)
		}
		if !got.ExpiresAt.Equal(t0.Add(time.Hour)) {
			t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, t0.Add(time.Hour))
		}
	})

	t.Run("missing", func(t *testing.T) {
		s := factory(t, (&testClock{t: t0}).Now)
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
		if _, err := s.GetPhase(ctx, "nope", "analysis"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetPhase(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ttl", func(t *testing.T) {
		clock := &testClock{t: t0}
		s := factory(t, clock.Now)

		if err := s.Put(ctx, testJob("job-ttl", t0, time.Hour)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := s.PutPhase(ctx, "job-ttl", PhaseKey(0), []byte(`{"scenes":[]}`)); err != nil {
			t.Fatalf("PutPhase() error = %v", err)
		}

		clock.Advance(time.Hour)
		if _, err := s.Get(ctx, "job-ttl"); err != nil {
			t.Errorf("Get() at expiry error = %v, want readable", err)
		}

		clock.Advance(time.Second)
		if _, err := s.Get(ctx, "job-ttl"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
		}
		if _, err := s.GetPhase(ctx, "job-ttl", PhaseKey(0)); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetPhase() after expiry error = %v, want ErrNotFound", err)
		}
		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 0 {
			t.Errorf("List() = %v, want expired job excluded", list)
		}

		n, err := s.Evict(ctx)
		if err != nil {
			t.Fatalf("Evict() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Evict() = %d, want 1", n)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		clock := &testClock{t: t0}
		s := factory(t, clock.Now)

		for i := 0; i < 3; i++ {
			job := testJob(fmt.Sprintf("job-%d", i), t0.Add(time.Duration(i)*time.Minute), time.Hour)
			if err := s.Put(ctx, job); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		}
		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 3 || list[0].ID != "job-2" || list[2].ID != "job-0" {
			t.Errorf("List() = %+v, want job-2, job-1, job-0", list)
		}
		if list[0].SceneCount != 2 || list[0].CharacterCount != 2 {
			t.Errorf("summary counts = %d scenes, %d characters", list[0].SceneCount, list[0].CharacterCount)
		}
	})

	t.Run("phases", func(t *testing.T) {
		s := factory(t, (&testClock{t: t0}).Now)
		if err := s.Put(ctx, testJob("job-ph", t0, time.Hour)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := s.PutPhase(ctx, "job-ph", PhaseKey(i), []byte(fmt.Sprintf(`{"batch":%d}`, i))); err != nil {
				t.Fatalf("PutPhase() error = %v", err)
			}
		}
		got, err := s.GetPhase(ctx, "job-ph", PhaseKey(1))
		if err != nil {
			t.Fatalf("GetPhase() error = %v", err)
		}
		if string(got) != `{"batch":1}` {
			t.Errorf("GetPhase() = %s", got)
		}

		if err := s.DeletePhases(ctx, "job-ph"); err != nil {
			t.Fatalf("DeletePhases() error = %v", err)
		}
		if _, err := s.GetPhase(ctx, "job-ph", PhaseKey(0)); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetPhase() after DeletePhases error = %v, want ErrNotFound", err)
		}
		if _, err := s.Get(ctx, "job-ph"); err != nil {
			t.Errorf("DeletePhases() removed the job: %v", err)
		}
	})

	t.Run("delete and clear", func(t *testing.T) {
		s := factory(t, (&testClock{t: t0}).Now)
		for _, id := range []string{"a", "b"} {
			if err := s.Put(ctx, testJob(id, t0, time.Hour)); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		}
		if err := s.Delete(ctx, "a"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
		}
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		list, _ := s.List(ctx)
		if len(list) != 0 {
			t.Errorf("List() after Clear = %v", list)
		}
	})

	t.Run("whole record replacement", func(t *testing.T) {
		s := factory(t, (&testClock{t: t0}).Now)
		job := testJob("job-r", t0, time.Hour)
		_ = s.Put(ctx, job)
		job.TruncateScenes(1)
		job.Status = model.StatusPartial
		if err := s.Put(ctx, job); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := s.Get(ctx, "job-r")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got.Scenes) != 1 || got.Status != model.StatusPartial {
			t.Errorf("Get() = %d scenes, status %s; want 1, partial", len(got.Scenes), got.Status)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock Clock) Store {
		return NewMemoryStore().WithClock(clock)
	})
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	n := 0
	runStoreContract(t, func(t *testing.T, clock Clock) Store {
		n++
		s := NewRedisStore(client).WithClock(clock).WithPrefix(fmt.Sprintf("scenetest:%d:%d:", time.Now().UnixNano(), n))
		t.Cleanup(func() { _ = s.Clear(context.Background()) })
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)

	runStoreContract(t, func(t *testing.T, clock Clock) Store {
		s := NewPostgresStore(pool).WithClock(clock)
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		if err := s.Clear(context.Background()); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		return s
	})
}

func TestPhaseKey(t *testing.T) {
	if got := PhaseKey(3); got != "scenes:3" {
		t.Errorf("PhaseKey(3) = %q, want scenes:3", got)
	}
}
