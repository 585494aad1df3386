package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

// InstrumentedCache records operation counts and latency for a cache.Store.
type InstrumentedCache struct {
	next    cache.Store
	backend string
}

func NewInstrumentedCache(next cache.Store, backend string) *InstrumentedCache {
	return &InstrumentedCache{next: next, backend: backend}
}

func (c *InstrumentedCache) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, cache.ErrNotFound):
		status = "miss"
	case err != nil:
		status = "error"
	}
	RecordCacheOperation(c.backend, op, status, time.Since(start).Seconds())
}

func (c *InstrumentedCache) Put(ctx context.Context, job *model.Job) error {
	start := time.Now()
	err := c.next.Put(ctx, job)
	c.observe("put", start, err)
	return err
}

func (c *InstrumentedCache) Get(ctx context.Context, id string) (*model.Job, error) {
	start := time.Now()
	job, err := c.next.Get(ctx, id)
	c.observe("get", start, err)
	return job, err
}

func (c *InstrumentedCache) List(ctx context.Context) ([]model.JobSummary, error) {
	start := time.Now()
	list, err := c.next.List(ctx)
	c.observe("list", start, err)
	return list, err
}

func (c *InstrumentedCache) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := c.next.Delete(ctx, id)
	c.observe("delete", start, err)
	return err
}

func (c *InstrumentedCache) Clear(ctx context.Context) error {
	start := time.Now()
	err := c.next.Clear(ctx)
	c.observe("clear", start, err)
	return err
}

func (c *InstrumentedCache) PutPhase(ctx context.Context, jobID, key string, data []byte) error {
	start := time.Now()
	err := c.next.PutPhase(ctx, jobID, key, data)
	c.observe("put_phase", start, err)
	return err
}

func (c *InstrumentedCache) GetPhase(ctx context.Context, jobID, key string) ([]byte, error) {
	start := time.Now()
	data, err := c.next.GetPhase(ctx, jobID, key)
	c.observe("get_phase", start, err)
	return data, err
}

func (c *InstrumentedCache) DeletePhases(ctx context.Context, jobID string) error {
	start := time.Now()
	err := c.next.DeletePhases(ctx, jobID)
	c.observe("delete_phases", start, err)
	return err
}

func (c *InstrumentedCache) Evict(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := c.next.Evict(ctx)
	c.observe("evict", start, err)
	if err == nil {
		CacheEvictedTotal.Add(float64(n))
	}
	return n, err
}

var _ cache.Store = (*InstrumentedCache)(nil)
