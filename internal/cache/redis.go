package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

// RedisStore keeps each job as a JSON string, its phase entries in a hash, and a
// sorted-set index of job ids scored by creation time. Physical key TTLs are the
// logical expiry plus a grace period.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
	now    Clock
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "scene:",
		grace:  DefaultGrace,
		now:    time.Now,
	}
}

func (s *RedisStore) WithClock(now Clock) *RedisStore {
	s.now = now
	return s
}

// WithPrefix namespaces every key; tests use it to isolate runs.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	s.prefix = prefix
	return s
}

func (s *RedisStore) jobKey(id string) string   { return s.prefix + "job:" + id }
func (s *RedisStore) phaseKey(id string) string { return s.prefix + "phases:" + id }
func (s *RedisStore) indexKey() string          { return s.prefix + "jobs" }

func (s *RedisStore) ttl(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(s.now()) + s.grace
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (s *RedisStore) Put(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	ttl := s.ttl(job.ExpiresAt)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.jobKey(job.ID), data, ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID})
	pipe.Expire(ctx, s.phaseKey(job.ID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if job.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *RedisStore) List(ctx context.Context) ([]model.JobSummary, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []model.JobSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	now := s.now()
	out := make([]model.JobSummary, 0, len(values))
	var stale []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var job model.Job
		if err := json.Unmarshal([]byte(str), &job); err != nil || job.Expired(now) {
			continue
		}
		out = append(out, job.Summary())
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.jobKey(id), s.phaseKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.jobKey(id), s.phaseKey(id))
	}
	pipe.Del(ctx, s.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	return nil
}

// PutPhase stores data under key. The hash takes the job's TTL when the job exists.
func (s *RedisStore) PutPhase(ctx context.Context, jobID, key string, data []byte) error {
	ttl := s.ttl(s.now().Add(model.DefaultJobTTL))
	if pttl, err := s.client.PTTL(ctx, s.jobKey(jobID)).Result(); err == nil && pttl > 0 {
		ttl = pttl
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.phaseKey(jobID), key, data)
	pipe.PExpire(ctx, s.phaseKey(jobID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put phase %s/%s: %w", jobID, key, err)
	}
	return nil
}

// GetPhase treats entries of an expired job as absent.
func (s *RedisStore) GetPhase(ctx context.Context, jobID, key string) ([]byte, error) {
	pipe := s.client.Pipeline()
	phaseCmd := pipe.HGet(ctx, s.phaseKey(jobID), key)
	jobCmd := pipe.Get(ctx, s.jobKey(jobID))
	// Missing keys surface per command as redis.Nil.
	_, _ = pipe.Exec(ctx)

	data, err := phaseCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get phase %s/%s: %w", jobID, key, err)
	}
	if raw, err := jobCmd.Bytes(); err == nil {
		var head struct {
			ExpiresAt time.Time `json:"expiresAt"`
		}
		if json.Unmarshal(raw, &head) == nil && !head.ExpiresAt.IsZero() && s.now().After(head.ExpiresAt) {
			return nil, ErrNotFound
		}
	}
	return data, nil
}

func (s *RedisStore) DeletePhases(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, s.phaseKey(jobID)).Err(); err != nil {
		return fmt.Errorf("delete phases %s: %w", jobID, err)
	}
	return nil
}

// Evict removes jobs that are logically expired or whose key already lapsed.
func (s *RedisStore) Evict(ctx context.Context) (int, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("evict: %w", err)
	}
	n := 0
	for _, id := range ids {
		_, err := s.Get(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return n, err
		}
		if err := s.Delete(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
