package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisStreamPrefix = "scene:events:"
	DefaultStreamMaxLen      = 2000
	DefaultStreamTTL         = 24 * time.Hour
)

func StreamKey(jobID string) string {
	return DefaultRedisStreamPrefix + jobID
}

// RedisSink appends frames to a capped Redis stream so another process can replay them.
type RedisSink struct {
	client redis.UniversalClient
	key    string
	maxLen int64
	ttl    time.Duration
}

func NewRedisSink(client redis.UniversalClient, jobID string) *RedisSink {
	return &RedisSink{
		client: client,
		key:    StreamKey(jobID),
		maxLen: DefaultStreamMaxLen,
		ttl:    DefaultStreamTTL,
	}
}

func (s *RedisSink) WithTTL(ttl time.Duration) *RedisSink {
	s.ttl = ttl
	return s
}

func (s *RedisSink) Emit(ctx context.Context, ev Event) error {
	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"seq":  strconv.FormatInt(ev.Seq, 10),
			"kind": string(ev.Kind),
			"data": string(ev.Data),
		},
	})
	pipe.Expire(ctx, s.key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append frame to %s: %w", s.key, err)
	}
	return nil
}

// Reset drops frames from an earlier run for the same job.
func (s *RedisSink) Reset(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// RedisReader replays a job's stream and then tails it.
type RedisReader struct {
	client redis.UniversalClient
	block  time.Duration
}

func NewRedisReader(client redis.UniversalClient) *RedisReader {
	return &RedisReader{client: client, block: 5 * time.Second}
}

// Follow sends frames with Seq > after to sink until a terminal frame is seen or ctx
// ends. It returns nil after a terminal frame.
func (r *RedisReader) Follow(ctx context.Context, jobID string, after int64, sink Sink) error {
	key := StreamKey(jobID)
	lastID := "0"
	for {
		res, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, lastID},
			Count:   100,
			Block:   r.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read %s: %w", key, err)
		}

		for _, st := range res {
			for _, msg := range st.Messages {
				lastID = msg.ID
				ev, ok := fromMessage(msg)
				if !ok || ev.Seq <= after {
					continue
				}
				if err := sink.Emit(ctx, ev); err != nil {
					return err
				}
				if ev.Kind.Terminal() {
					return nil
				}
			}
		}
	}
}

// Replay returns the frames currently stored for the job without waiting.
func (r *RedisReader) Replay(ctx context.Context, jobID string) ([]Event, error) {
	msgs, err := r.client.XRange(ctx, StreamKey(jobID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", jobID, err)
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		if ev, ok := fromMessage(msg); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func fromMessage(msg redis.XMessage) (Event, bool) {
	kind, _ := msg.Values["kind"].(string)
	data, _ := msg.Values["data"].(string)
	if kind == "" {
		return Event{}, false
	}
	seq, _ := strconv.ParseInt(fmt.Sprint(msg.Values["seq"]), 10, 64)
	return Event{Seq: seq, Kind: Kind(kind), Data: []byte(data)}, true
}
