package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const checkTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Latency int64  `json:"latency_ms"`
	Error   string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// CheckFunc probes one dependency. Returning an error wrapped with ErrDegraded
// reports the component as degraded instead of unhealthy.
type CheckFunc func(ctx context.Context) error

var ErrDegraded = errors.New("degraded")

type StorageHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type check struct {
	name string
	fn   CheckFunc
}

type Checker struct {
	checks []check
}

func NewChecker() *Checker {
	return &Checker{}
}

func (c *Checker) Add(name string, fn CheckFunc) *Checker {
	c.checks = append(c.checks, check{name: name, fn: fn})
	return c
}

func (c *Checker) WithDatabase(pool *pgxpool.Pool) *Checker {
	if pool == nil {
		return c
	}
	return c.Add("database", pool.Ping)
}

func (c *Checker) WithRedis(client redis.UniversalClient) *Checker {
	if client == nil {
		return c
	}
	return c.Add("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
}

func (c *Checker) WithStorage(s StorageHealthChecker) *Checker {
	if s == nil {
		return c
	}
	return c.Add("storage", s.HealthCheck)
}

// WithNATS reports a reconnecting connection as degraded; frames are dropped
// until it recovers but runs continue.
func (c *Checker) WithNATS(conn *nats.Conn) *Checker {
	if conn == nil {
		return c
	}
	return c.Add("nats", func(context.Context) error {
		if conn.IsConnected() {
			return nil
		}
		return errors.Join(ErrDegraded, errors.New("nats: "+conn.Status().String()))
	})
}

func (c *Checker) CheckAll(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		components = make([]ComponentHealth, 0, len(c.checks))
	)
	for _, chk := range c.checks {
		wg.Add(1)
		go func(chk check) {
			defer wg.Done()
			comp := run(ctx, chk)
			mu.Lock()
			components = append(components, comp)
			mu.Unlock()
		}(chk)
	}
	wg.Wait()

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	status := StatusHealthy
	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			status = StatusUnhealthy
			break
		}
		if comp.Status == StatusDegraded {
			status = StatusDegraded
		}
	}

	return HealthResponse{
		Status:     status,
		Components: components,
		Timestamp:  time.Now(),
	}
}

func run(ctx context.Context, chk check) ComponentHealth {
	start := time.Now()
	err := chk.fn(ctx)
	comp := ComponentHealth{
		Name:    chk.name,
		Status:  StatusHealthy,
		Latency: time.Since(start).Milliseconds(),
	}
	if err != nil {
		comp.Status = StatusUnhealthy
		if errors.Is(err, ErrDegraded) {
			comp.Status = StatusDegraded
		}
		comp.Error = err.Error()
	}
	return comp
}

func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}
}

// HealthHandler answers 503 only when a component is unhealthy.
func HealthHandler(checker *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := checker.CheckAll(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
