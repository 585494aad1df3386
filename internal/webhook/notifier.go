// Package webhook delivers signed terminal-frame notifications to job callback URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/metrics"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/retry"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

const (
	DefaultTimeout = 10 * time.Second
	userAgent      = "scene.cheap-webhook/1.0"
)

var ErrCircuitOpen = errors.New("webhook: circuit open for endpoint")

// StatusError is a non-2xx callback response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: endpoint returned %d", e.StatusCode)
}

// Temporary reports whether the endpoint may accept a later attempt.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Notifier struct {
	client  *http.Client
	secret  string
	policy  retry.Policy
	breaker *CircuitBreaker
	now     func() time.Time
	newID   func() string
}

type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

func WithPolicy(p retry.Policy) Option {
	return func(n *Notifier) { n.policy = p }
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(n *Notifier) { n.breaker = cb }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func NewNotifier(secret string, opts ...Option) *Notifier {
	n := &Notifier{
		client: &http.Client{Timeout: DefaultTimeout},
		secret: secret,
		policy: retry.Policy{
			MaxAttempts:  4,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
		},
		breaker: NewCircuitBreaker(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.policy.Retryable = retryable
	return n
}

// Notify posts terminal to the job's callback URL. Jobs without one are skipped.
// Its signature matches generation.Hook.
func (n *Notifier) Notify(ctx context.Context, job *model.Job, terminal stream.Event) {
	if job == nil || job.Options.CallbackURL == "" {
		return
	}
	log := logger.FromContext(ctx).With("job_id", job.ID, "callback", job.Options.CallbackURL)
	if err := n.Deliver(ctx, job, terminal); err != nil {
		log.Warn("webhook delivery failed", "error", err)
		return
	}
	log.Info("webhook delivered", "kind", terminal.Kind)
}

// Deliver sends one delivery, retrying temporary failures under the notifier's policy.
func (n *Notifier) Deliver(ctx context.Context, job *model.Job, terminal stream.Event) error {
	target, err := url.Parse(job.Options.CallbackURL)
	if err != nil {
		return fmt.Errorf("parse callback url: %w", err)
	}
	endpoint := target.Host

	if !n.breaker.Allow(endpoint) {
		metrics.RecordWebhookDelivery("circuit_open", 0)
		return ErrCircuitOpen
	}

	d := Delivery{
		ID:        n.newID(),
		Type:      EventType(terminal.Kind),
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: n.now().UTC(),
		Frame:     terminal,
	}
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	start := time.Now()
	err = retry.Do(ctx, n.policy, func(ctx context.Context) error {
		return n.post(ctx, target.String(), d, body)
	})
	if err != nil {
		n.breaker.RecordFailure(endpoint)
		metrics.RecordWebhookDelivery("failed", time.Since(start).Seconds())
		return err
	}
	n.breaker.RecordSuccess(endpoint)
	metrics.RecordWebhookDelivery("delivered", time.Since(start).Seconds())
	return nil
}

func (n *Notifier) post(ctx context.Context, target string, d Delivery, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Scene-Event", d.Type)
	req.Header.Set("X-Scene-Delivery", d.ID)
	if n.secret != "" {
		req.Header.Set(SignatureHeader, SignatureValue(body, n.secret, n.now()))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
