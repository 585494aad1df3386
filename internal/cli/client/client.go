package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/version"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

// OnEvent is called for every frame read from an event stream. Returning an error
// stops reading.
type OnEvent func(ev stream.Event) error

type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	// streamClient has no timeout; streams end with the job or the context.
	streamClient *http.Client
}

func New(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: time.Minute,
		},
		streamClient: &http.Client{},
	}
}

func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "sc-cli/"+version.Short())
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	if respBody != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       errResp.Error.Code,
			Message:    errResp.Error.Message,
			Retryable:  errResp.Error.Retryable,
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

// doStream sends the request and hands every SSE frame to fn. It returns the last
// terminal frame seen, if any.
func (c *Client) doStream(req *http.Request, fn OnEvent) (stream.Event, error) {
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return stream.Event{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return stream.Event{}, parseError(resp)
	}

	var terminal stream.Event
	dec := stream.NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return terminal, nil
		}
		if err != nil {
			return terminal, err
		}
		if ev.Kind.Terminal() {
			terminal = ev
		}
		if fn != nil {
			if err := fn(ev); err != nil {
				return terminal, err
			}
		}
	}
}

// Generate starts a job and streams its frames until the terminal one.
func (c *Client) Generate(ctx context.Context, opts model.Options, fn OnEvent) (stream.Event, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return stream.Event{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/jobs", bytes.NewReader(data))
	if err != nil {
		return stream.Event{}, err
	}
	return c.doStream(req, fn)
}

// Submit queues a job for a worker.
func (c *Client) Submit(ctx context.Context, opts model.Options) (*QueuedResponse, error) {
	var resp QueuedResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/jobs?async=true", opts, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume restarts a job and streams its frames. Empty overrides send no body.
func (c *Client) Resume(ctx context.Context, jobID string, ov resume.Overrides, fn OnEvent) (stream.Event, error) {
	var body io.Reader
	if !ov.Empty() {
		data, err := json.Marshal(ov)
		if err != nil {
			return stream.Event{}, err
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/resume", body)
	if err != nil {
		return stream.Event{}, err
	}
	return c.doStream(req, fn)
}

func (c *Client) SubmitResume(ctx context.Context, jobID string, ov resume.Overrides) (*QueuedResponse, error) {
	var reqBody any
	if !ov.Empty() {
		reqBody = ov
	}
	var resp QueuedResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/resume?async=true", reqBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil)
}

// Events replays a job's frames after seq and follows them while the job runs.
func (c *Client) Events(ctx context.Context, jobID string, after int64, fn OnEvent) (stream.Event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/events", nil)
	if err != nil {
		return stream.Event{}, err
	}
	if after > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(after, 10))
	}
	return c.doStream(req, fn)
}

func (c *Client) ListJobs(ctx context.Context) ([]model.JobSummary, error) {
	var resp ListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/jobs/"+url.PathEscape(jobID), nil, nil)
}

func (c *Client) ClearJobs(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/jobs", nil, nil)
}

// ResultURL returns the presigned download link of an archived result without
// following it.
func (c *Client) ResultURL(ctx context.Context, jobID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/result", nil)
	if err != nil {
		return "", err
	}
	noFollow := *c.httpClient
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := noFollow.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", parseError(resp)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("result redirect without location (status %d)", resp.StatusCode)
	}
	return loc, nil
}
