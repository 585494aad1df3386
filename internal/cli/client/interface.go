package client

import (
	"context"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

// ClientInterface is the surface the CLI commands use, so they can run against a mock.
type ClientInterface interface {
	Generate(ctx context.Context, opts model.Options, fn OnEvent) (stream.Event, error)
	Submit(ctx context.Context, opts model.Options) (*QueuedResponse, error)
	Resume(ctx context.Context, jobID string, ov resume.Overrides, fn OnEvent) (stream.Event, error)
	SubmitResume(ctx context.Context, jobID string, ov resume.Overrides) (*QueuedResponse, error)
	Cancel(ctx context.Context, jobID string) error
	Events(ctx context.Context, jobID string, after int64, fn OnEvent) (stream.Event, error)

	ListJobs(ctx context.Context) ([]model.JobSummary, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	ClearJobs(ctx context.Context) error
	ResultURL(ctx context.Context, jobID string) (string, error)
}

var _ ClientInterface = (*Client)(nil)
