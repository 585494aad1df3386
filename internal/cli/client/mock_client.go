package client

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

// MockClient is a mock implementation of ClientInterface for testing. Streaming
// methods take the frames to replay as their first return value.
type MockClient struct {
	mock.Mock
}

func replay(frames []stream.Event, fn OnEvent) (stream.Event, error) {
	var terminal stream.Event
	for _, ev := range frames {
		if ev.Kind.Terminal() {
			terminal = ev
		}
		if fn != nil {
			if err := fn(ev); err != nil {
				return terminal, err
			}
		}
	}
	return terminal, nil
}

func (m *MockClient) streamResult(args mock.Arguments, fn OnEvent) (stream.Event, error) {
	if err := args.Error(1); err != nil {
		return stream.Event{}, err
	}
	frames, _ := args.Get(0).([]stream.Event)
	return replay(frames, fn)
}

func (m *MockClient) Generate(ctx context.Context, opts model.Options, fn OnEvent) (stream.Event, error) {
	return m.streamResult(m.Called(ctx, opts), fn)
}

func (m *MockClient) Submit(ctx context.Context, opts model.Options) (*QueuedResponse, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*QueuedResponse), args.Error(1)
}

func (m *MockClient) Resume(ctx context.Context, jobID string, ov resume.Overrides, fn OnEvent) (stream.Event, error) {
	return m.streamResult(m.Called(ctx, jobID, ov), fn)
}

func (m *MockClient) SubmitResume(ctx context.Context, jobID string, ov resume.Overrides) (*QueuedResponse, error) {
	args := m.Called(ctx, jobID, ov)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*QueuedResponse), args.Error(1)
}

func (m *MockClient) Cancel(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockClient) Events(ctx context.Context, jobID string, after int64, fn OnEvent) (stream.Event, error) {
	return m.streamResult(m.Called(ctx, jobID, after), fn)
}

func (m *MockClient) ListJobs(ctx context.Context) ([]model.JobSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.JobSummary), args.Error(1)
}

func (m *MockClient) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockClient) DeleteJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockClient) ClearJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) ResultURL(ctx context.Context, jobID string) (string, error) {
	args := m.Called(ctx, jobID)
	return args.String(0), args.Error(1)
}

var _ ClientInterface = (*MockClient)(nil)
