package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/client"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/config"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

// runCLI executes the root command against m with an isolated home directory.
func runCLI(t *testing.T, m *client.MockClient, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvAPIToken, "")
	t.Setenv(config.EnvBaseURL, "")

	orig := newClient
	newClient = func(*config.Config) client.ClientInterface { return m }
	t.Cleanup(func() { newClient = orig })

	jsonOutput, quietMode = false, false
	genAsync, resumeAsync, genVoice = false, false, false
	resumeColor, resumeCharacters = false, false
	genOutput, resumeOutput = "", ""
	genBatchSize, genWorkflow, genMode = 0, string(model.WorkflowStandard), string(model.ModeVideo)
	jobsDeleteForce, jobsClearForce, jobsGetScenes = false, false, false
	eventsAfter = 0

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustFrame(t *testing.T, kind stream.Kind, payload any) stream.Event {
	t.Helper()
	ev, err := stream.NewEvent(kind, payload)
	require.NoError(t, err)
	return ev
}

func completedRun(t *testing.T, jobID string, scenes int) []stream.Event {
	return []stream.Event{
		mustFrame(t, stream.KindProgress, stream.Progress{JobID: jobID, Message: "Starting generation", TargetScenes: scenes}),
		mustFrame(t, stream.KindComplete, stream.Complete{JobID: jobID, Scenes: make([]model.Scene, scenes)}),
	}
}

func TestRootCommand(t *testing.T) {
	out, err := runCLI(t, new(client.MockClient), "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "scene")
	assert.Contains(t, out, "generate")
	assert.Contains(t, out, "jobs")
}

func TestGenerate_Streams(t *testing.T) {
	m := new(client.MockClient)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(o model.Options) bool {
		return o.Source == "dQw4w9WgXcQ" && o.SceneCount == 4 && o.BatchSize == config.DefaultBatchSize &&
			o.Workflow == model.WorkflowMerged && o.Voice.Enabled
	})).Return(completedRun(t, "job-1", 4), nil)

	out, err := runCLI(t, m, "", "generate", "dQw4w9WgXcQ", "--scenes", "4", "--workflow", "merged", "--voice")
	require.NoError(t, err)
	assert.Contains(t, out, "Job job-1 completed")
	assert.Contains(t, out, "4/4 scenes generated")
	m.AssertExpectations(t)
}

func TestGenerate_FailedJob(t *testing.T) {
	m := new(client.MockClient)
	m.On("Generate", mock.Anything, mock.Anything).Return([]stream.Event{
		mustFrame(t, stream.KindError, stream.Error{JobID: "job-2", Type: "GEMINI_QUOTA", Message: "quota exceeded", Retryable: true}),
	}, nil)

	out, err := runCLI(t, m, "", "generate", "dQw4w9WgXcQ", "--scenes", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-2 failed")
	assert.Contains(t, out, "sc resume job-2")
}

func TestGenerate_RejectedRequest(t *testing.T) {
	m := new(client.MockClient)
	m.On("Generate", mock.Anything, mock.Anything).
		Return(nil, &client.APIError{StatusCode: 400, Code: "INVALID_INPUT", Message: "sceneCount must be positive"})

	_, err := runCLI(t, m, "", "generate", "dQw4w9WgXcQ", "--scenes", "4")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_INPUT", apiErr.Code)
}

func TestGenerate_Async(t *testing.T) {
	m := new(client.MockClient)
	m.On("Submit", mock.Anything, mock.Anything).
		Return(&client.QueuedResponse{JobID: "job-3", Status: "queued"}, nil)

	out, err := runCLI(t, m, "", "generate", "dQw4w9WgXcQ", "--scenes", "4", "--async")
	require.NoError(t, err)
	assert.Contains(t, out, "Job job-3 queued")
	assert.Contains(t, out, "sc events job-3")
	m.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestGenerate_WritesResult(t *testing.T) {
	m := new(client.MockClient)
	m.On("Generate", mock.Anything, mock.Anything).Return(completedRun(t, "job-4", 1), nil)
	m.On("GetJob", mock.Anything, "job-4").
		Return(&model.Job{ID: "job-4", Status: model.StatusCompleted, Scenes: []model.Scene{{Sequence: 1, Prompt: "a lighthouse"}}}, nil)

	path := filepath.Join(t.TempDir(), "result.json")
	_, err := runCLI(t, m, "", "generate", "dQw4w9WgXcQ", "--scenes", "1", "--output", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a lighthouse")
}

func TestResume(t *testing.T) {
	m := new(client.MockClient)
	m.On("Resume", mock.Anything, "job-5", resume.Overrides{}).Return(completedRun(t, "job-5", 2), nil)

	out, err := runCLI(t, m, "", "resume", "job-5")
	require.NoError(t, err)
	assert.Contains(t, out, "Resuming job job-5")
	assert.Contains(t, out, "2/2 scenes generated")
}

func TestResume_Reextract(t *testing.T) {
	m := new(client.MockClient)
	m.On("SubmitResume", mock.Anything, "job-9", mock.MatchedBy(func(ov resume.Overrides) bool {
		return ov.ReextractColorProfile == nil && ov.ReextractCharacters != nil && *ov.ReextractCharacters
	})).Return(&client.QueuedResponse{JobID: "job-9", Status: model.StatusPartial}, nil)

	out, err := runCLI(t, m, "", "resume", "job-9", "--async", "--reextract-characters")
	require.NoError(t, err)
	assert.Contains(t, out, "Job job-9 queued")
	m.AssertExpectations(t)
}

func TestResume_Cancelled(t *testing.T) {
	m := new(client.MockClient)
	m.On("Resume", mock.Anything, "job-6", resume.Overrides{}).Return([]stream.Event{
		mustFrame(t, stream.KindCancelled, stream.Cancelled{JobID: "job-6", Resumable: true}),
	}, nil)

	_, err := runCLI(t, m, "", "resume", "job-6")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestEvents_StreamEndsEarly(t *testing.T) {
	m := new(client.MockClient)
	m.On("Events", mock.Anything, "job-7", int64(3)).Return([]stream.Event{
		mustFrame(t, stream.KindProgress, stream.Progress{JobID: "job-7", Message: "Generating"}),
	}, nil)

	_, err := runCLI(t, m, "", "events", "job-7", "--after", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sc jobs get job-7")
}

func TestCancel(t *testing.T) {
	m := new(client.MockClient)
	m.On("Cancel", mock.Anything, "job-8").Return(nil)

	out, err := runCLI(t, m, "", "cancel", "job-8")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancellation requested for job-8")
}

func TestJobsList(t *testing.T) {
	m := new(client.MockClient)
	m.On("ListJobs", mock.Anything).Return([]model.JobSummary{
		{ID: "job-a", Status: model.StatusCompleted, Workflow: model.WorkflowStandard, SceneCount: 5, TargetScenes: 5, CreatedAt: time.Now()},
		{ID: "job-b", Status: model.StatusPartial, Workflow: model.WorkflowMerged, SceneCount: 2, TargetScenes: 5, Error: "quota"},
	}, nil)

	out, err := runCLI(t, m, "", "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "job-a")
	assert.Contains(t, out, "2/5")
	assert.Contains(t, out, "quota")
}

func TestJobsList_Empty(t *testing.T) {
	m := new(client.MockClient)
	m.On("ListJobs", mock.Anything).Return([]model.JobSummary{}, nil)

	out, err := runCLI(t, m, "", "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs found")
}

func TestJobsGet(t *testing.T) {
	failed := 1
	m := new(client.MockClient)
	m.On("GetJob", mock.Anything, "job-c").Return(&model.Job{
		ID:      "job-c",
		Status:  model.StatusPartial,
		Options: model.Options{SceneCount: 10, Workflow: model.WorkflowStandard},
		Scenes:  []model.Scene{{Sequence: 1, Prompt: "opening shot"}},
		Error:   &model.ErrorRecord{Message: "provider timeout", FailedBatch: &failed},
	}, nil)

	out, err := runCLI(t, m, "", "jobs", "get", "job-c", "--scenes")
	require.NoError(t, err)
	assert.Contains(t, out, "1/10")
	assert.Contains(t, out, "provider timeout")
	assert.Contains(t, out, "sc resume job-c")
	assert.Contains(t, out, "opening shot")
}

func TestJobsDelete(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		args     []string
		deletes  bool
		wantErr  bool
		deleteFn error
	}{
		{name: "confirmed", stdin: "y\n", args: []string{"jobs", "delete", "job-d"}, deletes: true},
		{name: "declined", stdin: "n\n", args: []string{"jobs", "delete", "job-d"}},
		{name: "forced", args: []string{"jobs", "delete", "job-d", "--force"}, deletes: true},
		{name: "failure", args: []string{"jobs", "delete", "job-d", "--force"}, deletes: true, wantErr: true, deleteFn: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(client.MockClient)
			m.On("DeleteJob", mock.Anything, "job-d").Return(tt.deleteFn)

			_, err := runCLI(t, m, tt.stdin, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.deletes {
				m.AssertCalled(t, "DeleteJob", mock.Anything, "job-d")
			} else {
				m.AssertNotCalled(t, "DeleteJob", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestJobsClear(t *testing.T) {
	m := new(client.MockClient)
	m.On("ClearJobs", mock.Anything).Return(nil)

	out, err := runCLI(t, m, "", "jobs", "clear", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "All jobs deleted")
}

func TestJobsResult(t *testing.T) {
	m := new(client.MockClient)
	m.On("ResultURL", mock.Anything, "job-e").Return("https://objects.example/job-e.json?sig=1", nil)

	out, err := runCLI(t, m, "", "jobs", "result", "job-e")
	require.NoError(t, err)
	assert.Contains(t, out, "https://objects.example/job-e.json?sig=1")
}

func TestConfigSet(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
	}{
		{name: "base url", key: "base_url", value: "https://api.example"},
		{name: "batch size", key: "batch_size", value: "10"},
		{name: "batch size too large", key: "batch_size", value: "500", wantErr: true},
		{name: "batch size not a number", key: "batch_size", value: "ten", wantErr: true},
		{name: "timeout", key: "timeout", value: "30s"},
		{name: "bad timeout", key: "timeout", value: "soon", wantErr: true},
		{name: "unknown key", key: "parallel", value: "4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, new(client.MockClient), "", "config", "set", tt.key, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			saved, err := config.Load()
			require.NoError(t, err)
			switch tt.key {
			case "base_url":
				assert.Equal(t, tt.value, saved.BaseURL)
			case "batch_size":
				assert.Equal(t, 10, saved.BatchSize)
			case "timeout":
				assert.Equal(t, 30*time.Second, saved.RequestTimeout())
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"short", 3, "..."},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			if got := truncate(tt.s, tt.max); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "-"},
		{"now", time.Now(), "just now"},
		{"minutes", time.Now().Add(-5 * time.Minute), "5m ago"},
		{"hours", time.Now().Add(-3 * time.Hour), "3h ago"},
		{"days", time.Now().Add(-50 * time.Hour), "2d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTime(tt.t); got != tt.want {
				t.Errorf("formatTime() = %q, want %q", got, tt.want)
			}
		})
	}
}
