package phase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/normalize"
	"github.com/abdul-hamid-achik/scene.cheap/internal/provider"
	"github.com/abdul-hamid-achik/scene.cheap/internal/retry"
)

type recordingObserver struct {
	mu       sync.Mutex
	started  []model.LogEntry
	finished []model.LogEntry
	retries  []retry.Attempt
}

func (o *recordingObserver) CallStarted(c *Call) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, c.Entry())
}

func (o *recordingObserver) CallFinished(c *Call) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, c.Entry())
}

func (o *recordingObserver) Retrying(c *Call, a retry.Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, a)
}

func testConfig() Config {
	return Config{
		Policy: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		CallTimeout: time.Second,
		Model:       "test-model",
		IDs:         model.NewSequenceGenerator("call"),
	}
}

func videoOptions() model.Options {
	return model.Options{
		Workflow:   model.WorkflowStandard,
		Mode:       model.ModeVideo,
		Source:     "dQw4w9WgXcQ",
		SceneCount: 10,
		BatchSize:  5,
	}
}

func TestAnalyzer_ColorProfile(t *testing.T) {
	gen := &provider.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r provider.Request) bool {
		return r.Phase == model.PhaseColorProfile &&
			r.Model == "test-model" &&
			r.VideoURI == "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	})).Return(&provider.Response{
		Text:         "```json\n{\"contrast\": \"high\", \"confidence\": \"0.9\"}\n```",
		PromptTokens: 100,
		OutputTokens: 20,
	}, nil).Once()

	obs := &recordingObserver{}
	ctx := WithObserver(context.Background(), obs)

	p, err := NewAnalyzer(gen, testConfig()).ColorProfile(ctx, videoOptions())
	require.NoError(t, err)
	assert.Equal(t, "high", p.Contrast)
	assert.Equal(t, 0.9, p.Confidence)
	assert.Equal(t, model.TemperatureNeutral, p.Temperature.Category)

	require.Len(t, obs.started, 1)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, model.LogPending, obs.started[0].Status)
	assert.Equal(t, obs.started[0].ID, obs.finished[0].ID)
	assert.Equal(t, model.LogCompleted, obs.finished[0].Status)
	assert.Equal(t, &model.TokenCounts{Prompt: 100, Output: 20}, obs.finished[0].Tokens)
	assert.Nil(t, obs.finished[0].BatchNumber)
	gen.AssertExpectations(t)
}

func TestAnalyzer_RetriesTransientErrors(t *testing.T) {
	gen := &provider.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(nil, errors.New("503 model is overloaded")).Once()
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(&provider.Response{Text: `{"script": "INT. ROOM"}`}, nil).Once()

	obs := &recordingObserver{}
	ctx := WithObserver(context.Background(), obs)

	script, err := NewAnalyzer(gen, testConfig()).Script(ctx, videoOptions())
	require.NoError(t, err)
	assert.Equal(t, "INT. ROOM", script)
	assert.Len(t, obs.retries, 1)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, 2, obs.finished[0].Attempts)
	gen.AssertNumberOfCalls(t, "Generate", 2)
}

func TestAnalyzer_ParseErrorIsNotRetried(t *testing.T) {
	gen := &provider.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(&provider.Response{Text: "I am sorry, I cannot watch videos."}, nil)

	obs := &recordingObserver{}
	ctx := WithObserver(context.Background(), obs)

	_, err := NewAnalyzer(gen, testConfig()).Merged(ctx, videoOptions())
	require.Error(t, err)

	var perr *normalize.ParseError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, apperror.CodeParse, apperror.Classify(err).Code)
	gen.AssertNumberOfCalls(t, "Generate", 1)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, model.LogError, obs.finished[0].Status)
}

func TestAnalyzer_QuotaExhaustsRetries(t *testing.T) {
	gen := &provider.MockGenerator{}
	quota := errors.New("googleapi: Error 429: Quota exceeded for model")
	gen.On("Generate", mock.Anything, mock.Anything).Return(nil, quota)

	_, err := NewAnalyzer(gen, testConfig()).ColorProfile(context.Background(), videoOptions())
	require.Error(t, err)
	assert.Same(t, quota, err)
	assert.Equal(t, apperror.CodeQuota, apperror.Classify(err).Code)
	gen.AssertNumberOfCalls(t, "Generate", 3)
}

func TestExecutor_PerCallTimeout(t *testing.T) {
	gen := provider.GeneratorFunc(func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cfg := testConfig()
	cfg.CallTimeout = 5 * time.Millisecond
	cfg.Policy.MaxAttempts = 1

	_, err := NewAnalyzer(gen, cfg).ColorProfile(context.Background(), videoOptions())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, apperror.CodeTimeout, apperror.Classify(err).Code)
}

func TestExecutor_CancelledDuringCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := provider.GeneratorFunc(func(callCtx context.Context, req provider.Request) (*provider.Response, error) {
		cancel()
		if callCtx.Err() != nil {
			return nil, errors.New("in-flight call was cancelled with the job")
		}
		return &provider.Response{Text: `{"characters": []}`}, nil
	})

	_, err := NewCharacterExtractor(gen, testConfig()).Extract(ctx, videoOptions(), "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperror.CodeCancelled, apperror.Classify(err).Code)
}

func TestCharacterExtractor_FromScript(t *testing.T) {
	gen := &provider.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r provider.Request) bool {
		return r.VideoURI == "" && r.Phase == model.PhaseCharacters
	})).Return(&provider.Response{
		Text: `{"characters": [{"name": "Mara", "hair": "black"}, "Tomas: old fisherman"], "background": "harbor"}`,
	}, nil)

	res, err := NewCharacterExtractor(gen, testConfig()).Extract(context.Background(), videoOptions(), "EXT. PIER")
	require.NoError(t, err)
	require.Len(t, res.Characters, 2)
	assert.True(t, res.Characters[0].Structured())
	assert.False(t, res.Characters[1].Structured())
	assert.Equal(t, "harbor", res.Background)
}

func TestSceneGenerator_Batch(t *testing.T) {
	gen := &provider.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r provider.Request) bool {
		return r.Count == 2 && r.Phase == model.PhaseScenes
	})).Return(&provider.Response{
		Text: `{"scenes": [{"sequence": 1, "prompt": "a"}, {"sequence": 1, "prompt": "b"}, {"prompt": "c"}],
		        "newCharacters": [{"name": "Ines", "age": "20s"}]}`,
	}, nil)

	obs := &recordingObserver{}
	ctx := WithObserver(context.Background(), obs)

	res, err := NewSceneGenerator(gen, testConfig()).Batch(ctx, BatchInput{
		Options:       videoOptions(),
		Index:         3,
		Total:         5,
		StartSequence: 16,
		Count:         2,
		Registry:      model.Registry{"Mara": {Name: "Mara", Legacy: "woman"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Scenes, 2)
	assert.Equal(t, 16, res.Scenes[0].Sequence)
	assert.Equal(t, 17, res.Scenes[1].Sequence)
	require.Len(t, res.NewCharacters, 1)
	assert.Equal(t, "Ines", res.NewCharacters[0].Name)

	require.Len(t, obs.finished, 1)
	require.NotNil(t, obs.finished[0].BatchNumber)
	assert.Equal(t, 3, *obs.finished[0].BatchNumber)
}

func TestSceneGenerator_EmptyBatchIsParseError(t *testing.T) {
	gen := &provider.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return(&provider.Response{Text: `{"scenes": []}`}, nil)

	_, err := NewSceneGenerator(gen, testConfig()).Batch(context.Background(), BatchInput{Options: videoOptions(), Count: 5})
	assert.Equal(t, apperror.CodeParse, apperror.Classify(err).Code)
}

func TestScenePrompt(t *testing.T) {
	opts := videoOptions()
	opts.Voice = model.Voice{Enabled: true, Tone: "warm"}
	prompt := scenePrompt(BatchInput{
		Options:       opts,
		Index:         1,
		Total:         2,
		StartSequence: 6,
		Count:         5,
		Registry:      model.Registry{"Mara": {Name: "Mara", Descriptor: &model.Descriptor{Gender: "female", Outfit: "raincoat"}}},
		PreviousTail:  []model.Scene{{Sequence: 5, Description: "Ferry docks"}},
	})

	for _, want := range []string{"scenes 6 to 10 of 10", "batch 2 of 2", "- Mara: female, wearing raincoat", "5. Ferry docks", "in English with a warm tone"} {
		assert.Contains(t, prompt, want)
	}
}

func TestTail(t *testing.T) {
	scenes := model.Renumber(make([]model.Scene, 5), 1)
	tail := Tail(scenes)
	require.Len(t, tail, TailSize)
	assert.Equal(t, 4, tail[0].Sequence)
	assert.Len(t, Tail(scenes[:1]), 1)
}
