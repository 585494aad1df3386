package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
)

const (
	DefaultModel       = "gemini-1.5-pro"
	defaultTemperature = 0.7
	defaultMaxTokens   = 8192
)

// ErrEmptyResponse is returned when the provider produced no candidate text.
var ErrEmptyResponse = errors.New("provider: empty response")

type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperror.WrapWithMessage(errors.New("GEMINI_API_KEY is not set"), apperror.CodeAuth,
			"Provider credentials are missing", apperror.ErrAuth.StatusCode)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{
		client: client,
		model:  model,
		logger: slog.Default().With("component", "gemini"),
	}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	name := req.Model
	if name == "" {
		name = g.model
	}
	m := g.client.GenerativeModel(name)
	m.ResponseMIMEType = "application/json"
	temp := req.Temperature
	if temp <= 0 {
		temp = defaultTemperature
	}
	m.SetTemperature(temp)
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	m.SetMaxOutputTokens(maxTokens)
	if req.System != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}

	parts := make([]genai.Part, 0, 2)
	if req.VideoURI != "" {
		parts = append(parts, genai.FileData{MIMEType: videoMIMEType(req.VideoURI), URI: req.VideoURI})
	}
	parts = append(parts, genai.Text(strings.ToValidUTF8(req.Prompt, "")))

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}
	return g.extract(ctx, req, resp)
}

func (g *Gemini) extract(ctx context.Context, req Request, resp *genai.GenerateContentResponse) (*Response, error) {
	out := &Response{}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return nil, ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	out.FinishReason = candidate.FinishReason.String()

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out.Text = b.String()

	g.logger.DebugContext(ctx, "gemini response",
		"phase", req.Phase,
		"finish_reason", out.FinishReason,
		"prompt_tokens", out.PromptTokens,
		"output_tokens", out.OutputTokens,
	)

	if strings.TrimSpace(out.Text) == "" {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

func videoMIMEType(uri string) string {
	switch strings.ToLower(path.Ext(uri)) {
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mpeg", ".mpg":
		return "video/mpeg"
	default:
		return "video/mp4"
	}
}
