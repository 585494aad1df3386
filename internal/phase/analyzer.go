package phase

import (
	"context"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/normalize"
	"github.com/abdul-hamid-achik/scene.cheap/internal/provider"
)

// Analyzer runs the first phase of each workflow.
type Analyzer struct {
	executor
}

func NewAnalyzer(gen provider.Generator, cfg Config) *Analyzer {
	return &Analyzer{executor: newExecutor(gen, cfg)}
}

type MergedResult struct {
	Profile    *model.ColorProfile
	Characters []model.Character
	Background string
}

func (a *Analyzer) ColorProfile(ctx context.Context, opts model.Options) (*model.ColorProfile, error) {
	req := provider.Request{
		Model:       opts.Model,
		System:      colorSystem,
		Prompt:      colorPrompt(opts),
		VideoURI:    opts.VideoURI(),
		Temperature: 0.4,
	}
	var out *model.ColorProfile
	err := a.run(ctx, model.PhaseColorProfile, nil, req, func(text string) error {
		doc, err := decode(ctx, normalize.KindColorProfile, text)
		if err != nil {
			return err
		}
		out = normalize.ColorProfile(doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Analyzer) Merged(ctx context.Context, opts model.Options) (*MergedResult, error) {
	req := provider.Request{
		Model:       opts.Model,
		System:      colorSystem + " You also catalogue characters.",
		Prompt:      mergedPrompt(opts),
		VideoURI:    opts.VideoURI(),
		Temperature: 0.4,
	}
	var out *MergedResult
	err := a.run(ctx, model.PhaseAnalysis, nil, req, func(text string) error {
		doc, err := decode(ctx, normalize.KindMerged, text)
		if err != nil {
			return err
		}
		m := normalize.MergedAnalysis(doc)
		out = &MergedResult{Profile: m.Profile, Characters: m.Characters, Background: m.Background}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Analyzer) Script(ctx context.Context, opts model.Options) (string, error) {
	req := provider.Request{
		Model:       opts.Model,
		System:      scriptSystem,
		Prompt:      scriptPrompt(opts),
		VideoURI:    opts.VideoURI(),
		Temperature: 0.2,
	}
	var out string
	err := a.run(ctx, model.PhaseScript, nil, req, func(text string) error {
		s, err := normalize.Script(text)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
