package phase

import (
	"context"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/normalize"
	"github.com/abdul-hamid-achik/scene.cheap/internal/provider"
)

type CharacterExtractor struct {
	executor
}

func NewCharacterExtractor(gen provider.Generator, cfg Config) *CharacterExtractor {
	return &CharacterExtractor{executor: newExecutor(gen, cfg)}
}

type CharacterResult struct {
	Characters []model.Character
	Background string
}

// Extract reads characters from script when it is non-empty, otherwise from the video.
func (x *CharacterExtractor) Extract(ctx context.Context, opts model.Options, script string) (*CharacterResult, error) {
	req := provider.Request{
		Model:       opts.Model,
		System:      characterSystem,
		Prompt:      characterPrompt(opts, script),
		Temperature: 0.3,
	}
	if script == "" && opts.Mode == model.ModeVideo {
		req.VideoURI = opts.VideoURI()
	}

	var out *CharacterResult
	err := x.run(ctx, model.PhaseCharacters, nil, req, func(text string) error {
		doc, err := decode(ctx, normalize.KindCharacters, text)
		if err != nil {
			return err
		}
		out = &CharacterResult{
			Characters: normalize.Characters(doc),
			Background: normalize.Background(doc),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
