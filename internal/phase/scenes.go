package phase

import (
	"context"
	"errors"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/normalize"
	"github.com/abdul-hamid-achik/scene.cheap/internal/provider"
)

// TailSize is how many previous scenes are quoted to keep batches continuous.
const TailSize = 2

type SceneGenerator struct {
	executor
}

func NewSceneGenerator(gen provider.Generator, cfg Config) *SceneGenerator {
	return &SceneGenerator{executor: newExecutor(gen, cfg)}
}

// BatchInput is everything one scene batch depends on. Index is 0-based.
type BatchInput struct {
	Options       model.Options
	Index         int
	Total         int
	StartSequence int
	Count         int
	Registry      model.Registry
	Profile       *model.ColorProfile
	Background    string
	Script        string
	PreviousTail  []model.Scene
}

type BatchResult struct {
	Scenes        []model.Scene
	NewCharacters []model.Character
}

func (g *SceneGenerator) Batch(ctx context.Context, in BatchInput) (*BatchResult, error) {
	req := provider.Request{
		Model:           in.Options.Model,
		System:          sceneSystem,
		Prompt:          scenePrompt(in),
		Temperature:     0.8,
		MaxOutputTokens: int32(2048 * max(in.Count, 1)),
		Count:           in.Count,
	}
	if in.Options.Mode == model.ModeVideo {
		req.VideoURI = in.Options.VideoURI()
	}

	index := in.Index
	var out *BatchResult
	err := g.run(ctx, model.PhaseScenes, &index, req, func(text string) error {
		doc, err := decode(ctx, normalize.KindScenes, text)
		if err != nil {
			return err
		}
		scenes := normalize.Scenes(doc, in.Count)
		if len(scenes) == 0 {
			return &normalize.ParseError{Preview: normalize.Preview(text), Err: errors.New("response contains no scenes")}
		}
		out = &BatchResult{
			Scenes:        model.Renumber(scenes, in.StartSequence),
			NewCharacters: normalize.Characters(doc),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Tail returns the last TailSize scenes.
func Tail(scenes []model.Scene) []model.Scene {
	if len(scenes) <= TailSize {
		return scenes
	}
	return scenes[len(scenes)-TailSize:]
}
