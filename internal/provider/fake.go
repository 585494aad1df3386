package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

// Fake answers every phase with synthetic, well-formed JSON. It backs PROVIDER=fake
// for local runs without credentials.
type Fake struct {
	// Latency is slept before each answer, honouring ctx.
	Latency time.Duration

	// Batches shapes the scenes answers in the order they are given. Answers past
	// the end use the requested count and no characters.
	Batches []FakeBatch

	mu      sync.Mutex
	calls   []Request
	answers int
}

// FakeBatch is one scripted scenes answer.
type FakeBatch struct {
	// Scenes is how many scenes to return, 0 for the requested count.
	Scenes int

	// Characters is returned as the batch's newCharacters, in any accepted shape.
	Characters any
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Generate(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var take int
	var batch FakeBatch
	if req.Phase == model.PhaseScenes {
		f.answers++
		take = f.answers
		if take <= len(f.Batches) {
			batch = f.Batches[take-1]
		}
	}
	f.mu.Unlock()

	if f.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Latency):
		}
	}

	var doc any
	switch req.Phase {
	case model.PhaseColorProfile:
		doc = fakeProfile()
	case model.PhaseAnalysis:
		doc = map[string]any{
			"colorProfile": fakeProfile(),
			"characters":   fakeCharacters(),
			"background":   "A rain-soaked harbor town at dusk",
		}
	case model.PhaseScript:
		doc = map[string]any{"script": "EXT. HARBOR - DUSK\nMara waits at the pier as the ferry arrives."}
	case model.PhaseCharacters:
		doc = map[string]any{
			"characters": fakeCharacters(),
			"background": "A rain-soaked harbor town at dusk",
		}
	case model.PhaseScenes:
		n := req.Count
		if batch.Scenes > 0 {
			n = batch.Scenes
		}
		scenes := map[string]any{"scenes": fakeScenes(n, take)}
		if batch.Characters != nil {
			scenes["newCharacters"] = batch.Characters
		}
		doc = scenes
	default:
		return nil, fmt.Errorf("fake provider: unknown phase %q", req.Phase)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:         string(data),
		PromptTokens: len(req.Prompt) / 4,
		OutputTokens: len(data) / 4,
		FinishReason: "STOP",
	}, nil
}

// Calls returns a copy of every request received so far.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}

func fakeProfile() map[string]any {
	return map[string]any{
		"dominantColors": []any{
			map[string]any{"hex": "#2E4A62", "name": "harbor blue", "mood": []string{"calm"}, "temperature": "cool"},
			map[string]any{"hex": "#D98E04", "name": "lamp amber", "mood": []string{"nostalgic"}, "temperature": "warm"},
		},
		"colorTemperature": map[string]any{"category": "cool", "kelvin": 6500},
		"contrast":         "medium",
		"shadows":          "lifted, blue-tinted",
		"highlights":       "soft roll-off",
		"filmStock":        "Kodak Vision3 500T",
		"mood":             []string{"melancholic", "quiet"},
		"grain":            "fine",
		"postProcessing":   "teal and orange split toning",
		"confidence":       0.85,
	}
}

func fakeCharacters() []any {
	return []any{
		map[string]any{"name": "Mara", "gender": "female", "age": "30s", "hair": "short black hair", "outfit": "yellow raincoat"},
		map[string]any{"name": "Tomas", "gender": "male", "age": "60s", "facialHair": "grey beard", "outfit": "fisherman sweater"},
	}
}

func fakeScenes(n, take int) []any {
	if n <= 0 {
		n = model.DefaultBatchSize
	}
	out := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, map[string]any{
			"sequence":     i,
			"mediaType":    "image",
			"description":  fmt.Sprintf("Beat %d of take %d on the pier", i, take),
			"characterRef": "Mara",
			"visual":       map[string]any{"setting": "wooden pier", "action": "waiting", "palette": "harbor blue, lamp amber"},
			"lighting":     map[string]any{"source": "street lamps", "quality": "soft"},
			"composition":  map[string]any{"shotType": "medium", "angle": "eye level"},
			"technical":    map[string]any{"aspectRatio": "16:9", "lens": "35mm"},
			"prompt":       fmt.Sprintf("Cinematic still, beat %d, woman in yellow raincoat on a wet pier at dusk", i),
		})
	}
	return out
}
