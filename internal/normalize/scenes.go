package normalize

import (
	"strings"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

// Scenes reads up to limit scenes from a document. Sequence numbers from the provider
// are ignored; the orchestrator renumbers. Entries with neither prompt nor description
// are dropped. limit <= 0 means no limit.
func Scenes(doc any, limit int) []model.Scene {
	items, _ := unwrap(doc, "scenes", "items").([]any)
	out := make([]model.Scene, 0, len(items))
	for _, item := range items {
		o, ok := asObject(item)
		if !ok {
			continue
		}
		s, ok := scene(o)
		if !ok {
			continue
		}
		s.Sequence = len(out) + 1
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func scene(o object) (model.Scene, bool) {
	style := o.child("style")
	visual := o.child("visual", "visuals")
	lighting := o.child("lighting")
	comp := o.child("composition", "camera")
	tech := o.child("technical")

	s := model.Scene{
		MediaType:     mediaType(o.str("mediaType", "media_type", "type")),
		Description:   o.str("description", "summary"),
		PrimaryObject: o.str("primaryObject", "primary_object", "subject"),
		CharacterRef:  o.str("characterRef", "character", "characterName"),
		Style: model.SceneStyle{
			Genre:     style.str("genre"),
			Era:       style.str("era"),
			Reference: style.str("reference", "artStyle"),
		},
		Visual: model.SceneVisual{
			Setting:    visual.str("setting", "location"),
			Action:     visual.str("action"),
			Expression: visual.str("expression"),
			Palette:    visual.str("palette", "colors"),
		},
		Lighting: model.SceneLighting{
			Source:    lighting.str("source"),
			Quality:   lighting.str("quality"),
			Direction: lighting.str("direction"),
		},
		Composition: model.SceneComposition{
			ShotType: comp.str("shotType", "shot_type", "shot"),
			Angle:    comp.str("angle"),
			Framing:  comp.str("framing"),
		},
		Technical: model.SceneTechnical{
			AspectRatio: orDefault(tech.str("aspectRatio", "aspect_ratio"), "16:9"),
			Lens:        tech.str("lens"),
			Duration:    tech.str("duration"),
		},
		Prompt:         o.str("prompt", "imagePrompt", "renderPrompt"),
		NegativePrompt: o.str("negativePrompt", "negative_prompt"),
		Voiceover:      o.str("voiceover", "narration"),
		Variations:     o.stringMap("variations", "characterVariations"),
	}
	if s.Prompt == "" {
		s.Prompt = s.Description
	}
	if s.Description == "" {
		s.Description = s.Prompt
	}
	return s, s.Prompt != ""
}

func mediaType(s string) model.MediaType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "clip", "motion":
		return model.MediaVideo
	default:
		return model.MediaImage
	}
}

// Script reads extracted script text. Plain prose is accepted as the script itself.
func Script(raw string) (string, error) {
	doc, err := Decode(raw)
	if err != nil {
		text := strings.TrimSpace(raw)
		if text == "" {
			return "", err
		}
		return text, nil
	}
	switch t := doc.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case map[string]any:
		if s := object(t).str("script", "transcript", "text"); s != "" {
			return s, nil
		}
	}
	return "", &ParseError{Preview: Preview(raw)}
}
