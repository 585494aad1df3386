package model

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type SceneStyle struct {
	Genre     string `json:"genre,omitempty"`
	Era       string `json:"era,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type SceneVisual struct {
	Setting    string `json:"setting,omitempty"`
	Action     string `json:"action,omitempty"`
	Expression string `json:"expression,omitempty"`
	Palette    string `json:"palette,omitempty"`
}

type SceneLighting struct {
	Source    string `json:"source,omitempty"`
	Quality   string `json:"quality,omitempty"`
	Direction string `json:"direction,omitempty"`
}

type SceneComposition struct {
	ShotType string `json:"shotType,omitempty"`
	Angle    string `json:"angle,omitempty"`
	Framing  string `json:"framing,omitempty"`
}

type SceneTechnical struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	Lens        string `json:"lens,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

// Scene is one generated unit. Sequence runs 1..n across every batch of a job.
type Scene struct {
	Sequence       int               `json:"sequence"`
	MediaType      MediaType         `json:"mediaType"`
	Description    string            `json:"description"`
	PrimaryObject  string            `json:"primaryObject,omitempty"`
	CharacterRef   string            `json:"characterRef,omitempty"`
	Style          SceneStyle        `json:"style"`
	Visual         SceneVisual       `json:"visual"`
	Lighting       SceneLighting     `json:"lighting"`
	Composition    SceneComposition  `json:"composition"`
	Technical      SceneTechnical    `json:"technical"`
	Prompt         string            `json:"prompt"`
	NegativePrompt string            `json:"negativePrompt,omitempty"`
	Voiceover      string            `json:"voiceover,omitempty"`
	Variations     map[string]string `json:"variations,omitempty"`
}

// Renumber rewrites sequence numbers to start, start+1, ... in slice order.
func Renumber(scenes []Scene, start int) []Scene {
	out := make([]Scene, len(scenes))
	for i, s := range scenes {
		s.Sequence = start + i
		out[i] = s
	}
	return out
}
