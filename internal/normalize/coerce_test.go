package normalize

import (
	"testing"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

func mustDecode(t *testing.T, raw string) any {
	t.Helper()
	v, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return v
}

func TestColorProfile_Defaults(t *testing.T) {
	p := ColorProfile(mustDecode(t, `{"colorProfile": {"dominantColors": ["ff0000", {"hex": "#00ff00", "name": "green", "temperature": "COOL"}, {"hex": "nope"}]}}`))

	if p.Confidence != DefaultConfidence {
		t.Errorf("Confidence = %v, want %v", p.Confidence, DefaultConfidence)
	}
	if p.Temperature.Category != model.TemperatureNeutral {
		t.Errorf("Category = %q, want neutral", p.Temperature.Category)
	}
	if p.Temperature.Kelvin != DefaultKelvin {
		t.Errorf("Kelvin = %d, want %d", p.Temperature.Kelvin, DefaultKelvin)
	}
	if p.Contrast != DefaultContrast {
		t.Errorf("Contrast = %q, want %q", p.Contrast, DefaultContrast)
	}
	if len(p.DominantColors) != 2 {
		t.Fatalf("len(DominantColors) = %d, want 2", len(p.DominantColors))
	}
	if p.DominantColors[0].Hex != "#FF0000" {
		t.Errorf("DominantColors[0].Hex = %q", p.DominantColors[0].Hex)
	}
	if p.DominantColors[1].Temperature != "cool" {
		t.Errorf("DominantColors[1].Temperature = %q, want cool", p.DominantColors[1].Temperature)
	}
	if p.Mood == nil {
		t.Error("Mood should default to an empty slice")
	}
}

func TestColorProfile_Values(t *testing.T) {
	p := ColorProfile(mustDecode(t, `{
		"colorTemperature": {"category": "warm", "kelvin": "3200"},
		"contrast": "high",
		"filmStock": "Kodak Vision3 500T",
		"mood": "melancholic, nostalgic",
		"confidence": 92
	}`))

	if p.Temperature.Category != model.TemperatureWarm || p.Temperature.Kelvin != 3200 {
		t.Errorf("Temperature = %+v", p.Temperature)
	}
	if p.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", p.Confidence)
	}
	if len(p.Mood) != 2 || p.Mood[1] != "nostalgic" {
		t.Errorf("Mood = %v", p.Mood)
	}
}

func TestColorProfile_NonObject(t *testing.T) {
	p := ColorProfile([]any{"x"})
	if p == nil || p.Confidence != DefaultConfidence {
		t.Errorf("ColorProfile(non-object) = %+v, want defaults", p)
	}
}

func TestCharacters(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantNames  []string
		structured map[string]bool
	}{
		{
			name:       "array of objects",
			raw:        `{"characters": [{"name": "Ava", "gender": "female", "hair": "red"}, {"name": "Bo", "description": "tall man"}, {"gender": "no name"}]}`,
			wantNames:  []string{"Ava", "Bo"},
			structured: map[string]bool{"Ava": true, "Bo": false},
		},
		{
			name:       "object keyed by name",
			raw:        `{"characters": {"Zed": "old sailor", "Ava": {"age": "30s"}}}`,
			wantNames:  []string{"Ava", "Zed"},
			structured: map[string]bool{"Ava": true, "Zed": false},
		},
		{
			name:       "strings with descriptions",
			raw:        `["Ava: woman in a raincoat", "Jean-Luc - captain", "Ava: duplicate"]`,
			wantNames:  []string{"Ava", "Jean-Luc"},
			structured: map[string]bool{"Ava": false, "Jean-Luc": false},
		},
		{
			name:      "missing",
			raw:       `{"background": "a city"}`,
			wantNames: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Characters(mustDecode(t, tt.raw))
			if len(got) != len(tt.wantNames) {
				t.Fatalf("Characters() = %+v, want names %v", got, tt.wantNames)
			}
			for i, c := range got {
				if c.Name != tt.wantNames[i] {
					t.Errorf("Characters()[%d].Name = %q, want %q", i, c.Name, tt.wantNames[i])
				}
				if want, ok := tt.structured[c.Name]; ok && c.Structured() != want {
					t.Errorf("%s Structured() = %v, want %v", c.Name, c.Structured(), want)
				}
			}
		})
	}
}

func TestScenes(t *testing.T) {
	raw := `{"scenes": [
		{"sequence": 40, "description": "Ava opens the door", "prompt": "cinematic shot of Ava", "mediaType": "VIDEO",
		 "composition": {"shotType": "close-up"}, "variations": {"Ava": "wet hair"}},
		{"description": "Street at dusk"},
		{"mediaType": "image"},
		"garbage",
		{"prompt": "extra"}
	]}`

	got := Scenes(mustDecode(t, raw), 2)
	if len(got) != 2 {
		t.Fatalf("len(Scenes) = %d, want 2", len(got))
	}
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", got[0].Sequence, got[1].Sequence)
	}
	if got[0].MediaType != model.MediaVideo {
		t.Errorf("MediaType = %q, want video", got[0].MediaType)
	}
	if got[0].Composition.ShotType != "close-up" {
		t.Errorf("ShotType = %q", got[0].Composition.ShotType)
	}
	if got[0].Variations["Ava"] != "wet hair" {
		t.Errorf("Variations = %v", got[0].Variations)
	}
	if got[1].Prompt != "Street at dusk" || got[1].MediaType != model.MediaImage {
		t.Errorf("second scene = %+v, want prompt from description and image default", got[1])
	}
	if got[1].Technical.AspectRatio != "16:9" {
		t.Errorf("AspectRatio = %q, want default 16:9", got[1].Technical.AspectRatio)
	}
}

func TestMergedAnalysis(t *testing.T) {
	a := MergedAnalysis(mustDecode(t, `{"colorProfile": {"contrast": "low"}, "characters": [{"name": "Ava", "age": "20"}], "background": "rainy harbor town"}`))
	if a.Profile.Contrast != "low" {
		t.Errorf("Contrast = %q, want low", a.Profile.Contrast)
	}
	if len(a.Characters) != 1 || a.Background != "rainy harbor town" {
		t.Errorf("MergedAnalysis() = %+v", a)
	}
}

func TestScript(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"script": "INT. KITCHEN - NIGHT"}`, "INT. KITCHEN - NIGHT"},
		{"EXT. BEACH - DAY\nWaves crash.", "EXT. BEACH - DAY\nWaves crash."},
		{`"quoted"`, "quoted"},
	}
	for _, tt := range tests {
		got, err := Script(tt.raw)
		if err != nil {
			t.Errorf("Script(%q) error = %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Script(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	if _, err := Script(`{"other": 1}`); err == nil {
		t.Error("Script() without script key should fail")
	}
}

func TestValidate(t *testing.T) {
	good := mustDecode(t, `{"scenes": [{"description": "d", "prompt": "p"}]}`)
	if warnings := Validate(KindScenes, good); len(warnings) != 0 {
		t.Errorf("Validate(good) = %v, want none", warnings)
	}

	bad := mustDecode(t, `{"scenes": [{"description": "d"}]}`)
	if warnings := Validate(KindScenes, bad); len(warnings) == 0 {
		t.Error("Validate(bad) returned no warnings")
	}

	if warnings := Validate(KindColorProfile, mustDecode(t, `{"confidence": 3}`)); len(warnings) == 0 {
		t.Error("Validate(color profile) should flag missing fields")
	}
}
