package normalize

import (
	"strings"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

const (
	DefaultConfidence = 0.8
	DefaultKelvin     = 5600
	DefaultContrast   = "medium"
)

// ColorProfile coerces a decoded document (optionally wrapped in a "colorProfile" key)
// into a profile, defaulting every missing field.
func ColorProfile(doc any) *model.ColorProfile {
	o, _ := asObject(unwrap(doc, "colorProfile", "color_profile", "profile"))
	if o == nil {
		o = object{}
	}
	temp := o.child("colorTemperature", "color_temperature", "temperature")
	category := temp.str("category", "type")
	if len(temp) == 0 {
		category = o.str("colorTemperature", "temperature")
	}

	p := &model.ColorProfile{
		DominantColors: dominantColors(o.list("dominantColors", "dominant_colors", "colors")),
		Temperature: model.ColorTemperature{
			Category: temperatureCategory(category),
			Kelvin:   temp.integer(DefaultKelvin, "kelvin", "estimatedKelvin", "k"),
		},
		Contrast:       orDefault(o.str("contrast"), DefaultContrast),
		Shadows:        o.str("shadows", "shadowCharacteristics"),
		Highlights:     o.str("highlights", "highlightCharacteristics"),
		FilmStock:      o.str("filmStock", "film_stock", "suggestedFilmStock"),
		Mood:           o.stringList("mood", "moods", "moodDescriptors"),
		Grain:          o.str("grain"),
		PostProcessing: o.str("postProcessing", "post_processing"),
		Confidence:     clamp01(o.float(DefaultConfidence, "confidence")),
	}
	if p.Temperature.Kelvin <= 0 {
		p.Temperature.Kelvin = DefaultKelvin
	}
	return p
}

func dominantColors(items []any) []model.DominantColor {
	out := make([]model.DominantColor, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if hex := normalizeHex(t); hex != "" {
				out = append(out, model.DominantColor{Hex: hex, Mood: []string{}, Temperature: string(model.TemperatureNeutral)})
			}
		case map[string]any:
			o := object(t)
			hex := normalizeHex(o.str("hex", "color", "value"))
			if hex == "" {
				continue
			}
			out = append(out, model.DominantColor{
				Hex:         hex,
				Name:        o.str("name", "semanticName"),
				Mood:        o.stringList("mood", "moodTags", "tags"),
				Temperature: string(temperatureCategory(o.str("temperature"))),
			})
		}
	}
	return out
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 7 && len(s) != 4 {
		return ""
	}
	for _, c := range s[1:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return ""
		}
	}
	return strings.ToUpper(s)
}

func temperatureCategory(s string) model.TemperatureCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warm", "hot":
		return model.TemperatureWarm
	case "cool", "cold":
		return model.TemperatureCool
	default:
		return model.TemperatureNeutral
	}
}

func clamp01(f float64) float64 {
	if f > 1 && f <= 100 {
		f /= 100
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Analysis is the combined output of the merged analysis call.
type Analysis struct {
	Profile    *model.ColorProfile
	Characters []model.Character
	Background string
}

func MergedAnalysis(doc any) Analysis {
	return Analysis{
		Profile:    ColorProfile(doc),
		Characters: Characters(doc),
		Background: Background(doc),
	}
}
