package normalize

import (
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

var descriptorKeys = []string{
	"gender", "age", "build", "face", "hair", "facialHair", "facial_hair",
	"distinctiveMarks", "distinctive_marks", "outfit", "defaultOutfit", "firstAppearance",
}

// Characters reads a character list from a document. It accepts an array of objects,
// an array of strings, or an object keyed by name. An object document must carry the
// list under a "characters" key.
func Characters(doc any) []model.Character {
	if o, ok := asObject(doc); ok {
		v, found := o.lookup("characters", "characterRegistry", "newCharacters")
		if !found {
			return []model.Character{}
		}
		doc = v
	}
	switch t := doc.(type) {
	case []any:
		out := make([]model.Character, 0, len(t))
		for _, item := range t {
			if c, ok := character("", item); ok {
				out = append(out, c)
			}
		}
		return dedupe(out)
	case map[string]any:
		names := make([]string, 0, len(t))
		for name := range t {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]model.Character, 0, len(t))
		for _, name := range names {
			if c, ok := character(name, t[name]); ok {
				out = append(out, c)
			}
		}
		return out
	}
	return []model.Character{}
}

// Background reads the free-text background description.
func Background(doc any) string {
	if o, ok := asObject(doc); ok {
		return o.str("background", "backgroundDescription", "setting")
	}
	return ""
}

func character(name string, v any) (model.Character, bool) {
	switch t := v.(type) {
	case string:
		text := strings.TrimSpace(t)
		if name == "" {
			name, text = splitNameDescription(text)
		}
		if name == "" {
			return model.Character{}, false
		}
		return model.Character{Name: name, Legacy: text}, true
	case map[string]any:
		o := object(t)
		if n := o.str("name"); n != "" {
			name = n
		}
		if name == "" {
			return model.Character{}, false
		}
		if !hasAny(o, descriptorKeys) {
			return model.Character{Name: name, Legacy: o.str("description", "desc", "details")}, true
		}
		return model.Character{
			Name: name,
			Descriptor: &model.Descriptor{
				Gender:           o.str("gender"),
				Age:              o.str("age"),
				Build:            o.str("build"),
				Face:             o.str("face"),
				Hair:             o.str("hair"),
				FacialHair:       o.str("facialHair", "facial_hair"),
				DistinctiveMarks: o.str("distinctiveMarks", "distinctive_marks"),
				Outfit:           o.str("outfit", "defaultOutfit"),
				FirstAppearance:  o.str("firstAppearance", "first_appearance"),
			},
		}, true
	}
	return model.Character{}, false
}

func hasAny(o object, keys []string) bool {
	for _, k := range keys {
		if _, ok := o.lookup(k); ok {
			return true
		}
	}
	return false
}

func splitNameDescription(s string) (string, string) {
	if i := strings.Index(s, ":"); i > 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	if i := strings.Index(s, " - "); i > 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+3:])
	}
	return s, ""
}

func dedupe(in []model.Character) []model.Character {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, c := range in {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out
}
