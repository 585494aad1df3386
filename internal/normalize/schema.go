package normalize

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Kind string

const (
	KindColorProfile Kind = "color_profile"
	KindCharacters   Kind = "characters"
	KindScenes       Kind = "scenes"
	KindMerged       Kind = "merged"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	compileOnce sync.Once
	compiled    map[Kind]*jsonschema.Schema
	compileErr  error
)

func schemas() (map[Kind]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[Kind]*jsonschema.Schema)
		compiler := jsonschema.NewCompiler()
		for _, kind := range []Kind{KindColorProfile, KindCharacters, KindScenes, KindMerged} {
			name := string(kind) + ".json"
			data, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		for _, kind := range []Kind{KindColorProfile, KindCharacters, KindScenes, KindMerged} {
			s, err := compiler.Compile(string(kind) + ".json")
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", kind, err)
				return
			}
			compiled[kind] = s
		}
	})
	return compiled, compileErr
}

// Validate checks a decoded document against the expected shape for kind. Violations
// are returned as warnings for logging; coercion still runs on the document.
func Validate(kind Kind, doc any) []string {
	all, err := schemas()
	if err != nil {
		return []string{err.Error()}
	}
	s, ok := all[kind]
	if !ok {
		return nil
	}
	if err := s.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return flatten(verr)
		}
		return []string{err.Error()}
	}
	return nil
}

func flatten(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + verr.Message}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}
