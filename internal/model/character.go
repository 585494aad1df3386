package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Descriptor is the structured form of a character.
type Descriptor struct {
	Gender           string `json:"gender,omitempty"`
	Age              string `json:"age,omitempty"`
	Build            string `json:"build,omitempty"`
	Face             string `json:"face,omitempty"`
	Hair             string `json:"hair,omitempty"`
	FacialHair       string `json:"facialHair,omitempty"`
	DistinctiveMarks string `json:"distinctiveMarks,omitempty"`
	Outfit           string `json:"outfit,omitempty"`
	FirstAppearance  string `json:"firstAppearance,omitempty"`
}

// Character is either structured (Descriptor set) or legacy free text. The shape is
// fixed when the name first enters a registry.
type Character struct {
	Name       string
	Descriptor *Descriptor
	Legacy     string
}

func (c Character) Structured() bool {
	return c.Descriptor != nil
}

// Description renders the character as one line of text.
func (c Character) Description() string {
	if c.Descriptor == nil {
		return c.Legacy
	}
	d := c.Descriptor
	parts := make([]string, 0, 8)
	for _, p := range []string{d.Gender, d.Age, d.Build, d.Face, d.Hair, d.FacialHair, d.DistinctiveMarks} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if d.Outfit != "" {
		parts = append(parts, "wearing "+d.Outfit)
	}
	return strings.Join(parts, ", ")
}

func (c Character) MarshalJSON() ([]byte, error) {
	if c.Descriptor != nil {
		return json.Marshal(c.Descriptor)
	}
	return json.Marshal(c.Legacy)
}

func (c *Character) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		c.Descriptor = nil
		return json.Unmarshal(data, &c.Legacy)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("character: %w", err)
	}
	c.Descriptor = &d
	c.Legacy = ""
	return nil
}

// Registry maps exact, case-sensitive names to characters.
type Registry map[string]Character

func (r *Registry) UnmarshalJSON(data []byte) error {
	var raw map[string]Character
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Registry, len(raw))
	for name, c := range raw {
		c.Name = name
		out[name] = c
	}
	*r = out
	return nil
}

// Merge adds characters whose names are not yet registered and returns the added ones in
// input order. Existing entries are never replaced, so a name keeps its first shape.
func (r *Registry) Merge(in []Character) []Character {
	if *r == nil {
		*r = make(Registry, len(in))
	}
	var added []Character
	for _, c := range in {
		if c.Name == "" {
			continue
		}
		if _, ok := (*r)[c.Name]; ok {
			continue
		}
		(*r)[c.Name] = c
		added = append(added, c)
	}
	return added
}

func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Names returns the registered names sorted for stable prompts and output.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for name, c := range r {
		if c.Descriptor != nil {
			d := *c.Descriptor
			c.Descriptor = &d
		}
		out[name] = c
	}
	return out
}
