package model

import (
	"encoding/json"
	"testing"
)

func TestRegistry_MergeIsAppendOnly(t *testing.T) {
	var reg Registry
	first := reg.Merge([]Character{
		{Name: "Ava", Descriptor: &Descriptor{Gender: "female", Hair: "red"}},
		{Name: "Bo", Legacy: "tall man in a grey coat"},
	})
	if len(first) != 2 {
		t.Fatalf("Merge() added %d, want 2", len(first))
	}

	second := reg.Merge([]Character{
		{Name: "Ava", Legacy: "re-described as a legacy string"},
		{Name: "Bo", Descriptor: &Descriptor{Gender: "male"}},
		{Name: "Cy", Legacy: "child with a kite"},
		{Name: ""},
	})
	if len(second) != 1 || second[0].Name != "Cy" {
		t.Fatalf("Merge() added = %+v, want only Cy", second)
	}

	if !reg["Ava"].Structured() || reg["Ava"].Descriptor.Hair != "red" {
		t.Errorf("Ava changed shape or content: %+v", reg["Ava"])
	}
	if reg["Bo"].Structured() || reg["Bo"].Legacy != "tall man in a grey coat" {
		t.Errorf("Bo changed shape or content: %+v", reg["Bo"])
	}
}

func TestRegistry_CaseSensitiveNames(t *testing.T) {
	reg := Registry{}
	reg.Merge([]Character{{Name: "ava", Legacy: "a"}, {Name: "Ava", Legacy: "b"}})
	if len(reg) != 2 {
		t.Errorf("len(reg) = %d, want 2", len(reg))
	}
}

func TestRegistry_JSONShapes(t *testing.T) {
	reg := Registry{}
	reg.Merge([]Character{
		{Name: "Ava", Descriptor: &Descriptor{Gender: "female", Outfit: "yellow raincoat"}},
		{Name: "Bo", Legacy: "tall man"},
	})

	data, err := json.Marshal(reg)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded Registry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	if !decoded["Ava"].Structured() {
		t.Error("Ava should decode as structured")
	}
	if decoded["Ava"].Name != "Ava" {
		t.Errorf("Name = %q, want Ava", decoded["Ava"].Name)
	}
	if decoded["Bo"].Structured() || decoded["Bo"].Legacy != "tall man" {
		t.Errorf("Bo = %+v, want legacy text", decoded["Bo"])
	}
}

func TestCharacter_Description(t *testing.T) {
	c := Character{Name: "Ava", Descriptor: &Descriptor{Gender: "female", Age: "30s", Outfit: "raincoat"}}
	if got, want := c.Description(), "female, 30s, wearing raincoat"; got != want {
		t.Errorf("Description() = %q, want %q", got, want)
	}
	legacy := Character{Name: "Bo", Legacy: "tall man"}
	if got := legacy.Description(); got != "tall man" {
		t.Errorf("Description() = %q, want legacy text", got)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := Registry{"b": {Name: "b"}, "a": {Name: "a"}}
	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
}
