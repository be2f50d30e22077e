package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Resolve(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if c.Digest == "" {
		t.Fatalf("expected digest")
	}

	cases := []struct {
		name   string
		family string
		item   string
	}{
		{"minecraft:oak_log", "axis", "oak_log"},
		{"oak_stairs", "stairs", "oak_stairs"},
		{"wall_torch", "wall_attached", "torch"},
		{"minecraft:water", "liquid", "water_bucket"},
		{"stone", DefaultFamily, "stone"},
		{"air", FamilyAir, "air"},
	}
	for _, tc := range cases {
		e := c.Resolve(tc.name)
		if e.Family != tc.family || e.Item != tc.item {
			t.Fatalf("%s: got family=%q item=%q want %q %q", tc.name, e.Family, e.Item, tc.family, tc.item)
		}
	}
	if got := c.Resolve("minecraft:water").Params["depth"]; got != "8" {
		t.Fatalf("water depth param=%q", got)
	}
}

func TestParse_LongestPatternWins(t *testing.T) {
	c, err := Parse([]byte(`[
		{"match": "*_torch", "family": "bottom_supported"},
		{"match": "*_wall_torch", "family": "wall_attached"},
		{"match": "red*", "family": "facing"}
	]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := c.Resolve("soul_wall_torch").Family; got != "wall_attached" {
		t.Fatalf("soul_wall_torch family=%q", got)
	}
	if got := c.Resolve("soul_torch").Family; got != "bottom_supported" {
		t.Fatalf("soul_torch family=%q", got)
	}
	if got := c.Resolve("redstone_block").Family; got != "facing" {
		t.Fatalf("redstone_block family=%q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, raw := range []string{
		`{`,
		`[{"match": "", "family": "simple"}]`,
		`[{"match": "a", "family": "simple"}, {"match": "a", "family": "axis"}]`,
		`[{"match": "a", "family": "simple", "stack": -1}]`,
	} {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestLoad_FileAndStackSizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	if err := os.WriteFile(path, []byte(`[{"match": "*_bed", "family": "two_tall", "stack": 1}, {"match": "egg", "family": "simple", "stack": 16}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.StackSize("egg"); got != 16 {
		t.Fatalf("egg stack=%d", got)
	}
	if got := c.StackSize("red_bed"); got != 1 {
		t.Fatalf("red_bed stack=%d", got)
	}
	if got := c.StackSize("stone"); got != 0 {
		t.Fatalf("stone stack=%d want 0", got)
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
