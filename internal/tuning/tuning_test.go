package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeYAML(t, "costs:\n  turn: 3\nsearch:\n  patience: 50\nlayers_per_chunk: 2\n")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Defaults()
	if got.Costs.Turn != 3 || got.Costs.Move != d.Costs.Move {
		t.Fatalf("costs=%+v", got.Costs)
	}
	if got.Search.Schedule.Patience != 50 || got.Search.Schedule.Initial != d.Search.Schedule.Initial {
		t.Fatalf("schedule=%+v", got.Search.Schedule)
	}
	if got.LayersPerChunk != 2 || got.InventorySlots != d.InventorySlots {
		t.Fatalf("tuning=%+v", got)
	}
	if cfg := got.SearchConfig(); cfg.Schedule.Patience != 50 || cfg.Progress != nil {
		t.Fatalf("search config=%+v", cfg)
	}
}

func TestLoad_RepoFile(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults:\n got %+v\nwant %+v", got, Defaults())
	}
}

func TestLoad_Errors(t *testing.T) {
	for _, body := range []string{
		"costs: [",
		"heuristic:\n  near: 5\n  far: 1\n",
		"search:\n  weight_step: -1\n",
		"search:\n  max_expansions: -2\n",
		"costs:\n  resupply_near_radius: -1\n",
	} {
		if _, err := Load(writeYAML(t, body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestNormalize_FillsZeros(t *testing.T) {
	var tu Tuning
	tu.Heuristic.Far = 10
	if err := tu.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tu.Costs.Move != 1 || tu.InventorySlots != 16 || tu.LiquidDepth != 8 || tu.Search.Schedule.Patience <= 0 {
		t.Fatalf("normalized=%+v", tu)
	}
}

func TestPlannerConfig(t *testing.T) {
	tu := Defaults()
	tu.InventorySlots = 3
	tu.LayersPerChunk = 2
	cfg := tu.PlannerConfig(func(string) int { return 16 })
	if cfg.InventorySlots != 3 || cfg.LayersPerChunk != 2 || cfg.Costs != tu.Costs {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.StackSizes == nil || cfg.StackSizes("torch") != 16 {
		t.Fatalf("stack sizes not wired")
	}
	if cfg.Search.Schedule != tu.Search.Schedule || cfg.Search.ProgressEvery != tu.Search.ProgressEvery {
		t.Fatalf("search=%+v", cfg.Search)
	}
}
