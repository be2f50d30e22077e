package planfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/state"
)

func samplePlan() *planner.Plan {
	return &planner.Plan{
		RunID:          "run-1",
		LayersPerChunk: 2,
		Actions: []state.Action{
			{Kind: state.Forward, Target: geom.Pos{X: 1}},
			{Kind: state.PlaceForward, Target: geom.Pos{X: 2}, BlockID: 7},
			{Kind: state.Resupply},
		},
		Chunks:  []planner.ChunkStats{{Index: 0, MaxY: 1, Blocks: 1, Actions: 3, Cost: 9, EndHash: 42}},
		Cost:    9,
		Elapsed: time.Second,
	}
}

func TestWriteRead(t *testing.T) {
	cfg := planner.DefaultConfig()
	cfg.InventorySlots = 4
	v := FromPlan(samplePlan(), cfg)
	v.Header.Structure = "tower"
	v.Header.StructureDigest = "abc"

	path := filepath.Join(t.TempDir(), "nested", "tower.plan.zst")
	if err := Write(path, v); err != nil {
		t.Fatalf("Write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.RunID != "run-1" || h.Structure != "tower" || h.Actions != 3 || h.Cost != 9 {
		t.Fatalf("header=%+v", h)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.InventorySlots != 4 || got.Costs != cfg.Costs || got.LayersPerChunk != 2 {
		t.Fatalf("settings=%+v", got)
	}
	p, err := got.Plan()
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := samplePlan()
	if p.RunID != want.RunID || p.Cost != want.Cost || len(p.Actions) != len(want.Actions) {
		t.Fatalf("plan=%+v", p)
	}
	for i := range want.Actions {
		a, b := p.Actions[i], want.Actions[i]
		if a.Kind != b.Kind || a.Target != b.Target || a.BlockID != b.BlockID {
			t.Fatalf("action %d: %v want %v", i, a, b)
		}
	}
	if p.Chunks[0].EndHash != 42 {
		t.Fatalf("chunks=%+v", p.Chunks)
	}
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Read(filepath.Join(dir, "missing.plan.zst")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	junk := filepath.Join(dir, "junk.plan.zst")
	if err := os.WriteFile(junk, []byte("not zstd"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Read(junk); err == nil {
		t.Fatalf("expected error for junk file")
	}

	v := FromPlan(samplePlan(), planner.DefaultConfig())
	v.Actions[0].Kind = "jump"
	if _, err := v.Plan(); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
