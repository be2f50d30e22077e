package rules

import (
	"errors"
	"testing"

	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/reach"
)

func solidCells(size geom.Pos, ps ...geom.Pos) []bool {
	out := make([]bool, size.X*size.Y*size.Z)
	for _, p := range ps {
		out[(p.Y*size.Z+p.Z)*size.X+p.X] = true
	}
	return out
}

func mustBuild(t *testing.T, reg *Registry, family string, s Spec) Rule {
	t.Helper()
	r, _, err := reg.Build(family, s)
	if err != nil {
		t.Fatalf("build %s: %v", family, err)
	}
	return r
}

func fieldFor(size geom.Pos, rem Remaining, solid ...geom.Pos) *reach.Field {
	f := reach.New(size, geom.Pose{Heading: geom.North}, nil, solidCells(size, solid...))
	return f.Regate(Gates(rem.Sorted(), rem))
}

func TestBlockedPathRejected(t *testing.T) {
	reg := NewRegistry()
	size := geom.Pos{X: 3, Y: 1, Z: 3}
	torch := mustBuild(t, reg, FamilyWallAttached, Spec{
		ID: 1, Pos: geom.Pos{X: 1, Z: 1}, Name: "wall_torch",
		Props: map[string]string{"facing": "east"},
	})
	rem := Remaining{torch.Pos().Key(): torch}
	// Wall to the west, and the only approach cell (east) is solid as well.
	f := fieldFor(size, rem, geom.Pos{X: 0, Z: 1}, geom.Pos{X: 2, Z: 1})

	mask, constrained := torch.ReachabilityDirections(f, rem)
	if !constrained || mask != dirs.None {
		t.Fatalf("directions=%v constrained=%v, want none", mask, constrained)
	}
	if torch.IsReachable(f) {
		t.Fatalf("torch should be unreachable, dist=%d", f.AtPos(torch.Pos()))
	}
	for _, p := range []geom.Pos{{X: 1}, {X: 1, Z: 2}} {
		for _, h := range []geom.Pos{geom.North, geom.South, geom.East, geom.West} {
			if IsPlaceable(torch, f, geom.Pose{Pos: p, Heading: h}, rem) {
				t.Fatalf("placeable from %v heading %v", p, h)
			}
		}
	}

	// Same torch with the east side open: reachable only from there.
	f = fieldFor(size, rem, geom.Pos{X: 0, Z: 1})
	if !torch.IsReachable(f) {
		t.Fatalf("torch should be reachable from the east")
	}
	if !IsPlaceable(torch, f, geom.Pose{Pos: geom.Pos{X: 2, Z: 1}, Heading: geom.West}, rem) {
		t.Fatalf("expected placement from the east side")
	}
	if IsPlaceable(torch, f, geom.Pose{Pos: geom.Pos{X: 1}, Heading: geom.South}, rem) {
		t.Fatalf("placement from the north must be rejected")
	}
}

func TestSupportCountsFutureBlocks(t *testing.T) {
	reg := NewRegistry()
	size := geom.Pos{X: 3, Y: 3, Z: 3}
	floor := mustBuild(t, reg, FamilySimple, Spec{ID: 1, Pos: geom.Pos{X: 1, Z: 1}})
	torch := mustBuild(t, reg, FamilyBottomSupported, Spec{ID: 2, Pos: geom.Pos{X: 1, Y: 1, Z: 1}})
	rem := Remaining{floor.Pos().Key(): floor, torch.Pos().Key(): torch}
	f := fieldFor(size, rem)

	if torch.IsConditionSatisfied(f, rem) {
		t.Fatalf("support not placed yet")
	}
	if n, ok := ReachabilityCount(torch, f, rem); !ok || n != 5 {
		t.Fatalf("count=%d ok=%v, want 5 while the floor is pending", n, ok)
	}
	without := rem.Without(floor)
	if n, _ := ReachabilityCount(torch, f, without); n != 0 {
		t.Fatalf("count=%d, want 0 once the support can never appear", n)
	}

	f = f.Block(floor.Pos(), Gates([]Rule{torch}, without))
	if !torch.IsConditionSatisfied(f, without) {
		t.Fatalf("support placed")
	}
	if !IsPlaceable(torch, f, geom.Pose{Pos: geom.Pos{X: 1, Y: 2, Z: 1}, Heading: geom.North}, without) {
		t.Fatalf("torch placeable from above")
	}
	if IsPlaceable(torch, f, geom.Pose{Pos: geom.Pos{X: 1, Y: 1, Z: 1}, Heading: geom.North}, without) {
		t.Fatalf("agent cannot place into its own cell")
	}
}

func TestStairsHeading(t *testing.T) {
	reg := NewRegistry()
	size := geom.Pos{X: 3, Y: 3, Z: 3}
	st := mustBuild(t, reg, FamilyStairs, Spec{
		ID: 1, Pos: geom.Pos{X: 1, Y: 1, Z: 1}, Name: "oak_stairs",
		Props: map[string]string{"facing": "north", "half": "bottom"},
	})
	rem := Remaining{st.Pos().Key(): st}
	f := fieldFor(size, rem)

	mask, constrained := st.ReachabilityDirections(f, rem)
	if !constrained || mask != dirs.South|dirs.Up {
		t.Fatalf("directions=%v want SU", mask)
	}
	above := geom.Pos{X: 1, Y: 2, Z: 1}
	if !IsPlaceable(st, f, geom.Pose{Pos: above, Heading: geom.North}, rem) {
		t.Fatalf("from above heading north should work")
	}
	if IsPlaceable(st, f, geom.Pose{Pos: above, Heading: geom.East}, rem) {
		t.Fatalf("from above heading east must not")
	}
	behind := geom.Pos{X: 1, Y: 1, Z: 2}
	if !IsPlaceable(st, f, geom.Pose{Pos: behind, Heading: geom.North}, rem) {
		t.Fatalf("from the south should work")
	}
	if IsPlaceable(st, f, geom.Pose{Pos: geom.Pos{X: 1, Y: 1}, Heading: geom.South}, rem) {
		t.Fatalf("from the north must not")
	}
}

func TestAxisDeadlockThreshold(t *testing.T) {
	reg := NewRegistry()
	pillar := mustBuild(t, reg, FamilyAxis, Spec{ID: 1, Props: map[string]string{"axis": "x"}})
	if !pillar.IsDeadlockable(2) || pillar.IsDeadlockable(3) {
		t.Fatalf("axis rules are deadlockable at two directions")
	}
	plain := mustBuild(t, reg, FamilyFacing, Spec{ID: 2, Props: map[string]string{"facing": "up"}})
	if plain.IsDeadlockable(2) || !plain.IsDeadlockable(1) {
		t.Fatalf("default threshold is one")
	}
}

func TestDoorExtras(t *testing.T) {
	reg := NewRegistry()
	door := mustBuild(t, reg, FamilyDoor, Spec{
		ID: 10, Pos: geom.Pos{X: 1, Y: 1, Z: 1}, Name: "oak_door",
		Props: map[string]string{"facing": "south", "half": "lower"},
	})
	if len(door.Extras()) != 1 {
		t.Fatalf("door extras=%d", len(door.Extras()))
	}
	upper := door.Extras()[0]
	if upper.Pos() != (geom.Pos{X: 1, Y: 2, Z: 1}) || upper.Owner() != door || upper.ID() != 11 {
		t.Fatalf("unexpected upper half %v owner=%v id=%d", upper.Pos(), upper.Owner(), upper.ID())
	}
	r, _, err := reg.Build(FamilyDoor, Spec{ID: 12, Props: map[string]string{"half": "upper"}})
	if err != nil || r != nil {
		t.Fatalf("upper half should be skipped, got %v %v", r, err)
	}

	size := geom.Pos{X: 3, Y: 4, Z: 3}
	rem := Remaining{door.Pos().Key(): door, upper.Pos().Key(): upper}
	f := fieldFor(size, rem, geom.Pos{X: 1, Z: 1})
	if IsPlaceable(upper, f, geom.Pose{Pos: geom.Pos{X: 1, Y: 2, Z: 0}}, rem) {
		t.Fatalf("extras are never placed directly")
	}
	if !IsPlaceable(door, f, geom.Pose{Pos: geom.Pos{X: 1, Y: 1, Z: 0}, Heading: geom.South}, rem) {
		t.Fatalf("door placeable from the north")
	}
	blocked := fieldFor(size, rem, geom.Pos{X: 1, Z: 1}, geom.Pos{X: 1, Y: 2, Z: 1})
	if n, _ := ReachabilityCount(door, blocked, rem); n != 0 {
		t.Fatalf("door with a blocked upper cell has %d directions", n)
	}
}

func TestBuildErrors(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Build(FamilyStairs, Spec{Name: "oak_stairs"})
	if !errors.Is(err, ErrMissingProperty) {
		t.Fatalf("want ErrMissingProperty, got %v", err)
	}
	_, _, err = reg.Build(FamilyStairs, Spec{Props: map[string]string{"facing": "up"}})
	if !errors.Is(err, ErrInvalidProperty) {
		t.Fatalf("vertical stairs: want ErrInvalidProperty, got %v", err)
	}
	_, _, err = reg.Build("nope", Spec{})
	if !errors.Is(err, ErrUnknownFamily) {
		t.Fatalf("want ErrUnknownFamily, got %v", err)
	}
}

func TestWaterloggedCompanion(t *testing.T) {
	reg := NewRegistry()
	p := geom.Pos{X: 1, Y: 0, Z: 1}
	slab, companions, err := reg.Build(FamilySlab, Spec{
		ID: 3, Pos: p, Props: map[string]string{"type": "bottom", "waterlogged": "true"},
	})
	if err != nil || len(companions) != 1 {
		t.Fatalf("want one companion, got %d (%v)", len(companions), err)
	}
	water := companions[0]
	if !water.Liquid() || water.Pos() != p || water.ID() == slab.ID() {
		t.Fatalf("bad companion %+v", water)
	}

	size := geom.Pos{X: 3, Y: 2, Z: 3}
	rem := Remaining{p.Key(): slab, p.LiquidKey(): water}
	if !rem.Contains(water) || !rem.WillHaveBlock(p) {
		t.Fatalf("remaining lookups")
	}
	f := fieldFor(size, rem)
	if water.IsConditionSatisfied(f, rem) {
		t.Fatalf("layered water must wait for its host")
	}
	f = f.Block(p, nil)
	next := rem.Without(slab)
	if !water.IsConditionSatisfied(f, next) {
		t.Fatalf("host placed")
	}
	if !IsPlaceable(water, f, geom.Pose{Pos: geom.Pos{X: 1, Y: 1, Z: 1}, Heading: geom.North}, next) {
		t.Fatalf("layered water pours into the occupied cell")
	}
}

func TestLiquidProbeDepth(t *testing.T) {
	reg := NewRegistry()
	size := geom.Pos{X: 1, Y: 6, Z: 1}
	water := mustBuild(t, reg, FamilyLiquid, Spec{ID: 1, Pos: geom.Pos{}, Params: map[string]string{"depth": "2"}})
	// Column with the origin at the top; cells 1..4 are cut off by a block at y=4.
	f := reach.New(size, geom.Pose{Pos: geom.Pos{Y: 5}, Heading: geom.North}, nil, solidCells(size, geom.Pos{Y: 4}))
	if water.IsReachable(f) {
		t.Fatalf("probe should stop before reaching open sky")
	}
	deep := mustBuild(t, reg, FamilyLiquid, Spec{ID: 2, Pos: geom.Pos{Y: 3}, Params: map[string]string{"depth": "2"}})
	if deep.IsReachable(f) {
		t.Fatalf("blocked cells stop the probe")
	}
	open := reach.New(size, geom.Pose{Pos: geom.Pos{Y: 5}, Heading: geom.North}, nil, nil)
	if !water.IsReachable(open) {
		t.Fatalf("liquid in a reachable cell is reachable")
	}
	if water.DependencyDirections() != dirs.None || water.IsDeadlockable(0) {
		t.Fatalf("liquids have no dependencies and cannot deadlock")
	}
}

func TestBuildDependents(t *testing.T) {
	reg := NewRegistry()
	a := mustBuild(t, reg, FamilySimple, Spec{ID: 1, Pos: geom.Pos{X: 1, Y: 1, Z: 1}})
	b := mustBuild(t, reg, FamilySimple, Spec{ID: 5, Pos: geom.Pos{X: 2, Y: 1, Z: 1}})
	c := mustBuild(t, reg, FamilySimple, Spec{ID: 3, Pos: geom.Pos{X: 1, Y: 2, Z: 1}})
	w := mustBuild(t, reg, FamilyLiquid, Spec{ID: 4, Pos: geom.Pos{X: 0, Y: 1, Z: 1}})
	far := mustBuild(t, reg, FamilySimple, Spec{ID: 9, Pos: geom.Pos{X: 5, Y: 5, Z: 5}})
	rem := Remaining{}
	for _, r := range []Rule{a, b, c, w, far} {
		rem[r.Pos().Key()] = r
	}
	deps := BuildDependents(rem)
	got := deps[a.ID()]
	if len(got) != 2 || got[0] != c || got[1] != b {
		t.Fatalf("dependents of a: %v", got)
	}
	if len(deps[w.ID()]) != 0 || len(deps[far.ID()]) != 0 {
		t.Fatalf("liquid and isolated rules have no dependents")
	}
	for _, d := range deps[b.ID()] {
		if d.Liquid() {
			t.Fatalf("liquids are never dependents")
		}
	}
}

func TestGatesAdapter(t *testing.T) {
	reg := NewRegistry()
	size := geom.Pos{X: 3, Y: 1, Z: 3}
	simple := mustBuild(t, reg, FamilySimple, Spec{ID: 1, Pos: geom.Pos{X: 2, Z: 2}})
	fac := mustBuild(t, reg, FamilyFacing, Spec{ID: 2, Pos: geom.Pos{X: 1, Z: 1}, Props: map[string]string{"facing": "west"}})
	rem := Remaining{simple.Pos().Key(): simple, fac.Pos().Key(): fac}
	f := fieldFor(size, rem)
	if f.GatesAtPos(simple.Pos()) != dirs.All {
		t.Fatalf("unconstrained rules keep the cell open")
	}
	if f.GatesAtPos(fac.Pos()) != dirs.West {
		t.Fatalf("facing gate=%v want W", f.GatesAtPos(fac.Pos()))
	}
	if got := f.AtPos(fac.Pos()); got != 2 {
		t.Fatalf("facing block entered only from (0,0,1): dist=%d want 2", got)
	}
	if len(Gates([]Rule{simple, fac}, rem.Without(fac))) != 1 {
		t.Fatalf("placed rules produce no gate")
	}
}
