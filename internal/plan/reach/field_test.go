package reach

import (
	"testing"

	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
)

type testGate struct {
	pos geom.Pos
	fn  func(f *Field) dirs.Mask
}

func (g testGate) Pos() geom.Pos            { return g.pos }
func (g testGate) Gates(f *Field) dirs.Mask { return g.fn(f) }

func origin() geom.Pose { return geom.Pose{Pos: geom.Pos{}, Heading: geom.North} }

// rebuild recomputes f from scratch with the same gates and blocked cells.
func rebuild(f *Field) *Field {
	blocked := make([]bool, len(f.dist))
	for i, d := range f.dist {
		blocked[i] = d == Blocked
	}
	return New(f.size, geom.Pose{Pos: f.origin}, f.gates, blocked)
}

func assertExact(t *testing.T, f *Field) {
	t.Helper()
	want := rebuild(f)
	for i := range f.dist {
		if f.dist[i] != want.dist[i] {
			t.Fatalf("cell %v: dist=%d want %d", f.pos(i), f.dist[i], want.dist[i])
		}
	}
}

func TestNew_Distances(t *testing.T) {
	f := New(geom.Pos{X: 4, Y: 2, Z: 3}, origin(), nil, nil)
	if f.At(0, 0, 0) != 0 {
		t.Fatalf("origin dist=%d", f.At(0, 0, 0))
	}
	if got := f.At(3, 1, 2); got != 6 {
		t.Fatalf("far corner dist=%d want 6", got)
	}
	if f.At(-1, 0, 0) != OutOfBounds || f.At(0, 2, 0) != OutOfBounds {
		t.Fatalf("expected OutOfBounds outside the grid")
	}
	if f.GatesAt(9, 9, 9) != dirs.None {
		t.Fatalf("gates outside the grid must be None")
	}
}

func TestBlock_KeepsInvariant(t *testing.T) {
	size := geom.Pos{X: 5, Y: 3, Z: 5}
	f := New(size, origin(), nil, nil)
	seq := []geom.Pos{
		{X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 1}, {X: 2, Y: 0, Z: 2},
		{X: 1, Y: 0, Z: 1}, {X: 3, Y: 0, Z: 3}, {X: 0, Y: 0, Z: 2}, {X: 2, Y: 1, Z: 1},
	}
	for _, p := range seq {
		f = f.Block(p, nil)
		assertExact(t, f)
		if f.AtPos(p) != Blocked {
			t.Fatalf("%v not blocked", p)
		}
	}
}

func TestBlock_LocalProbeAvoidsRecompute(t *testing.T) {
	f := New(geom.Pos{X: 5, Y: 1, Z: 5}, origin(), nil, nil)
	// (4,0,4) has other shortest-path predecessors, nothing depends on it alone.
	nf := f.Block(geom.Pos{X: 4, Y: 0, Z: 4}, nil)
	if nf.Recomputed() {
		t.Fatalf("blocking a corner should not need a flood fill")
	}
	assertExact(t, nf)

	// Cutting the only corridor forces a recompute.
	line := New(geom.Pos{X: 4, Y: 1, Z: 1}, origin(), nil, nil)
	cut := line.Block(geom.Pos{X: 1}, nil)
	if !cut.Recomputed() {
		t.Fatalf("cutting a corridor must recompute")
	}
	if cut.At(2, 0, 0) != Unreachable || cut.At(3, 0, 0) != Unreachable {
		t.Fatalf("cells past the cut should be unreachable: %d %d", cut.At(2, 0, 0), cut.At(3, 0, 0))
	}
}

func TestBlock_Idempotent(t *testing.T) {
	f := New(geom.Pos{X: 3, Y: 2, Z: 3}, origin(), nil, nil)
	p := geom.Pos{X: 1, Y: 0, Z: 1}
	f = f.Block(p, nil)
	again := f.Block(p, nil)
	if again != f {
		t.Fatalf("blocking an already blocked cell must return the same field")
	}
	out := f.Block(geom.Pos{X: 7}, nil)
	if out != f {
		t.Fatalf("blocking outside the grid must be a no-op")
	}
}

func TestBlock_CopyOnWrite(t *testing.T) {
	f := New(geom.Pos{X: 3, Y: 1, Z: 3}, origin(), nil, nil)
	before := append([]int32(nil), f.dist...)
	_ = f.Block(geom.Pos{X: 1, Y: 0, Z: 0}, nil)
	_ = f.BlockMany([]geom.Pos{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}}, nil)
	for i := range before {
		if f.dist[i] != before[i] {
			t.Fatalf("receiver mutated at %v", f.pos(i))
		}
	}
}

func TestBlockMany_Atomic(t *testing.T) {
	f := New(geom.Pos{X: 4, Y: 3, Z: 4}, origin(), nil, nil)
	ps := []geom.Pos{{X: 2, Y: 0, Z: 2}, {X: 2, Y: 1, Z: 2}, {X: 1, Y: 0, Z: 2}}
	nf := f.BlockMany(ps, nil)
	for _, p := range ps {
		if nf.AtPos(p) != Blocked {
			t.Fatalf("%v not blocked", p)
		}
	}
	assertExact(t, nf)
}

func TestBlock_GateNarrowing(t *testing.T) {
	f := New(geom.Pos{X: 3, Y: 1, Z: 3}, origin(), nil, nil)
	target := geom.Pos{X: 2, Y: 0, Z: 2}
	// Only enterable from the west once (1,0,1) is solid.
	g := testGate{pos: target, fn: func(f *Field) dirs.Mask {
		if f.Solid(geom.Pos{X: 1, Y: 0, Z: 1}) {
			return dirs.West
		}
		return dirs.All
	}}
	nf := f.Block(geom.Pos{X: 1, Y: 0, Z: 1}, []Gate{g})
	if nf.GatesAtPos(target) != dirs.West {
		t.Fatalf("gates=%v want W", nf.GatesAtPos(target))
	}
	assertExact(t, nf)
	if nf.AtPos(target) != 4 {
		t.Fatalf("dist=%d want 4 (via (1,0,2))", nf.AtPos(target))
	}
}

func TestBlock_OriginBlocked(t *testing.T) {
	f := New(geom.Pos{X: 2, Y: 1, Z: 2}, origin(), nil, nil)
	nf := f.Block(geom.Pos{}, nil)
	if !nf.Recomputed() {
		t.Fatalf("blocking the origin must recompute")
	}
	if nf.At(1, 0, 0) != Unreachable {
		t.Fatalf("nothing is reachable once the origin is solid")
	}
}

func TestRegate(t *testing.T) {
	f := New(geom.Pos{X: 3, Y: 1, Z: 1}, origin(), nil, nil)
	g := testGate{pos: geom.Pos{X: 2}, fn: func(*Field) dirs.Mask { return dirs.None }}
	nf := f.Regate([]Gate{g})
	if nf.At(2, 0, 0) != Unreachable {
		t.Fatalf("closed gate should be unreachable, got %d", nf.At(2, 0, 0))
	}
	back := nf.Regate(nil)
	if back.At(2, 0, 0) != 2 {
		t.Fatalf("regate without pending should restore distance, got %d", back.At(2, 0, 0))
	}
}

func TestFloodFillFromTurtle(t *testing.T) {
	f := New(geom.Pos{X: 4, Y: 1, Z: 1}, origin(), nil, nil)
	f = f.Block(geom.Pos{X: 2}, nil)

	seen := map[geom.Pos]int{}
	f.FloodFillFromTurtle(geom.Pos{}, func(p geom.Pos, steps int) bool {
		seen[p]++
		if p.X == 2 && steps != 2 {
			t.Fatalf("blocked cell steps=%d want 2", steps)
		}
		return false
	})
	if seen[geom.Pos{X: 2}] != 1 {
		t.Fatalf("blocked cell must be visited exactly once, got %d", seen[geom.Pos{X: 2}])
	}
	if seen[geom.Pos{X: 3}] != 0 {
		t.Fatalf("walk must not pass through a blocked cell")
	}

	n := 0
	stopped := f.FloodFillFromTurtle(geom.Pos{}, func(geom.Pos, int) bool {
		n++
		return n == 2
	})
	if !stopped || n != 2 {
		t.Fatalf("early stop: stopped=%v n=%d", stopped, n)
	}
	if f.FloodFillFromTurtle(geom.Pos{X: -1}, func(geom.Pos, int) bool { return true }) {
		t.Fatalf("start outside grid must not visit")
	}
}

func TestPathToOrigin(t *testing.T) {
	f := New(geom.Pos{X: 3, Y: 1, Z: 3}, origin(), nil, nil)
	f = f.Block(geom.Pos{X: 1, Y: 0, Z: 0}, nil).Block(geom.Pos{X: 1, Y: 0, Z: 1}, nil)
	start := geom.Pos{X: 2, Y: 0, Z: 0}
	path, ok := f.PathToOrigin(start)
	if !ok {
		t.Fatalf("expected a path")
	}
	if int32(len(path)) != f.AtPos(start) {
		t.Fatalf("path len=%d want %d", len(path), f.AtPos(start))
	}
	prev := start
	for _, p := range path {
		if !p.Sub(prev).IsUnit() || !f.Traversable(p) {
			t.Fatalf("bad step %v -> %v", prev, p)
		}
		prev = p
	}
	if prev != (geom.Pos{}) {
		t.Fatalf("path ends at %v", prev)
	}
	if _, ok := f.PathToOrigin(geom.Pos{X: 1}); ok {
		t.Fatalf("blocked cell has no path")
	}
}
