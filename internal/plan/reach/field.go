// Package reach keeps the agent-distance field of a fixed grid.
//
// Every cell holds either the shortest path length from the origin (the supply point)
// or a sentinel. Alongside it every cell has a gate mask: bit D set on cell C means an
// agent standing at C+vec(D) may enter C, or place the block that belongs to C from
// there. Fields are persistent values: Block, BlockMany and Regate return new fields and
// never touch the receiver, so older game states stay valid.
package reach

import (
	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
)

const (
	Blocked     int32 = -1
	Unreachable int32 = -2
	OutOfBounds int32 = -3
)

// Gate is a pending block whose placement rule narrows entry into its cell.
type Gate interface {
	Pos() geom.Pos
	Gates(f *Field) dirs.Mask
}

type Field struct {
	size   geom.Pos
	origin geom.Pos

	dist  []int32
	gates []dirs.Mask

	recomputed bool
}

// New builds a field for a grid of the given size. gates may be nil (every cell All);
// blocked marks cells occupied by the pre-existing structure and may be nil.
func New(size geom.Pos, origin geom.Pose, gates []dirs.Mask, blocked []bool) *Field {
	n := size.X * size.Y * size.Z
	if n < 0 {
		n = 0
	}
	f := &Field{
		size:   size,
		origin: origin.Pos,
		dist:   make([]int32, n),
		gates:  make([]dirs.Mask, n),
	}
	for i := range f.gates {
		if gates != nil && i < len(gates) {
			f.gates[i] = gates[i]
		} else {
			f.gates[i] = dirs.All
		}
	}
	for i := range f.dist {
		if blocked != nil && i < len(blocked) && blocked[i] {
			f.dist[i] = Blocked
		} else {
			f.dist[i] = Unreachable
		}
	}
	f.floodFill()
	return f
}

func (f *Field) Size() geom.Pos   { return f.size }
func (f *Field) Origin() geom.Pos { return f.origin }

// Recomputed reports whether producing this field needed a full flood fill.
func (f *Field) Recomputed() bool { return f.recomputed }

// Index returns the flat index of p, or false outside the grid.
func (f *Field) Index(p geom.Pos) (int, bool) {
	if !p.InBounds(f.size) {
		return 0, false
	}
	return (p.Y*f.size.Z+p.Z)*f.size.X + p.X, true
}

func (f *Field) At(x, y, z int) int32 { return f.AtPos(geom.Pos{X: x, Y: y, Z: z}) }

func (f *Field) AtPos(p geom.Pos) int32 {
	i, ok := f.Index(p)
	if !ok {
		return OutOfBounds
	}
	return f.dist[i]
}

func (f *Field) GatesAt(x, y, z int) dirs.Mask { return f.GatesAtPos(geom.Pos{X: x, Y: y, Z: z}) }

func (f *Field) GatesAtPos(p geom.Pos) dirs.Mask {
	i, ok := f.Index(p)
	if !ok {
		return dirs.None
	}
	return f.gates[i]
}

// Traversable reports whether the agent can currently occupy p.
func (f *Field) Traversable(p geom.Pos) bool { return f.AtPos(p) >= 0 }

// Solid reports whether p holds a block (placed or pre-existing).
func (f *Field) Solid(p geom.Pos) bool { return f.AtPos(p) == Blocked }

// Open reports whether p is inside the grid and not occupied.
func (f *Field) Open(p geom.Pos) bool {
	s := f.AtPos(p)
	return s != Blocked && s != OutOfBounds
}

func (f *Field) clone() *Field {
	nf := &Field{
		size:   f.size,
		origin: f.origin,
		dist:   make([]int32, len(f.dist)),
		gates:  make([]dirs.Mask, len(f.gates)),
	}
	copy(nf.dist, f.dist)
	copy(nf.gates, f.gates)
	return nf
}

// Block returns a field with p occupied. See BlockMany.
func (f *Field) Block(p geom.Pos, dependents []Gate) *Field {
	return f.BlockMany([]geom.Pos{p}, dependents)
}

// BlockMany occupies every position atomically, re-derives the gates of the dependents
// and keeps the distance invariant. Distances are only recomputed from scratch when a
// local probe shows that a cell lost its last shortest-path predecessor, a gate widened,
// or the origin itself was blocked. Cells that are already blocked are ignored; if
// nothing new is blocked the receiver is returned unchanged.
func (f *Field) BlockMany(ps []geom.Pos, dependents []Gate) *Field {
	var fresh []int
	for _, p := range ps {
		i, ok := f.Index(p)
		if !ok || f.dist[i] == Blocked {
			continue
		}
		fresh = append(fresh, i)
	}
	if len(fresh) == 0 {
		return f
	}

	nf := f.clone()
	full := false
	for _, i := range fresh {
		nf.dist[i] = Blocked
		if nf.pos(i) == f.origin {
			full = true
		}
	}

	var narrowed []int
	for _, g := range dependents {
		i, ok := nf.Index(g.Pos())
		if !ok || nf.dist[i] == Blocked {
			continue
		}
		old := nf.gates[i]
		next := g.Gates(nf)
		if next == old {
			continue
		}
		nf.gates[i] = next
		if next&^old != 0 {
			full = true
		}
		if old&^next != 0 {
			narrowed = append(narrowed, i)
		}
	}

	if full || !nf.locallyValid(f, fresh, narrowed) {
		nf.floodFill()
	}
	return nf
}

// Regate replaces the gates of the given pending blocks (every other cell reverts to
// All) and recomputes distances. It is used when planning moves on to a new set of
// pending blocks.
func (f *Field) Regate(pending []Gate) *Field {
	nf := f.clone()
	for i := range nf.gates {
		nf.gates[i] = dirs.All
	}
	for _, g := range pending {
		if i, ok := nf.Index(g.Pos()); ok && nf.dist[i] != Blocked {
			nf.gates[i] = g.Gates(nf)
		}
	}
	nf.floodFill()
	return nf
}

// locallyValid checks only the cells whose shortest path could have run through a newly
// blocked cell or through an edge removed by a narrowed gate. Distances can only grow
// when edges are removed, so if each of those cells still has a predecessor one step
// closer to the origin every distance in the field is still exact.
func (f *Field) locallyValid(prev *Field, blocked []int, narrowed []int) bool {
	affected := make([]int, 0, len(blocked)*6+len(narrowed))
	for _, i := range blocked {
		d := prev.dist[i]
		if d < 0 {
			continue
		}
		p := f.pos(i)
		dirs.All.Each(func(dir dirs.Mask, v geom.Pos) {
			j, ok := f.Index(p.Add(v))
			if !ok || f.dist[j] != d+1 {
				return
			}
			if prev.gates[j]&dirs.Mirror(dir) != 0 {
				affected = append(affected, j)
			}
		})
	}
	affected = append(affected, narrowed...)

	for _, j := range affected {
		if f.dist[j] <= 0 {
			continue
		}
		if !f.hasPredecessor(j) {
			return false
		}
	}
	return true
}

func (f *Field) hasPredecessor(i int) bool {
	want := f.dist[i] - 1
	p := f.pos(i)
	g := f.gates[i]
	for k, d := range dirs.Order {
		if g&d == 0 {
			continue
		}
		j, ok := f.Index(p.Add(dirs.Units[k]))
		if ok && f.dist[j] == want {
			return true
		}
	}
	return false
}

func (f *Field) pos(i int) geom.Pos {
	x := i % f.size.X
	rest := i / f.size.X
	z := rest % f.size.Z
	y := rest / f.size.Z
	return geom.Pos{X: x, Y: y, Z: z}
}

// floodFill recomputes every distance with a breadth-first search from the origin,
// entering a neighbour only through its gate.
func (f *Field) floodFill() {
	f.recomputed = true
	for i, d := range f.dist {
		if d != Blocked {
			f.dist[i] = Unreachable
		}
	}
	start, ok := f.Index(f.origin)
	if !ok || f.dist[start] == Blocked {
		return
	}
	f.dist[start] = 0
	queue := make([]int, 0, 256)
	queue = append(queue, start)
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		d := f.dist[i]
		p := f.pos(i)
		for k, dir := range dirs.Order {
			j, ok := f.Index(p.Add(dirs.Units[k]))
			if !ok {
				continue
			}
			nd := f.dist[j]
			if nd == Blocked || (nd >= 0 && nd <= d+1) {
				continue
			}
			if f.gates[j]&dirs.Mirror(dir) == 0 {
				continue
			}
			f.dist[j] = d + 1
			queue = append(queue, j)
		}
	}
}

// FloodFillFromTurtle walks cells by plain adjacency (gates ignored) outward from start
// in breadth-first order, calling visit with each cell and its step count. A blocked
// cell is reported once but never expanded. Returning true from visit stops the walk;
// the result reports whether it was stopped.
func (f *Field) FloodFillFromTurtle(start geom.Pos, visit func(p geom.Pos, steps int) bool) bool {
	si, ok := f.Index(start)
	if !ok {
		return false
	}
	seen := make([]bool, len(f.dist))
	steps := make([]int32, len(f.dist))
	seen[si] = true
	queue := make([]int, 0, 256)
	queue = append(queue, si)
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		p := f.pos(i)
		if visit(p, int(steps[i])) {
			return true
		}
		if f.dist[i] == Blocked {
			continue
		}
		for _, v := range dirs.Units {
			j, ok := f.Index(p.Add(v))
			if !ok || seen[j] {
				continue
			}
			seen[j] = true
			steps[j] = steps[i] + 1
			queue = append(queue, j)
		}
	}
	return false
}

// PathToOrigin follows the distance gradient from p back to the origin and returns the
// cells stepped through (p excluded, origin included). Neighbour order is fixed so the
// path is deterministic.
func (f *Field) PathToOrigin(p geom.Pos) ([]geom.Pos, bool) {
	i, ok := f.Index(p)
	if !ok || f.dist[i] < 0 {
		return nil, false
	}
	out := make([]geom.Pos, 0, f.dist[i])
	cur := p
	for f.AtPos(cur) > 0 {
		ci, _ := f.Index(cur)
		want := f.dist[ci] - 1
		g := f.gates[ci]
		moved := false
		for k, d := range dirs.Order {
			if g&d == 0 {
				continue
			}
			next := cur.Add(dirs.Units[k])
			if f.AtPos(next) == want {
				cur = next
				out = append(out, cur)
				moved = true
				break
			}
		}
		if !moved {
			return nil, false
		}
	}
	return out, true
}
