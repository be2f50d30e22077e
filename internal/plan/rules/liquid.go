package rules

import (
	"github.com/zyedidia/generic/mapset"

	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/reach"
)

// DefaultLiquidDepth bounds the sky probe when the catalog gives no depth.
const DefaultLiquidDepth = 8

// liquid is water or lava. It never blocks the agent, nothing depends on it and it
// cannot be deadlocked. A layered liquid shares its cell with a waterlogged block and
// can only be poured after that block is placed.
type liquid struct {
	base
	layered bool
	depth   int
}

func newLiquid(s Spec) (Rule, error) {
	l := &liquid{
		base:  base{id: s.ID, pos: s.Pos, item: s.Item, family: FamilyLiquid},
		depth: DefaultLiquidDepth,
	}
	if v := s.intParam("depth"); v > 0 {
		l.depth = v
	}
	return l, nil
}

// Layered builds the liquid companion of a waterlogged block at s.Pos.
func Layered(s Spec, depth int) Rule {
	if depth <= 0 {
		depth = DefaultLiquidDepth
	}
	return &liquid{
		base:    base{id: s.ID, pos: s.Pos, item: s.Item, family: FamilyLiquid},
		layered: true,
		depth:   depth,
	}
}

func (l *liquid) Liquid() bool                    { return true }
func (l *liquid) FillsOccupied() bool             { return l.layered }
func (l *liquid) DependencyDirections() dirs.Mask { return dirs.None }
func (l *liquid) IsDeadlockable(int) bool         { return false }

func (l *liquid) ReachabilityDirections(*reach.Field, Remaining) (dirs.Mask, bool) {
	return dirs.None, false
}

// IsConditionSatisfied: a layered liquid waits for its host block.
func (l *liquid) IsConditionSatisfied(f *reach.Field, _ Remaining) bool {
	if l.layered {
		return f.Solid(l.pos)
	}
	return true
}

// IsReachable walks up and sideways through open cells for at most depth steps,
// looking for a cell the agent can stand in next to the path.
func (l *liquid) IsReachable(f *reach.Field) bool {
	if f.Traversable(l.pos) {
		return true
	}
	type step struct {
		p geom.Pos
		d int
	}
	seen := mapset.New[geom.Pos]()
	seen.Put(l.pos)
	queue := []step{{p: l.pos}}
	probe := dirs.Up | dirs.Horizontal
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		found := false
		probe.Each(func(_ dirs.Mask, v geom.Pos) {
			if found {
				return
			}
			n := cur.p.Add(v)
			if seen.Has(n) {
				return
			}
			if f.Traversable(n) {
				found = true
				return
			}
			if cur.d+1 < l.depth && f.Open(n) {
				seen.Put(n)
				queue = append(queue, step{p: n, d: cur.d + 1})
			}
		})
		if found {
			return true
		}
	}
	return false
}
