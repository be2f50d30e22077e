package rules

import (
	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/reach"
)

type base struct {
	id     int
	pos    geom.Pos
	item   string
	family string
	extras []Rule
}

func (b *base) ID() int        { return b.id }
func (b *base) Pos() geom.Pos  { return b.pos }
func (b *base) Item() string   { return b.item }
func (b *base) Family() string { return b.family }
func (b *base) Extras() []Rule { return b.extras }
func (b *base) Owner() Rule    { return nil }
func (b *base) Liquid() bool   { return false }

func (b *base) DependencyDirections() dirs.Mask { return dirs.All }

func (b *base) IsReachable(f *reach.Field) bool { return f.AtPos(b.pos) >= 0 }

// Check is one structural requirement on a neighbouring cell.
//
// Now must hold at the moment of placement; Viable reports whether it can still hold
// at some point in the future.
type Check interface {
	Now(p geom.Pos, f *reach.Field, rem Remaining) bool
	Viable(p geom.Pos, f *reach.Field, rem Remaining) bool
}

// Support needs a block on the Dir side.
type Support struct{ Dir dirs.Mask }

func (s Support) Now(p geom.Pos, f *reach.Field, _ Remaining) bool {
	return f.Solid(p.Add(dirs.Vector(s.Dir)))
}

func (s Support) Viable(p geom.Pos, f *reach.Field, rem Remaining) bool {
	q := p.Add(dirs.Vector(s.Dir))
	return f.Solid(q) || rem.WillHaveBlock(q)
}

// Clearance needs the Dir side to stay free (a door's upper half).
type Clearance struct{ Dir dirs.Mask }

func (c Clearance) Now(p geom.Pos, f *reach.Field, _ Remaining) bool {
	return f.Open(p.Add(dirs.Vector(c.Dir)))
}

func (c Clearance) Viable(p geom.Pos, f *reach.Field, rem Remaining) bool {
	return c.Now(p, f, rem)
}

// Approach is the set of sides an agent may stand on to place the block. An
// unconstrained approach accepts every side.
type Approach struct {
	Dirs        dirs.Mask
	Constrained bool
}

var Anywhere = Approach{}

func From(m dirs.Mask) Approach { return Approach{Dirs: m, Constrained: true} }

// open filters the approach sides down to cells that are inside the grid and not solid.
func (a Approach) open(p geom.Pos, f *reach.Field) dirs.Mask {
	var out dirs.Mask
	a.Dirs.Each(func(d dirs.Mask, v geom.Pos) {
		if f.Open(p.Add(v)) {
			out |= d
		}
	})
	return out
}

// placement is the generic rule: a list of checks, an approach set, a deadlock threshold
// and an optional heading requirement for vertical placement.
type placement struct {
	base
	checks   []Check
	approach Approach
	// deadlockable while the viable direction count is at or below this.
	deadlock int
	// vertical, when non-zero, is the heading the agent must hold while placing from
	// above or below.
	vertical geom.Pos
}

func (p *placement) IsConditionSatisfied(f *reach.Field, rem Remaining) bool {
	for _, c := range p.checks {
		if !c.Now(p.pos, f, rem) {
			return false
		}
	}
	return true
}

func (p *placement) ReachabilityDirections(f *reach.Field, rem Remaining) (dirs.Mask, bool) {
	for _, c := range p.checks {
		if !c.Viable(p.pos, f, rem) {
			return dirs.None, true
		}
	}
	if !p.approach.Constrained {
		return dirs.None, false
	}
	return p.approach.open(p.pos, f), true
}

func (p *placement) IsDeadlockable(count int) bool { return count <= p.deadlock }

func (p *placement) AcceptsHeading(rel geom.Pos, heading geom.Pos) bool {
	if rel.Y == 0 || p.vertical == (geom.Pos{}) {
		return true
	}
	return heading == p.vertical
}

// extra is a co-placed cell owned by another rule.
type extra struct {
	base
	owner Rule
	head  bool
}

func (x *extra) Owner() Rule             { return x.owner }
func (x *extra) PistonHead() bool        { return x.head }
func (x *extra) IsDeadlockable(int) bool { return false }

func (x *extra) IsReachable(f *reach.Field) bool { return x.owner.IsReachable(f) }

func (x *extra) IsConditionSatisfied(*reach.Field, Remaining) bool { return false }

func (x *extra) ReachabilityDirections(*reach.Field, Remaining) (dirs.Mask, bool) {
	return dirs.None, false
}
