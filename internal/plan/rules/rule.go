// Package rules holds the placement rules: one value per block still to be placed,
// answering whether the agent can reach it, whether it can be placed from a given pose,
// and which approach directions are still viable.
//
// Rules are immutable and only read a reachability field and the remaining set. Families
// are assembled from small checkers (support, clearance, approach set) instead of a type
// hierarchy; see families.go.
package rules

import (
	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/reach"
)

type Rule interface {
	ID() int
	Pos() geom.Pos
	Item() string
	Family() string

	// Extras are co-placed cells (a door's upper half, a piston head). They sit in the
	// remaining set so neighbours see them as future blocks, and are blocked together
	// with their owner.
	Extras() []Rule
	// Owner is the rule that places this one, or nil for a normal rule.
	Owner() Rule
	Liquid() bool

	// DependencyDirections lists the neighbours whose placement legality may change
	// once this block is placed.
	DependencyDirections() dirs.Mask

	IsReachable(f *reach.Field) bool
	IsConditionSatisfied(f *reach.Field, rem Remaining) bool
	// ReachabilityDirections returns the approach directions that are still viable.
	// constrained=false means any adjacent position will do.
	ReachabilityDirections(f *reach.Field, rem Remaining) (mask dirs.Mask, constrained bool)
	IsDeadlockable(count int) bool
}

// Headed is implemented by rules whose resulting orientation follows the agent heading
// when placed from above or below.
type Headed interface {
	AcceptsHeading(rel geom.Pos, heading geom.Pos) bool
}

// PistonHead marks the extra cell an extended piston pushes into. Placing it into the
// agent's own cell is tolerated when the agent still has a way out.
type PistonHead interface {
	PistonHead() bool
}

// Filler is implemented by liquids layered into a cell that another block occupies.
type Filler interface {
	FillsOccupied() bool
}

// IsPlaceable reports whether r can be placed right now by an agent at pose.
func IsPlaceable(r Rule, f *reach.Field, pose geom.Pose, rem Remaining) bool {
	if r.Owner() != nil {
		return false
	}
	switch f.AtPos(r.Pos()) {
	case reach.OutOfBounds:
		return false
	case reach.Blocked:
		if !fillsOccupied(r) {
			return false
		}
	}
	if !r.IsConditionSatisfied(f, rem) {
		return false
	}
	rel := pose.Pos.Sub(r.Pos())
	if !rel.IsUnit() {
		return false
	}
	if mask, constrained := r.ReachabilityDirections(f, rem); constrained && mask&dirs.FromVector(rel) == 0 {
		return false
	}
	if h, ok := r.(Headed); ok && !h.AcceptsHeading(rel, pose.Heading) {
		return false
	}
	return true
}

// ReachabilityCount is the number of viable approach directions; ok=false when the rule
// is unconstrained.
func ReachabilityCount(r Rule, f *reach.Field, rem Remaining) (int, bool) {
	mask, constrained := r.ReachabilityDirections(f, rem)
	if !constrained {
		return 0, false
	}
	return dirs.Count(mask), true
}

func fillsOccupied(r Rule) bool {
	fl, ok := r.(Filler)
	return ok && fl.FillsOccupied()
}

// IsPistonHead reports whether r is the head cell of an extended piston.
func IsPistonHead(r Rule) bool {
	h, ok := r.(PistonHead)
	return ok && h.PistonHead()
}

// Remaining maps each pending block to its rule. Layered liquids are keyed by
// LiquidKey until the block sharing their cell is placed.
type Remaining map[geom.Key]Rule

// At returns the primary rule at p, or nil.
func (rem Remaining) At(p geom.Pos) Rule { return rem[p.Key()] }

// WillHaveBlock reports whether a solid block is still going to be placed at p.
func (rem Remaining) WillHaveBlock(p geom.Pos) bool {
	r, ok := rem[p.Key()]
	return ok && !r.Liquid()
}

// KeyOf returns the key r is stored under, if it is still pending.
func (rem Remaining) KeyOf(r Rule) (geom.Key, bool) {
	for _, k := range [2]geom.Key{r.Pos().Key(), r.Pos().LiquidKey()} {
		if cur, ok := rem[k]; ok && cur.ID() == r.ID() {
			return k, true
		}
	}
	return geom.Key{}, false
}

func (rem Remaining) Contains(r Rule) bool {
	_, ok := rem.KeyOf(r)
	return ok
}

func (rem Remaining) Clone() Remaining {
	out := make(Remaining, len(rem))
	for k, v := range rem {
		out[k] = v
	}
	return out
}

// Without returns a copy with rs (and their extras) removed.
func (rem Remaining) Without(rs ...Rule) Remaining {
	out := rem.Clone()
	for _, r := range rs {
		out.remove(r)
		for _, x := range r.Extras() {
			out.remove(x)
		}
	}
	return out
}

func (rem Remaining) remove(r Rule) {
	if k, ok := rem.KeyOf(r); ok {
		delete(rem, k)
	}
}

// Placeable counts the rules that could be the target of a place action: everything
// except extras.
func (rem Remaining) Placeable() int {
	n := 0
	for _, r := range rem {
		if r.Owner() == nil {
			n++
		}
	}
	return n
}
