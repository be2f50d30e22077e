package rules

import (
	"sort"

	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/reach"
)

// Dependents maps a rule id to the pending rules whose legality its placement can
// change. Extras are keys too, so placing a door also reaches the neighbours of its
// upper half.
type Dependents map[int][]Rule

// BuildDependents looks at every rule's dependency directions once. Extras and liquids
// are never dependents: extras are not placed on their own and liquids have no
// directions to lose.
func BuildDependents(rem Remaining) Dependents {
	out := make(Dependents, len(rem))
	for _, r := range rem {
		var list []Rule
		r.DependencyDirections().Each(func(_ dirs.Mask, v geom.Pos) {
			n := rem.At(r.Pos().Add(v))
			if n == nil || n.Owner() != nil || n.Liquid() || n.ID() == r.ID() {
				return
			}
			list = append(list, n)
		})
		if len(list) == 0 {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
		out[r.ID()] = list
	}
	return out
}

// Of collects the dependents of r and its extras, without duplicates, in id order.
func (d Dependents) Of(r Rule) []Rule {
	list := d[r.ID()]
	if len(r.Extras()) == 0 {
		return list
	}
	seen := map[int]bool{}
	var out []Rule
	add := func(rs []Rule) {
		for _, x := range rs {
			if !seen[x.ID()] {
				seen[x.ID()] = true
				out = append(out, x)
			}
		}
	}
	add(list)
	for _, x := range r.Extras() {
		add(d[x.ID()])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

type gate struct {
	r   Rule
	rem Remaining
}

func (g gate) Pos() geom.Pos { return g.r.Pos() }

func (g gate) Gates(f *reach.Field) dirs.Mask {
	m, constrained := g.r.ReachabilityDirections(f, g.rem)
	if !constrained {
		return dirs.All
	}
	return m
}

// Gates adapts the still-pending rules in rs to the reachability field.
func Gates(rs []Rule, rem Remaining) []reach.Gate {
	out := make([]reach.Gate, 0, len(rs))
	for _, r := range rs {
		if r.Owner() != nil || r.Liquid() || !rem.Contains(r) {
			continue
		}
		out = append(out, gate{r: r, rem: rem})
	}
	return out
}

// Sorted returns the rules of rem in id order.
func (rem Remaining) Sorted() []Rule {
	out := make([]Rule, 0, len(rem))
	for _, r := range rem {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
