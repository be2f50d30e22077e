package state

import (
	"github.com/zyedidia/generic/mapset"

	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/reach"
	"voxelplan.ai/internal/plan/rules"
)

// PossibleActions lists the legal actions out of s, in a fixed order: turns, moves,
// placements (forward, up, down) and resupply.
//
// isClosed, if non-nil, is asked about the hash of each placement's resulting state
// before it is validated; closed placements are skipped without further work.
// onReject, if non-nil, is told about every placement that failed a legality check.
//
// When the inventory cannot take any of the remaining item kinds the only action left
// is a resupply.
func (s *State) PossibleActions(isClosed func(uint64) bool, onReject func(Action, Reject)) []Action {
	if !s.inv.Empty() && s.inv.AddableRatio(s.itemKinds()) == 0 {
		return []Action{s.resupplyAction()}
	}

	c := s.env.Costs
	out := make([]Action, 0, 10)
	out = append(out,
		Action{Kind: TurnLeft, next: s.moved(s.pose.TurnLeft()), cost: c.Turn},
		Action{Kind: TurnRight, next: s.moved(s.pose.TurnRight()), cost: c.Turn},
	)

	moves := [...]struct {
		k    Kind
		to   geom.Pos
		cost int
	}{
		{Forward, s.pose.Forward(), c.Move},
		{Back, s.pose.Behind(), c.Move},
		{Up, s.pose.Above(), c.Vertical},
		{Down, s.pose.Below(), c.Vertical},
	}
	for _, m := range moves {
		if !s.field.Traversable(m.to) {
			continue
		}
		out = append(out, Action{Kind: m.k, Target: m.to, next: s.moved(geom.Pose{Pos: m.to, Heading: s.pose.Heading}), cost: m.cost})
	}

	places := [...]struct {
		k  Kind
		to geom.Pos
	}{
		{PlaceForward, s.pose.Forward()},
		{PlaceUp, s.pose.Above()},
		{PlaceDown, s.pose.Below()},
	}
	for _, p := range places {
		r := s.remaining.At(p.to)
		if r == nil {
			continue
		}
		a := Action{Kind: p.k, Target: p.to, BlockID: r.ID(), cost: c.Place}
		if isClosed != nil && isClosed(s.placedHash(r)) {
			continue
		}
		next, why := s.tryPlace(r)
		if why != 0 {
			if onReject != nil {
				onReject(a, why)
			}
			continue
		}
		a.next = next
		out = append(out, a)
	}

	if !s.inv.Empty() {
		out = append(out, s.resupplyAction())
	}
	return out
}

func (s *State) moved(p geom.Pose) *State {
	return &State{env: s.env, remaining: s.remaining, pose: p, field: s.field, inv: s.inv, remHash: s.remHash}
}

// itemKinds lists the distinct items still needed, in first-seen id order.
func (s *State) itemKinds() []string {
	set := mapset.New[string]()
	var out []string
	for _, r := range s.remaining.Sorted() {
		if it := r.Item(); it != "" && !set.Has(it) {
			set.Put(it)
			out = append(out, it)
		}
	}
	return out
}

func (s *State) placedHash(r rules.Rule) uint64 {
	h := s.remHash ^ idHash(r.ID())
	for _, x := range r.Extras() {
		h ^= idHash(x.ID())
	}
	return poseHash(h, s.pose)
}

// tryPlace applies r speculatively and runs the side-effect checks.
func (s *State) tryPlace(r rules.Rule) (*State, Reject) {
	if !rules.IsPlaceable(r, s.field, s.pose, s.remaining) {
		return nil, RejectNotPlaceable
	}
	items := itemsOf(r)
	if len(items) > 0 && !s.inv.CanAdd(items) {
		return nil, RejectInventory
	}
	next := s.place(r)

	if !next.field.Traversable(s.pose.Pos) && !s.pushedOut(r, next.field) {
		return nil, RejectTrapped
	}
	for _, o := range next.remaining {
		if o.Owner() != nil {
			continue
		}
		if !o.IsReachable(next.field) && o.IsReachable(s.field) {
			return nil, RejectUnreachable
		}
	}
	if !s.CanCompleteDependencyChain(next, r) {
		return nil, RejectDependencyChain
	}
	return next, 0
}

// pushedOut: an extended piston head landing on the agent is fine as long as the agent
// has a traversable neighbour to step into.
func (s *State) pushedOut(r rules.Rule, f *reach.Field) bool {
	head := false
	for _, x := range r.Extras() {
		if rules.IsPistonHead(x) && x.Pos() == s.pose.Pos {
			head = true
		}
	}
	if !head {
		return false
	}
	for _, v := range dirs.Units {
		if f.Traversable(s.pose.Pos.Add(v)) {
			return true
		}
	}
	return false
}

func itemsOf(r rules.Rule) []string {
	if r.Item() == "" {
		return nil
	}
	return []string{r.Item()}
}

// place removes r (and its extras) from the remaining set and blocks its cells. A
// liquid leaves the field untouched. A liquid layered under r is re-keyed onto the
// cell's primary key so it becomes placeable.
func (s *State) place(r rules.Rule) *State {
	rem := s.remaining.Without(r)
	if !r.Liquid() {
		if liq, ok := rem[r.Pos().LiquidKey()]; ok {
			delete(rem, r.Pos().LiquidKey())
			rem[r.Pos().Key()] = liq
		}
	}

	f := s.field
	if !r.Liquid() {
		cells := make([]geom.Pos, 0, 1+len(r.Extras()))
		cells = append(cells, r.Pos())
		for _, x := range r.Extras() {
			cells = append(cells, x.Pos())
		}
		f = f.BlockMany(cells, rules.Gates(s.env.Dependents.Of(r), rem))
	}

	h := s.remHash ^ idHash(r.ID())
	for _, x := range r.Extras() {
		h ^= idHash(x.ID())
	}
	inv := s.inv
	if items := itemsOf(r); len(items) > 0 {
		inv = inv.Add(items)
	}
	return &State{env: s.env, remaining: rem, pose: s.pose, field: f, inv: inv, remHash: h}
}

type chainItem struct {
	r      rules.Rule
	before int
}

// CanCompleteDependencyChain checks that placing `placed` (which turned s into next)
// does not start a cascade that leaves some dependent with no way to be placed.
//
// A dependent that lost directions and is now deadlockable is treated as if it were
// placed right away, and its own dependents are examined in turn. The walk fails as
// soon as a dependent is unreachable or has no direction left.
func (s *State) CanCompleteDependencyChain(next *State, placed rules.Rule) bool {
	deps := s.env.Dependents
	f, rem := next.field, next.remaining
	provisional := mapset.New[int]()

	var work []chainItem
	push := func(list []rules.Rule, pf *reach.Field, prem rules.Remaining) {
		for _, d := range list {
			n, constrained := rules.ReachabilityCount(d, pf, prem)
			if !constrained {
				continue
			}
			work = append(work, chainItem{r: d, before: n})
		}
	}
	push(deps.Of(placed), s.field, s.remaining)

	for len(work) > 0 {
		it := work[0]
		work = work[1:]
		d := it.r
		if provisional.Has(d.ID()) || !rem.Contains(d) {
			continue
		}
		after, constrained := rules.ReachabilityCount(d, f, rem)
		if !constrained {
			continue
		}
		if after == 0 || !d.IsReachable(f) {
			return false
		}
		if after >= it.before || !d.IsDeadlockable(after) {
			continue
		}

		provisional.Put(d.ID())
		nextRem := rem.Without(d)
		cells := []geom.Pos{d.Pos()}
		for _, x := range d.Extras() {
			cells = append(cells, x.Pos())
		}
		push(deps.Of(d), f, rem)
		f = f.BlockMany(cells, rules.Gates(deps.Of(d), nextRem))
		rem = nextRem
	}
	return true
}
