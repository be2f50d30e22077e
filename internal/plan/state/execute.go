package state

import (
	"errors"
	"fmt"

	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/reach"
)

var (
	ErrNoBlock     = errors.New("no block at target")
	ErrIllegalMove = errors.New("destination not traversable")
)

// Execute applies a and returns the new state and the action cost. Actions that came
// out of PossibleActions reuse the state computed there. Placements are applied without
// re-running the legality checks; a placement with no matching block is an error.
func (s *State) Execute(a Action) (*State, int, error) {
	if a.next != nil {
		return a.next, a.cost, nil
	}
	c := s.env.Costs
	switch a.Kind {
	case TurnLeft:
		return s.moved(s.pose.TurnLeft()), c.Turn, nil
	case TurnRight:
		return s.moved(s.pose.TurnRight()), c.Turn, nil
	case Forward, Back, Up, Down:
		to := s.moveTarget(a.Kind)
		if !s.field.Traversable(to) {
			return nil, 0, fmt.Errorf("state: %s to %v: %w", a.Kind, to, ErrIllegalMove)
		}
		cost := c.Move
		if a.Kind == Up || a.Kind == Down {
			cost = c.Vertical
		}
		return s.moved(geom.Pose{Pos: to, Heading: s.pose.Heading}), cost, nil
	case PlaceForward, PlaceUp, PlaceDown:
		to := s.placeTarget(a.Kind)
		r := s.remaining.At(to)
		if r == nil || (a.BlockID != 0 && r.ID() != a.BlockID) {
			return nil, 0, fmt.Errorf("state: %s at %v (block %d): %w", a.Kind, to, a.BlockID, ErrNoBlock)
		}
		return s.place(r), c.Place, nil
	case Resupply:
		ra := s.resupplyAction()
		return ra.next, ra.cost, nil
	}
	return nil, 0, fmt.Errorf("state: unknown action %v", a.Kind)
}

func (s *State) moveTarget(k Kind) geom.Pos {
	switch k {
	case Forward:
		return s.pose.Forward()
	case Back:
		return s.pose.Behind()
	case Up:
		return s.pose.Above()
	}
	return s.pose.Below()
}

func (s *State) placeTarget(k Kind) geom.Pos {
	switch k {
	case PlaceUp:
		return s.pose.Above()
	case PlaceDown:
		return s.pose.Below()
	}
	return s.pose.Forward()
}

func (s *State) resupplyAction() Action {
	next := &State{
		env:       s.env,
		remaining: s.remaining,
		pose:      s.env.Supply,
		field:     s.field,
		inv:       s.inv.Reset(),
		remHash:   s.remHash,
	}
	return Action{Kind: Resupply, next: next, cost: s.ResupplyCost()}
}

// ResupplyCost prices the trip back to the supply point. Near the supply point it is
// the exact cost of ResupplyRoute; further out, or when no route exists, it is the
// manhattan distance times the far multiplier.
func (s *State) ResupplyCost() int {
	c := s.env.Costs
	d := geom.Manhattan(s.pose.Pos, s.env.Supply.Pos)
	if d <= c.ResupplyNearRadius {
		if route, ok := ResupplyRoute(s.field, s.pose, s.env.Supply); ok {
			total := 0
			for _, k := range route {
				total += c.of(k)
			}
			return total
		}
	}
	return d * c.ResupplyFarMultiplier
}

func (c Costs) of(k Kind) int {
	switch k {
	case TurnLeft, TurnRight:
		return c.Turn
	case Up, Down:
		return c.Vertical
	case Forward, Back:
		return c.Move
	}
	return 0
}

// ResupplyRoute is the turn-and-move sequence that walks the field gradient from pose
// back to the supply point and ends facing the supply heading.
func ResupplyRoute(f *reach.Field, from geom.Pose, supply geom.Pose) ([]Kind, bool) {
	path, ok := f.PathToOrigin(from.Pos)
	if !ok {
		return nil, false
	}
	var out []Kind
	cur := from
	for _, p := range path {
		step := p.Sub(cur.Pos)
		switch {
		case step.Y > 0:
			out = append(out, Up)
		case step.Y < 0:
			out = append(out, Down)
		default:
			out = turnTowards(out, cur.Heading, step)
			cur.Heading = step
			out = append(out, Forward)
		}
		cur.Pos = p
	}
	if cur.Pos != supply.Pos {
		return nil, false
	}
	return turnTowards(out, cur.Heading, supply.Heading), true
}

func turnTowards(out []Kind, from, to geom.Pos) []Kind {
	switch {
	case from == to:
	case from.Neg() == to:
		out = append(out, TurnRight, TurnRight)
	case geom.RotateOffset(from, 1) == to:
		out = append(out, TurnLeft)
	default:
		out = append(out, TurnRight)
	}
	return out
}
