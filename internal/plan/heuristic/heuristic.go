// Package heuristic estimates how much work a game state has left.
package heuristic

import (
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/state"
)

type Weights struct {
	// BlockWeight is charged per remaining block.
	BlockWeight int `yaml:"block_weight"`
	// Distances up to Near are free; the excess is capped at Far, which is also
	// charged when nothing is placeable right now.
	Near int `yaml:"near"`
	Far  int `yaml:"far"`
}

func DefaultWeights() Weights {
	return Weights{BlockWeight: 4, Near: 1, Far: 16}
}

// New returns remaining*BlockWeight plus a clamped walking distance to the nearest block
// whose structural condition already holds.
func New(w Weights) func(*state.State) int {
	return func(s *state.State) int {
		return Estimate(w, s)
	}
}

func Estimate(w Weights, s *state.State) int {
	rem := s.Remaining()
	n := rem.Placeable()
	if n == 0 {
		return 0
	}
	f := s.Field()
	steps := -1
	f.FloodFillFromTurtle(s.Pose().Pos, func(p geom.Pos, d int) bool {
		r := rem.At(p)
		if r == nil || r.Owner() != nil {
			return false
		}
		if !r.IsConditionSatisfied(f, rem) || !r.IsReachable(f) {
			return false
		}
		steps = d
		return true
	})
	return n*w.BlockWeight + distanceTerm(w, steps)
}

func distanceTerm(w Weights, steps int) int {
	if steps < 0 {
		return w.Far
	}
	d := steps - w.Near
	if d < 0 {
		return 0
	}
	if d > w.Far {
		return w.Far
	}
	return d
}
