package planner

import (
	"errors"
	"fmt"

	"voxelplan.ai/internal/plan/state"
)

var ErrReplayMismatch = errors.New("replay does not match the plan")

// Replay re-executes plan against p through the state transition function alone. It
// returns the state before every action plus the final state, so states[i] is where
// plan.Actions[i] was taken. Chunk boundaries are re-gated the same way Run does.
func Replay(p Problem, cfg Config, plan *Plan) ([]*state.State, error) {
	chunks := Split(p.Remaining, plan.LayersPerChunk)
	if len(chunks) != len(plan.Chunks) {
		return nil, fmt.Errorf("planner: replay: %d chunks, plan has %d: %w", len(chunks), len(plan.Chunks), ErrReplayMismatch)
	}

	states := make([]*state.State, 0, len(plan.Actions)+1)
	f := p.field()
	pose := p.Supply
	inv := newInventory(cfg.InventorySlots, cfg.StackSizes)
	total := 0
	next := 0

	var cur *state.State
	for i, c := range chunks {
		stats := plan.Chunks[i]
		if next+stats.Actions > len(plan.Actions) {
			return nil, fmt.Errorf("planner: replay: chunk %d runs past the action list: %w", i, ErrReplayMismatch)
		}
		cur = chunkStart(c, p.Supply, cfg.Costs, f, pose, inv)
		cost := 0
		for _, a := range plan.Actions[next : next+stats.Actions] {
			states = append(states, cur)
			n, ac, err := cur.Execute(state.Action{Kind: a.Kind, Target: a.Target, BlockID: a.BlockID})
			if err != nil {
				return nil, fmt.Errorf("planner: replay: action %d (%v): %w", next, a, err)
			}
			cur = n
			cost += ac
			next++
		}
		if !cur.Done() {
			return nil, fmt.Errorf("planner: replay: chunk %d leaves %d blocks: %w", i, len(cur.Remaining()), ErrReplayMismatch)
		}
		if cur.Hash() != stats.EndHash || cost != stats.Cost {
			return nil, fmt.Errorf("planner: replay: chunk %d ends at hash %x cost %d, plan says %x cost %d: %w",
				i, cur.Hash(), cost, stats.EndHash, stats.Cost, ErrReplayMismatch)
		}
		total += cost
		f = cur.Field()
		pose = cur.Pose()
		inv = cur.Inventory()
	}
	if next != len(plan.Actions) || total != plan.Cost {
		return nil, fmt.Errorf("planner: replay: %d of %d actions, cost %d vs %d: %w", next, len(plan.Actions), total, plan.Cost, ErrReplayMismatch)
	}
	if cur == nil {
		cur = chunkStart(Chunk{}, p.Supply, cfg.Costs, f, pose, inv)
	}
	return append(states, cur), nil
}
