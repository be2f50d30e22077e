package planner

import (
	"voxelplan.ai/internal/inventory"
	"voxelplan.ai/internal/plan/state"
)

// credit adapts the slot-packing inventory to the state package.
type credit struct {
	inventory.Credit
}

func (c credit) Add(items []string) state.Inventory { return credit{c.Credit.Add(items)} }
func (c credit) Reset() state.Inventory             { return credit{c.Credit.Reset()} }

func newInventory(slots int, stacks inventory.StackSizes) state.Inventory {
	if slots <= 0 {
		return state.Unlimited{}
	}
	return credit{inventory.New(slots, stacks)}
}
