package state

import (
	"fmt"

	"voxelplan.ai/internal/plan/geom"
)

type Kind uint8

const (
	TurnLeft Kind = iota
	TurnRight
	Forward
	Back
	Up
	Down
	PlaceForward
	PlaceUp
	PlaceDown
	Resupply
)

var kindNames = [...]string{
	TurnLeft:     "turn_left",
	TurnRight:    "turn_right",
	Forward:      "forward",
	Back:         "back",
	Up:           "up",
	Down:         "down",
	PlaceForward: "place_forward",
	PlaceUp:      "place_up",
	PlaceDown:    "place_down",
	Resupply:     "resupply",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("state: unknown action %q", b)
	}
	*k = v
	return nil
}

func (k Kind) IsPlace() bool { return k == PlaceForward || k == PlaceUp || k == PlaceDown }

// Action is one agent step. Place actions carry the target cell and the id of the block
// placed there. Actions produced by PossibleActions also carry the resulting state.
type Action struct {
	Kind    Kind     `json:"kind"`
	Target  geom.Pos `json:"target"`
	BlockID int      `json:"block_id,omitempty"`

	next *State
	cost int
}

func (a Action) String() string {
	if a.Kind.IsPlace() {
		return fmt.Sprintf("%s #%d@%v", a.Kind, a.BlockID, a.Target)
	}
	return a.Kind.String()
}

// Reject says why a speculative placement was dropped.
type Reject uint8

const (
	RejectNotPlaceable Reject = iota + 1
	RejectInventory
	RejectTrapped
	RejectUnreachable
	RejectDependencyChain
)

func (r Reject) String() string {
	switch r {
	case RejectNotPlaceable:
		return "not_placeable"
	case RejectInventory:
		return "inventory"
	case RejectTrapped:
		return "trapped"
	case RejectUnreachable:
		return "unreachable"
	case RejectDependencyChain:
		return "dependency_chain"
	}
	return "unknown"
}
