// Package dirs is the six-direction flag algebra shared by the reachability field
// and every placement rule.
//
// Bit layout: East=1 West=2 Up=4 Down=8 South=16 North=32. Opposite directions sit in
// adjacent bits, which is what makes Mirror a pair of shifts.
package dirs

import (
	"math/bits"
	"strings"

	"voxelplan.ai/internal/plan/geom"
)

type Mask uint8

const (
	East Mask = 1 << iota
	West
	Up
	Down
	South
	North
)

const (
	None       Mask = 0
	All        Mask = East | West | Up | Down | South | North
	Horizontal Mask = East | West | South | North
	Vertical   Mask = Up | Down

	low  = East | Up | South
	high = West | Down | North
)

// Order is the canonical iteration order.
var Order = [6]Mask{East, West, Up, Down, South, North}

// Units holds the unit vector of each direction, index-aligned with Order.
var Units = [6]geom.Pos{geom.East, geom.West, geom.Up, geom.Down, geom.South, geom.North}

// FromVector returns the flag for a unit axis vector, checking x, then y, then z.
// It returns None for the zero vector.
func FromVector(v geom.Pos) Mask {
	switch {
	case v.X > 0:
		return East
	case v.X < 0:
		return West
	case v.Y > 0:
		return Up
	case v.Y < 0:
		return Down
	case v.Z > 0:
		return South
	case v.Z < 0:
		return North
	}
	return None
}

// Mirror maps every set direction onto its opposite. It also works on multi-bit masks.
func Mirror(d Mask) Mask {
	return ((d & low) << 1) | ((d & high) >> 1)
}

func Count(m Mask) int { return bits.OnesCount8(uint8(m & All)) }

// Vector returns the unit vector of a single direction.
func Vector(d Mask) geom.Pos {
	for i, o := range Order {
		if d == o {
			return Units[i]
		}
	}
	return geom.Pos{}
}

// Vectors lists the unit vectors of the set bits in E, W, Up, Down, S, N order.
func Vectors(m Mask) []geom.Pos {
	out := make([]geom.Pos, 0, Count(m))
	for i, o := range Order {
		if m&o != 0 {
			out = append(out, Units[i])
		}
	}
	return out
}

func (m Mask) Has(d Mask) bool { return m&d != 0 }

// Each calls fn for every set direction in canonical order.
func (m Mask) Each(fn func(d Mask, v geom.Pos)) {
	for i, o := range Order {
		if m&o != 0 {
			fn(o, Units[i])
		}
	}
}

var names = [6]string{"E", "W", "U", "D", "S", "N"}

func (m Mask) String() string {
	if m&All == 0 {
		return "-"
	}
	var sb strings.Builder
	for i, o := range Order {
		if m&o != 0 {
			sb.WriteString(names[i])
		}
	}
	return sb.String()
}

// Parse converts a block-state direction name ("north", "up", ...) into a flag.
func Parse(s string) (Mask, bool) {
	switch s {
	case "east":
		return East, true
	case "west":
		return West, true
	case "up":
		return Up, true
	case "down":
		return Down, true
	case "south":
		return South, true
	case "north":
		return North, true
	}
	return None, false
}
