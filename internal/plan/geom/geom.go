package geom

import "strconv"

// Pos is a grid cell. +X is east, +Y is up, +Z is south.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p Pos) Add(o Pos) Pos { return Pos{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z} }
func (p Pos) Sub(o Pos) Pos { return Pos{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z} }
func (p Pos) Neg() Pos      { return Pos{X: -p.X, Y: -p.Y, Z: -p.Z} }

// IsUnit reports whether p is one of the six axis-aligned unit vectors.
func (p Pos) IsUnit() bool {
	return abs(p.X)+abs(p.Y)+abs(p.Z) == 1
}

// Manhattan returns the L1 distance between a and b.
func Manhattan(a, b Pos) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y) + abs(a.Z-b.Z)
}

// InBounds reports whether p lies inside a grid of the given size anchored at the origin.
func (p Pos) InBounds(size Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.Z >= 0 && p.X < size.X && p.Y < size.Y && p.Z < size.Z
}

func (p Pos) String() string {
	b := make([]byte, 0, 16)
	b = strconv.AppendInt(b, int64(p.X), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(p.Y), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(p.Z), 10)
	return string(b)
}

// Key returns the primary map key of the cell.
func (p Pos) Key() Key { return Key{Pos: p} }

// LiquidKey returns the key of a liquid layered into the same cell as another block.
func (p Pos) LiquidKey() Key { return Key{Pos: p, Layer: LayerLiquid} }

const (
	LayerPrimary uint8 = 0
	LayerLiquid  uint8 = 1
)

// Key identifies a pending block in the remaining set: a cell plus a layer.
type Key struct {
	Pos
	Layer uint8
}

func (k Key) String() string {
	if k.Layer == LayerLiquid {
		return k.Pos.String() + "~"
	}
	return k.Pos.String()
}

// Common unit vectors.
var (
	East  = Pos{X: 1}
	West  = Pos{X: -1}
	Up    = Pos{Y: 1}
	Down  = Pos{Y: -1}
	South = Pos{Z: 1}
	North = Pos{Z: -1}
)

// Pose is the agent position plus its horizontal heading as a unit vector.
type Pose struct {
	Pos     Pos `json:"pos"`
	Heading Pos `json:"heading"`
}

func (p Pose) Forward() Pos { return p.Pos.Add(p.Heading) }
func (p Pose) Behind() Pos  { return p.Pos.Sub(p.Heading) }
func (p Pose) Above() Pos   { return p.Pos.Add(Up) }
func (p Pose) Below() Pos   { return p.Pos.Add(Down) }

func (p Pose) TurnLeft() Pose {
	p.Heading = RotateOffset(p.Heading, 1)
	return p
}

func (p Pose) TurnRight() Pose {
	p.Heading = RotateOffset(p.Heading, 3)
	return p
}

// ParseHeading converts a compass name into a heading vector.
func ParseHeading(s string) (Pos, bool) {
	switch s {
	case "east":
		return East, true
	case "west":
		return West, true
	case "south":
		return South, true
	case "north", "":
		return North, true
	}
	return Pos{}, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
