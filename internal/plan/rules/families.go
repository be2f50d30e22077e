package rules

import (
	"fmt"

	"voxelplan.ai/internal/plan/dirs"
	"voxelplan.ai/internal/plan/geom"
)

// Family names understood by the default registry.
const (
	FamilySimple          = "simple"
	FamilyAxis            = "axis"
	FamilyFacing          = "facing"
	FamilyFaceAttached    = "face_attached"
	FamilyWallAttached    = "wall_attached"
	FamilyBottomSupported = "bottom_supported"
	FamilyTopSupported    = "top_supported"
	FamilyStairs          = "stairs"
	FamilySlab            = "slab"
	FamilyDoor            = "door"
	FamilyTwoTall         = "two_tall"
	FamilyHopper          = "hopper"
	FamilyPiston          = "piston"
	FamilyRepeater        = "repeater"
	FamilyLiquid          = "liquid"
	FamilyPistonHead      = "piston_head"

	familyExtra = "extra"
)

func newPlacement(s Spec, family string) *placement {
	return &placement{
		base:     base{id: s.ID, pos: s.Pos, item: s.Item, family: family},
		approach: Anywhere,
		deadlock: 1,
	}
}

func (p *placement) addExtra(s Spec, at geom.Pos, head bool) {
	x := &extra{
		base:  base{id: s.NewID(), pos: at, family: familyExtra},
		owner: p,
		head:  head,
	}
	p.extras = append(p.extras, x)
}

func newSimple(s Spec) (Rule, error) {
	return newPlacement(s, FamilySimple), nil
}

// newAxis: logs, pillars. Placed against either end of the axis.
func newAxis(s Spec) (Rule, error) {
	p := newPlacement(s, FamilyAxis)
	switch s.prop("axis", "y") {
	case "x":
		p.approach = From(dirs.East | dirs.West)
	case "y":
		p.approach = From(dirs.Up | dirs.Down)
	case "z":
		p.approach = From(dirs.South | dirs.North)
	default:
		return nil, s.invalid("axis")
	}
	// Losing one end leaves a single side, and the two ends exclude each other.
	p.deadlock = 2
	return p, nil
}

// newFacing: furnaces, chests, observers. The block faces the agent that placed it.
func newFacing(s Spec) (Rule, error) {
	f, err := s.facing(false)
	if err != nil {
		return nil, err
	}
	if s.Params["invert"] == "true" {
		f = dirs.Mirror(f)
	}
	p := newPlacement(s, FamilyFacing)
	p.approach = From(f)
	return p, nil
}

// newFaceAttached: buttons and levers, attached to the floor, the ceiling or a wall.
func newFaceAttached(s Spec) (Rule, error) {
	f, err := s.facing(true)
	if err != nil {
		return nil, err
	}
	var attach dirs.Mask
	switch s.prop("face", "wall") {
	case "floor":
		attach = dirs.Down
	case "ceiling":
		attach = dirs.Up
	case "wall":
		attach = dirs.Mirror(f)
	default:
		return nil, s.invalid("face")
	}
	p := newPlacement(s, FamilyFaceAttached)
	p.checks = []Check{Support{Dir: attach}}
	p.approach = From(dirs.Mirror(attach))
	if attach&dirs.Vertical != 0 {
		p.vertical = dirs.Vector(f)
	}
	return p, nil
}

// newWallAttached: wall torches, wall signs, ladders. facing points away from the wall.
func newWallAttached(s Spec) (Rule, error) {
	f, err := s.facing(true)
	if err != nil {
		return nil, err
	}
	p := newPlacement(s, FamilyWallAttached)
	p.checks = []Check{Support{Dir: dirs.Mirror(f)}}
	p.approach = From(f)
	return p, nil
}

func newBottomSupported(s Spec) (Rule, error) {
	p := newPlacement(s, FamilyBottomSupported)
	p.checks = []Check{Support{Dir: dirs.Down}}
	p.approach = From(dirs.Horizontal | dirs.Up)
	return p, nil
}

func newTopSupported(s Spec) (Rule, error) {
	p := newPlacement(s, FamilyTopSupported)
	p.checks = []Check{Support{Dir: dirs.Up}}
	p.approach = From(dirs.Horizontal | dirs.Down)
	return p, nil
}

// newStairs places from behind the step, or vertically onto the half it sits in.
func newStairs(s Spec) (Rule, error) {
	f, err := s.facing(true)
	if err != nil {
		return nil, err
	}
	p := newPlacement(s, FamilyStairs)
	half := dirs.Up
	switch s.prop("half", "bottom") {
	case "bottom":
	case "top":
		half = dirs.Down
	default:
		return nil, s.invalid("half")
	}
	p.approach = From(dirs.Mirror(f) | half)
	p.vertical = dirs.Vector(f)
	return p, nil
}

func newSlab(s Spec) (Rule, error) {
	p := newPlacement(s, FamilySlab)
	switch s.prop("type", "bottom") {
	case "bottom":
		p.approach = From(dirs.Horizontal | dirs.Up)
	case "top":
		p.approach = From(dirs.Down)
	case "double":
	default:
		return nil, s.invalid("type")
	}
	return p, nil
}

// newDoor returns the lower half; the upper half rides along as an extra.
func newDoor(s Spec) (Rule, error) {
	if s.prop("half", "lower") == "upper" {
		return nil, nil
	}
	f, err := s.facing(true)
	if err != nil {
		return nil, err
	}
	p := newPlacement(s, FamilyDoor)
	p.checks = []Check{Support{Dir: dirs.Down}, Clearance{Dir: dirs.Up}}
	p.approach = From(dirs.Mirror(f))
	p.addExtra(s, s.Pos.Add(geom.Up), false)
	return p, nil
}

// newTwoTall: tall grass, sunflowers and similar two-cell plants.
func newTwoTall(s Spec) (Rule, error) {
	if s.prop("half", "lower") == "upper" {
		return nil, nil
	}
	p := newPlacement(s, FamilyTwoTall)
	p.checks = []Check{Support{Dir: dirs.Down}, Clearance{Dir: dirs.Up}}
	p.approach = From(dirs.Horizontal)
	p.addExtra(s, s.Pos.Add(geom.Up), false)
	return p, nil
}

// newHopper: the spout points into the block the agent clicked.
func newHopper(s Spec) (Rule, error) {
	p := newPlacement(s, FamilyHopper)
	f, ok := dirs.Parse(s.prop("facing", "down"))
	if !ok || f == dirs.Up {
		return nil, s.invalid("facing")
	}
	if f == dirs.Down {
		p.approach = From(dirs.Up)
		return p, nil
	}
	p.checks = []Check{Support{Dir: f}}
	p.approach = From(dirs.Mirror(f))
	return p, nil
}

// newPiston faces the agent. An extended piston also occupies the cell in front of it,
// which is where the agent stood while placing.
func newPiston(s Spec) (Rule, error) {
	f, err := s.facing(false)
	if err != nil {
		return nil, err
	}
	p := newPlacement(s, FamilyPiston)
	p.approach = From(f)
	if s.prop("extended", "false") == "true" {
		p.addExtra(s, s.Pos.Add(dirs.Vector(f)), true)
	}
	return p, nil
}

// newRepeater: repeaters and comparators, on a floor, oriented by the agent heading.
func newRepeater(s Spec) (Rule, error) {
	f, err := s.facing(true)
	if err != nil {
		return nil, err
	}
	p := newPlacement(s, FamilyRepeater)
	p.checks = []Check{Support{Dir: dirs.Down}}
	p.approach = From(dirs.Mirror(f) | dirs.Up)
	p.vertical = dirs.Vector(f)
	return p, nil
}

// pistonHeadSkip drops structure cells that an extended piston already accounts for.
func pistonHeadSkip(Spec) (Rule, error) { return nil, nil }

func (s Spec) prop(key, def string) string {
	if v, ok := s.Props[key]; ok && v != "" {
		return v
	}
	return def
}

func (s Spec) facing(horizontal bool) (dirs.Mask, error) {
	v, ok := s.Props["facing"]
	if !ok || v == "" {
		return dirs.None, fmt.Errorf("rules: %s at %v: %w %q", s.Name, s.Pos, ErrMissingProperty, "facing")
	}
	f, ok := dirs.Parse(v)
	if !ok || (horizontal && f&dirs.Horizontal == 0) {
		return dirs.None, s.invalid("facing")
	}
	return f, nil
}

func (s Spec) invalid(key string) error {
	return fmt.Errorf("rules: %s at %v: %w %s=%q", s.Name, s.Pos, ErrInvalidProperty, key, s.Props[key])
}
