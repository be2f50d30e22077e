package rules

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"voxelplan.ai/internal/plan/geom"
)

var (
	ErrUnknownFamily   = errors.New("unknown rule family")
	ErrMissingProperty = errors.New("missing property")
	ErrInvalidProperty = errors.New("invalid property")
)

// Spec is everything a factory gets to build one rule.
type Spec struct {
	ID   int
	Pos  geom.Pos
	Name string
	Item string
	// Props are the block-state properties of the cell ("facing", "half", ...).
	Props map[string]string
	// Params come from the catalog entry for the block type.
	Params map[string]string
	// NewID hands out ids for extras and liquid companions.
	NewID func() int
}

func (s Spec) intParam(key string) int {
	v, err := strconv.Atoi(s.Params[key])
	if err != nil {
		return 0
	}
	return v
}

// Factory builds the rule for one cell. A nil rule with a nil error means the cell is
// covered by another rule (the upper half of a door, a piston head).
type Factory func(Spec) (Rule, error)

// Registry maps family names to factories. It is built once and passed explicitly to
// whoever loads structures.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(FamilySimple, newSimple)
	r.Register(FamilyAxis, newAxis)
	r.Register(FamilyFacing, newFacing)
	r.Register(FamilyFaceAttached, newFaceAttached)
	r.Register(FamilyWallAttached, newWallAttached)
	r.Register(FamilyBottomSupported, newBottomSupported)
	r.Register(FamilyTopSupported, newTopSupported)
	r.Register(FamilyStairs, newStairs)
	r.Register(FamilySlab, newSlab)
	r.Register(FamilyDoor, newDoor)
	r.Register(FamilyTwoTall, newTwoTall)
	r.Register(FamilyHopper, newHopper)
	r.Register(FamilyPiston, newPiston)
	r.Register(FamilyRepeater, newRepeater)
	r.Register(FamilyLiquid, newLiquid)
	r.Register(FamilyPistonHead, pistonHeadSkip)
	return r
}

func (r *Registry) Register(family string, f Factory) { r.factories[family] = f }

func (r *Registry) Families() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build runs the family factory for s. A cell with waterlogged=true also yields a
// layered liquid companion, whose item comes from the "liquid_item" param.
func (r *Registry) Build(family string, s Spec) (Rule, []Rule, error) {
	f, ok := r.factories[family]
	if !ok {
		return nil, nil, fmt.Errorf("rules: %s at %v: %w %q", s.Name, s.Pos, ErrUnknownFamily, family)
	}
	if s.NewID == nil {
		next := s.ID
		s.NewID = func() int { next++; return next }
	}
	rule, err := f(s)
	if err != nil {
		return nil, nil, err
	}
	if rule == nil || rule.Liquid() || s.Props["waterlogged"] != "true" {
		return rule, nil, nil
	}
	item := s.Params["liquid_item"]
	if item == "" {
		item = "water_bucket"
	}
	companion := Layered(Spec{ID: s.NewID(), Pos: s.Pos, Name: s.Name, Item: item}, s.intParam("depth"))
	return rule, []Rule{companion}, nil
}
