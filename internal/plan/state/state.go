// Package state is the immutable game state the search walks over: remaining blocks,
// agent pose, reachability field and inventory credit. Every action yields a new State;
// nothing is mutated in place, so any number of generations can be held at once.
package state

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/reach"
	"voxelplan.ai/internal/plan/rules"
)

// Costs are the action prices.
type Costs struct {
	Move     int `yaml:"move"`
	Vertical int `yaml:"vertical"`
	Turn     int `yaml:"turn"`
	Place    int `yaml:"place"`

	// Within this manhattan distance of the supply point a resupply is priced by the
	// exact route back; further out it is distance*ResupplyFarMultiplier.
	ResupplyNearRadius    int `yaml:"resupply_near_radius"`
	ResupplyFarMultiplier int `yaml:"resupply_far_multiplier"`
}

func DefaultCosts() Costs {
	return Costs{Move: 1, Vertical: 1, Turn: 1, Place: 1, ResupplyNearRadius: 8, ResupplyFarMultiplier: 2}
}

// Env is fixed for a planning run (or a chunk of one).
type Env struct {
	Supply     geom.Pose
	Dependents rules.Dependents
	Costs      Costs
}

type State struct {
	env       *Env
	remaining rules.Remaining
	pose      geom.Pose
	field     *reach.Field
	inv       Inventory
	remHash   uint64
}

func New(env *Env, rem rules.Remaining, pose geom.Pose, field *reach.Field, inv Inventory) *State {
	var h uint64
	for _, r := range rem {
		h ^= idHash(r.ID())
	}
	return &State{env: env, remaining: rem, pose: pose, field: field, inv: inv, remHash: h}
}

func (s *State) Env() *Env                  { return s.env }
func (s *State) Remaining() rules.Remaining { return s.remaining }
func (s *State) Pose() geom.Pose            { return s.pose }
func (s *State) Field() *reach.Field        { return s.field }
func (s *State) Inventory() Inventory       { return s.inv }

// Done reports whether every block has been placed.
func (s *State) Done() bool { return len(s.remaining) == 0 }

// Hash covers remaining-set membership and pose. Equal hashes are treated as the same
// search node.
func (s *State) Hash() uint64 { return poseHash(s.remHash, s.pose) }

// RemainingHash covers remaining-set membership only.
func (s *State) RemainingHash() uint64 { return s.remHash }

// WithField swaps the field (and optionally the remaining set) while keeping everything
// else; used when the planner moves on to the next chunk.
func (s *State) WithField(env *Env, rem rules.Remaining, f *reach.Field) *State {
	return New(env, rem, s.pose, f, s.inv)
}

func idHash(id int) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return xxhash.Sum64(b[:])
}

func poseHash(rem uint64, p geom.Pose) uint64 {
	var b [8 + 6*8]byte
	binary.LittleEndian.PutUint64(b[0:], rem)
	for i, v := range [6]int{p.Pos.X, p.Pos.Y, p.Pos.Z, p.Heading.X, p.Heading.Y, p.Heading.Z} {
		binary.LittleEndian.PutUint64(b[8+i*8:], uint64(int64(v)))
	}
	return xxhash.Sum64(b[:])
}
