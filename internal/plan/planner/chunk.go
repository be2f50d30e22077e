package planner

import (
	"sort"

	"github.com/zyedidia/generic/mapset"

	"voxelplan.ai/internal/plan/rules"
)

// Chunk is one horizontal band of pending blocks, planned as a unit.
type Chunk struct {
	Index     int
	MinY      int
	MaxY      int
	Remaining rules.Remaining
}

// Split cuts rem into bands of layers rows, bottom first. An extra goes with its owner,
// so a door whose upper half crosses a band edge stays in one chunk. Empty bands are
// skipped.
//
// A block whose support is in a later band sees no block coming there and is not
// placeable; such structures need more layers per chunk.
func Split(rem rules.Remaining, layers int) []Chunk {
	if layers <= 0 {
		layers = 1
	}
	band := func(r rules.Rule) int {
		if o := r.Owner(); o != nil {
			r = o
		}
		return r.Pos().Y / layers
	}

	bands := mapset.New[int]()
	byBand := map[int]rules.Remaining{}
	for k, r := range rem {
		b := band(r)
		if !bands.Has(b) {
			bands.Put(b)
			byBand[b] = rules.Remaining{}
		}
		byBand[b][k] = r
	}

	order := make([]int, 0, bands.Size())
	bands.Each(func(b int) { order = append(order, b) })
	sort.Ints(order)

	out := make([]Chunk, 0, len(order))
	for i, b := range order {
		out = append(out, Chunk{
			Index:     i,
			MinY:      b * layers,
			MaxY:      b*layers + layers - 1,
			Remaining: byBand[b],
		})
	}
	return out
}
