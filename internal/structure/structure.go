// Package structure turns a structure document into the pending blocks, pre-existing
// solid cells and supply pose a planning run starts from.
package structure

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelplan.ai/internal/catalogs"
	"voxelplan.ai/internal/inventory"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/rules"
)

//go:embed structure.schema.json
var schemaText string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("structure.schema.json", schemaText)
	})
	return schema, schemaErr
}

// Doc is the on-disk structure document. Cells are indexed x fastest, then z, then y;
// palette index 0 is air.
type Doc struct {
	Name    string         `json:"name,omitempty"`
	Size    [3]int         `json:"size"`
	Origin  Origin         `json:"origin"`
	Palette []PaletteEntry `json:"palette"`

	// Blocks is an RLE palette stream covering the whole grid; Cells is the sparse
	// alternative.
	Blocks string `json:"blocks,omitempty"`
	Cells  []Cell `json:"cells,omitempty"`

	// Existing is an RLE stream of 0/1 marking cells that are already solid.
	Existing      string   `json:"existing,omitempty"`
	ExistingCells [][3]int `json:"existing_cells,omitempty"`
}

type Origin struct {
	Pos     [3]int `json:"pos"`
	Heading string `json:"heading,omitempty"`
}

type PaletteEntry struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

type Cell struct {
	Pos   [3]int `json:"pos"`
	State int    `json:"state"`
}

// Parse validates raw against the structure schema and decodes it.
func Parse(raw []byte) (*Doc, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("structure schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	var d Doc
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	return &d, nil
}

func Read(path string) (*Doc, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	d, err := Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, raw, nil
}

// Digest identifies a structure document by content.
func Digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Structure is a built document: everything the planner needs besides tuning.
type Structure struct {
	Name      string
	Size      geom.Pos
	Supply    geom.Pose
	Remaining rules.Remaining
	// Solid marks pre-existing blocks, indexed like the field.
	Solid []bool
}

type Options struct {
	// LiquidDepth is passed to liquid rules whose catalog entry sets no depth.
	LiquidDepth int
}

func index(size, p geom.Pos) int { return (p.Y*size.Z+p.Z)*size.X + p.X }

func posOf(v [3]int) geom.Pos { return geom.Pos{X: v[0], Y: v[1], Z: v[2]} }

// Build resolves every non-air cell through the catalog and the rule registry. Rule ids
// follow cell order, so the same document always yields the same ids.
func Build(d *Doc, cat *catalogs.RuleCatalog, reg *rules.Registry, opt Options) (*Structure, error) {
	size := posOf(d.Size)
	n := size.X * size.Y * size.Z
	st := &Structure{Name: d.Name, Size: size, Remaining: rules.Remaining{}}

	heading, ok := geom.ParseHeading(d.Origin.Heading)
	if !ok {
		return nil, fmt.Errorf("structure: bad heading %q", d.Origin.Heading)
	}
	st.Supply = geom.Pose{Pos: posOf(d.Origin.Pos), Heading: heading}
	if !st.Supply.Pos.InBounds(size) {
		return nil, fmt.Errorf("structure: origin %v outside %v", st.Supply.Pos, size)
	}

	solid, err := existing(d, size, n)
	if err != nil {
		return nil, err
	}
	st.Solid = solid
	if solid[index(size, st.Supply.Pos)] {
		return nil, fmt.Errorf("structure: origin %v is solid", st.Supply.Pos)
	}

	cells, err := states(d, size, n)
	if err != nil {
		return nil, err
	}

	nextID := 0
	newID := func() int { nextID++; return nextID }
	put := func(k geom.Key, r rules.Rule) error {
		if !r.Pos().InBounds(size) {
			return fmt.Errorf("structure: %s at %v extends outside the grid", r.Item(), r.Pos())
		}
		if prev, dup := st.Remaining[k]; dup {
			return fmt.Errorf("structure: %s and %s both occupy %v", prev.Item(), r.Item(), k)
		}
		if solid[index(size, r.Pos())] {
			return fmt.Errorf("structure: %s at %v overlaps an existing block", r.Item(), r.Pos())
		}
		st.Remaining[k] = r
		return nil
	}

	for i, state := range cells {
		if state == 0 {
			continue
		}
		if int(state) >= len(d.Palette) {
			return nil, fmt.Errorf("structure: cell %d: palette index %d out of range", i, state)
		}
		pe := d.Palette[state]
		e := cat.Resolve(pe.Name)
		if e.Family == catalogs.FamilyAir {
			continue
		}
		p := geom.Pos{X: i % size.X, Z: (i / size.X) % size.Z, Y: i / (size.X * size.Z)}
		r, companions, err := reg.Build(e.Family, rules.Spec{
			ID:     newID(),
			Pos:    p,
			Name:   e.Name,
			Item:   e.Item,
			Props:  pe.Properties,
			Params: withDepth(e.Params, opt.LiquidDepth),
			NewID:  newID,
		})
		if err != nil {
			return nil, fmt.Errorf("structure: %w", err)
		}
		if r == nil {
			continue
		}
		if err := put(p.Key(), r); err != nil {
			return nil, err
		}
		for _, x := range r.Extras() {
			if err := put(x.Pos().Key(), x); err != nil {
				return nil, err
			}
		}
		for _, c := range companions {
			if err := put(p.LiquidKey(), c); err != nil {
				return nil, err
			}
		}
	}
	if _, ok := st.Remaining[st.Supply.Pos.Key()]; ok {
		return nil, fmt.Errorf("structure: origin %v is a planned block", st.Supply.Pos)
	}
	return st, nil
}

func withDepth(params map[string]string, depth int) map[string]string {
	if depth <= 0 || params["depth"] != "" {
		return params
	}
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["depth"] = strconv.Itoa(depth)
	return out
}

func states(d *Doc, size geom.Pos, n int) ([]uint16, error) {
	if d.Blocks != "" {
		ids, err := DecodeRLE(d.Blocks, n)
		if err != nil {
			return nil, fmt.Errorf("structure: blocks: %w", err)
		}
		return ids, nil
	}
	ids := make([]uint16, n)
	for _, c := range d.Cells {
		p := posOf(c.Pos)
		if !p.InBounds(size) {
			return nil, fmt.Errorf("structure: cell %v outside %v", p, size)
		}
		if c.State > 0xFFFF {
			return nil, fmt.Errorf("structure: cell %v: palette index %d out of range", p, c.State)
		}
		ids[index(size, p)] = uint16(c.State)
	}
	return ids, nil
}

func existing(d *Doc, size geom.Pos, n int) ([]bool, error) {
	solid := make([]bool, n)
	if d.Existing != "" {
		bits, err := DecodeRLE(d.Existing, n)
		if err != nil {
			return nil, fmt.Errorf("structure: existing: %w", err)
		}
		for i, b := range bits {
			solid[i] = b != 0
		}
	}
	for _, c := range d.ExistingCells {
		p := posOf(c)
		if !p.InBounds(size) {
			return nil, fmt.Errorf("structure: existing cell %v outside %v", p, size)
		}
		solid[index(size, p)] = true
	}
	return solid, nil
}

// Materials counts the items the remaining blocks consume, sorted by item.
func (s *Structure) Materials() []inventory.Line {
	counts := map[string]int{}
	for _, r := range s.Remaining {
		if r.Owner() != nil {
			continue
		}
		counts[r.Item()]++
	}
	out := make([]inventory.Line, 0, len(counts))
	for it, c := range counts {
		out = append(out, inventory.Line{Item: it, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

func (s *Structure) Problem() planner.Problem {
	return planner.Problem{Size: s.Size, Supply: s.Supply, Remaining: s.Remaining, Solid: s.Solid}
}
