// Package planfile stores plans as zstd-compressed files: one JSON header line
// followed by a gob body.
package planfile

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/state"
)

const Version = 1

type Header struct {
	Version         int       `json:"version"`
	RunID           string    `json:"run_id"`
	Structure       string    `json:"structure"`
	StructureDigest string    `json:"structure_digest"`
	CatalogDigest   string    `json:"catalog_digest"`
	Created         time.Time `json:"created"`
	Actions         int       `json:"actions"`
	Cost            int       `json:"cost"`
}

// PlanV1 carries the plan plus every setting Replay needs to rebuild the same states.
type PlanV1 struct {
	Header Header `json:"header"`

	LayersPerChunk int         `json:"layers_per_chunk"`
	InventorySlots int         `json:"inventory_slots"`
	Costs          state.Costs `json:"costs"`
	// LiquidDepth is the structure build option; FromPlan leaves it to the caller.
	LiquidDepth int `json:"liquid_depth"`

	Actions []ActionV1           `json:"actions"`
	Chunks  []planner.ChunkStats `json:"chunks"`
	Elapsed time.Duration        `json:"elapsed"`
}

type ActionV1 struct {
	Kind    string `json:"kind"`
	Target  [3]int `json:"target,omitempty"`
	BlockID int    `json:"block_id,omitempty"`
}

// FromPlan fills everything but the structure and catalog fields of the header.
func FromPlan(p *planner.Plan, cfg planner.Config) PlanV1 {
	out := PlanV1{
		Header: Header{
			Version: Version,
			RunID:   p.RunID,
			Created: time.Now().UTC(),
			Actions: len(p.Actions),
			Cost:    p.Cost,
		},
		LayersPerChunk: p.LayersPerChunk,
		InventorySlots: cfg.InventorySlots,
		Costs:          cfg.Costs,
		Actions:        make([]ActionV1, len(p.Actions)),
		Chunks:         append([]planner.ChunkStats(nil), p.Chunks...),
		Elapsed:        p.Elapsed,
	}
	for i, a := range p.Actions {
		out.Actions[i] = ActionV1{Kind: a.Kind.String(), Target: [3]int{a.Target.X, a.Target.Y, a.Target.Z}, BlockID: a.BlockID}
	}
	return out
}

// Plan converts back into a planner plan.
func (v PlanV1) Plan() (*planner.Plan, error) {
	p := &planner.Plan{
		RunID:          v.Header.RunID,
		LayersPerChunk: v.LayersPerChunk,
		Actions:        make([]state.Action, len(v.Actions)),
		Chunks:         v.Chunks,
		Cost:           v.Header.Cost,
		Elapsed:        v.Elapsed,
	}
	for i, a := range v.Actions {
		k, ok := state.ParseKind(a.Kind)
		if !ok {
			return nil, fmt.Errorf("planfile: action %d: unknown kind %q", i, a.Kind)
		}
		p.Actions[i] = state.Action{Kind: k, Target: geom.Pos{X: a.Target[0], Y: a.Target[1], Z: a.Target[2]}, BlockID: a.BlockID}
	}
	return p, nil
}

func Write(path string, v PlanV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(v.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&v); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func open(path string) (*os.File, *zstd.Decoder, *bufio.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, err
	}
	return f, dec, bufio.NewReaderSize(dec, 64*1024), nil
}

// ReadHeader decodes only the first line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, dec, br, err := open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	defer dec.Close()

	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func Read(path string) (PlanV1, error) {
	var v PlanV1
	f, dec, br, err := open(path)
	if err != nil {
		return v, err
	}
	defer f.Close()
	defer dec.Close()

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return v, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&v); err != nil {
		return v, fmt.Errorf("gob decode: %w", err)
	}
	if v.Header.Version != Version {
		return v, fmt.Errorf("planfile: version %d, want %d", v.Header.Version, Version)
	}
	return v, nil
}
