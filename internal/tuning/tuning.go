// Package tuning holds the planner knobs that are not worth a command line flag.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voxelplan.ai/internal/inventory"
	"voxelplan.ai/internal/plan/heuristic"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/rules"
	"voxelplan.ai/internal/plan/search"
	"voxelplan.ai/internal/plan/state"
)

type Tuning struct {
	Costs     state.Costs       `yaml:"costs"`
	Heuristic heuristic.Weights `yaml:"heuristic"`
	Search    Search            `yaml:"search"`

	InventorySlots int `yaml:"inventory_slots"`
	LayersPerChunk int `yaml:"layers_per_chunk"`
	LiquidDepth    int `yaml:"liquid_depth"`
}

type Search struct {
	Schedule search.Schedule `yaml:",inline"`

	MaxExpansions int `yaml:"max_expansions"`
	ProgressEvery int `yaml:"progress_every"`
}

func Defaults() Tuning {
	cfg := search.DefaultConfig()
	return Tuning{
		Costs:     state.DefaultCosts(),
		Heuristic: heuristic.DefaultWeights(),
		Search: Search{
			Schedule:      cfg.Schedule,
			MaxExpansions: cfg.MaxExpansions,
			ProgressEvery: cfg.ProgressEvery,
		},
		InventorySlots: 16,
		LayersPerChunk: 4,
		LiquidDepth:    rules.DefaultLiquidDepth,
	}
}

// Load reads path over the defaults, so a file only lists what it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Normalize(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values with defaults and rejects settings the planner cannot run
// with.
func (t *Tuning) Normalize() error {
	d := Defaults()
	if t.Costs.Move <= 0 {
		t.Costs.Move = d.Costs.Move
	}
	if t.Costs.Vertical <= 0 {
		t.Costs.Vertical = d.Costs.Vertical
	}
	if t.Costs.Turn <= 0 {
		t.Costs.Turn = d.Costs.Turn
	}
	if t.Costs.Place <= 0 {
		t.Costs.Place = d.Costs.Place
	}
	if t.Costs.ResupplyFarMultiplier <= 0 {
		t.Costs.ResupplyFarMultiplier = d.Costs.ResupplyFarMultiplier
	}
	if t.Costs.ResupplyNearRadius < 0 {
		return fmt.Errorf("costs.resupply_near_radius: %d < 0", t.Costs.ResupplyNearRadius)
	}
	if t.Heuristic.BlockWeight <= 0 {
		t.Heuristic.BlockWeight = d.Heuristic.BlockWeight
	}
	if t.Heuristic.Far < t.Heuristic.Near {
		return fmt.Errorf("heuristic: far %d < near %d", t.Heuristic.Far, t.Heuristic.Near)
	}

	s := &t.Search.Schedule
	if s.Initial < 0 || s.Step < 0 {
		return fmt.Errorf("search: negative weight schedule")
	}
	if s.Max < s.Initial {
		s.Max = s.Initial
	}
	if s.Patience <= 0 {
		s.Patience = d.Search.Schedule.Patience
	}
	if t.Search.MaxExpansions < 0 {
		return fmt.Errorf("search.max_expansions: %d < 0", t.Search.MaxExpansions)
	}

	if t.InventorySlots <= 0 {
		t.InventorySlots = d.InventorySlots
	}
	if t.LayersPerChunk <= 0 {
		t.LayersPerChunk = d.LayersPerChunk
	}
	if t.LiquidDepth <= 0 {
		t.LiquidDepth = d.LiquidDepth
	}
	return nil
}

// SearchConfig is the search configuration without a progress callback.
func (t Tuning) SearchConfig() search.Config {
	return search.Config{
		Schedule:      t.Search.Schedule,
		MaxExpansions: t.Search.MaxExpansions,
		ProgressEvery: t.Search.ProgressEvery,
	}
}

// PlannerConfig builds a planner configuration; callers attach logging and callbacks.
func (t Tuning) PlannerConfig(stacks inventory.StackSizes) planner.Config {
	return planner.Config{
		Costs:          t.Costs,
		Heuristic:      t.Heuristic,
		Search:         t.SearchConfig(),
		LayersPerChunk: t.LayersPerChunk,
		InventorySlots: t.InventorySlots,
		StackSizes:     stacks,
	}
}
