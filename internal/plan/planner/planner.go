// Package planner drives the search chunk by chunk and produces a complete plan for a
// structure.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"voxelplan.ai/internal/inventory"
	"voxelplan.ai/internal/plan/geom"
	"voxelplan.ai/internal/plan/heuristic"
	"voxelplan.ai/internal/plan/reach"
	"voxelplan.ai/internal/plan/rules"
	"voxelplan.ai/internal/plan/search"
	"voxelplan.ai/internal/plan/state"
)

// Problem is a structure ready to plan.
type Problem struct {
	Size      geom.Pos
	Supply    geom.Pose
	Remaining rules.Remaining
	// Solid marks cells that are already occupied, indexed like reach.Field.
	Solid []bool
}

type Config struct {
	// RunID names the run; empty means a fresh uuid.
	RunID string

	Costs     state.Costs
	Heuristic heuristic.Weights
	Search    search.Config

	LayersPerChunk int
	// InventorySlots of 0 means the agent never runs out.
	InventorySlots int
	StackSizes     inventory.StackSizes

	// Logger may be nil.
	Logger *log.Logger
	// Progress, if set, receives search progress tagged with the chunk index.
	Progress func(chunk int, p search.Progress)
	// OnChunk is called after each solved chunk.
	OnChunk func(ChunkStats)
}

func DefaultConfig() Config {
	return Config{
		Costs:          state.DefaultCosts(),
		Heuristic:      heuristic.DefaultWeights(),
		Search:         search.DefaultConfig(),
		LayersPerChunk: 4,
	}
}

type ChunkStats struct {
	Index    int           `json:"index"`
	MinY     int           `json:"min_y"`
	MaxY     int           `json:"max_y"`
	Blocks   int           `json:"blocks"`
	Actions  int           `json:"actions"`
	Cost     int           `json:"cost"`
	Expanded int           `json:"expanded"`
	Weight   float64       `json:"weight"`
	EndHash  uint64        `json:"end_hash"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Plan is the ordered action list for a whole structure.
type Plan struct {
	RunID          string         `json:"run_id"`
	LayersPerChunk int            `json:"layers_per_chunk"`
	Actions        []state.Action `json:"actions"`
	Chunks         []ChunkStats   `json:"chunks"`
	Cost           int            `json:"cost"`
	Elapsed        time.Duration  `json:"elapsed"`
}

// InfeasibleError reports the chunk the search gave up on.
type InfeasibleError struct {
	Chunk  int
	MinY   int
	MaxY   int
	Blocks int
	Err    error
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("planner: chunk %d (y %d..%d, %d blocks) infeasible: %v", e.Chunk, e.MinY, e.MaxY, e.Blocks, e.Err)
}

func (e *InfeasibleError) Unwrap() error { return e.Err }

func (p Problem) field() *reach.Field {
	return reach.New(p.Size, p.Supply, nil, p.Solid)
}

// chunkStart re-gates f for the blocks of c and builds the first state of the chunk.
func chunkStart(c Chunk, supply geom.Pose, costs state.Costs, f *reach.Field, pose geom.Pose, inv state.Inventory) *state.State {
	env := &state.Env{Supply: supply, Dependents: rules.BuildDependents(c.Remaining), Costs: costs}
	f = f.Regate(rules.Gates(c.Remaining.Sorted(), c.Remaining))
	return state.New(env, c.Remaining, pose, f, inv)
}

// Run plans every chunk in order. Pose, inventory credit and the field carry over
// from one chunk to the next. On failure the plan so far is returned with the error.
func Run(ctx context.Context, p Problem, cfg Config) (*Plan, error) {
	started := time.Now()
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	plan := &Plan{RunID: runID, LayersPerChunk: cfg.LayersPerChunk}
	chunks := Split(p.Remaining, cfg.LayersPerChunk)
	h := heuristic.New(cfg.Heuristic)

	f := p.field()
	pose := p.Supply
	inv := newInventory(cfg.InventorySlots, cfg.StackSizes)

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return plan, err
		}
		chunkStarted := time.Now()
		start := chunkStart(c, p.Supply, cfg.Costs, f, pose, inv)
		blocks := c.Remaining.Placeable()
		if cfg.Logger != nil {
			cfg.Logger.Printf("chunk %d/%d: y=%d..%d blocks=%d", c.Index+1, len(chunks), c.MinY, c.MaxY, blocks)
		}

		var last search.Progress
		scfg := cfg.Search
		scfg.Progress = func(pr search.Progress) {
			last = pr
			if cfg.Progress != nil {
				cfg.Progress(c.Index, pr)
			}
		}
		goal, err := search.Search(ctx, start, h, scfg)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return plan, fmt.Errorf("planner: chunk %d: %w", c.Index, err)
			}
			return plan, &InfeasibleError{Chunk: c.Index, MinY: c.MinY, MaxY: c.MaxY, Blocks: blocks, Err: err}
		}

		actions := goal.Actions()
		stats := ChunkStats{
			Index:    c.Index,
			MinY:     c.MinY,
			MaxY:     c.MaxY,
			Blocks:   blocks,
			Actions:  len(actions),
			Cost:     goal.Cost,
			Expanded: last.Expanded,
			Weight:   last.Weight,
			EndHash:  goal.State.Hash(),
			Elapsed:  time.Since(chunkStarted),
		}
		plan.Actions = append(plan.Actions, actions...)
		plan.Chunks = append(plan.Chunks, stats)
		plan.Cost += goal.Cost
		if cfg.Logger != nil {
			cfg.Logger.Printf("chunk %d/%d: actions=%d cost=%d expanded=%d in %s", c.Index+1, len(chunks), stats.Actions, stats.Cost, stats.Expanded, stats.Elapsed)
		}
		if cfg.OnChunk != nil {
			cfg.OnChunk(stats)
		}

		f = goal.State.Field()
		pose = goal.State.Pose()
		inv = goal.State.Inventory()
	}
	plan.Elapsed = time.Since(started)
	return plan, nil
}
