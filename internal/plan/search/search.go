// Package search runs an anytime weighted A* over game states until every block of the
// current chunk is placed.
package search

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"

	"voxelplan.ai/internal/plan/state"
)

var (
	ErrNoSolution     = errors.New("no solution for this block set")
	ErrExpansionLimit = errors.New("expansion limit reached")
)

// Heuristic estimates the remaining cost of a state.
type Heuristic func(*state.State) int

type Progress struct {
	Expanded  int
	Open      int
	Closed    int
	Best      int
	Remaining int
	Weight    float64
}

type Config struct {
	Schedule Schedule
	// MaxExpansions stops the search with ErrExpansionLimit; 0 means no limit.
	MaxExpansions int
	// ProgressEvery calls Progress once per this many expansions.
	ProgressEvery int
	Progress      func(Progress)
}

func DefaultConfig() Config {
	return Config{Schedule: DefaultSchedule(), ProgressEvery: 10000}
}

// Search pops nodes in F order until one has no remaining blocks. States are
// de-duplicated by hash; the closed set maps each hash to the blocks placed when it was
// closed. ctx is only looked at when the search yields.
func Search(ctx context.Context, start *state.State, h Heuristic, cfg Config) (*Node, error) {
	opt := NewOptimizer(cfg.Schedule)
	open := &openSet{}
	closed := map[uint64]int{}
	var seq uint64
	expanded := 0

	push := func(n *Node) {
		n.H = h(n.State)
		n.F = float64(n.Cost) + opt.Weight*float64(n.H)
		n.seq = seq
		seq++
		heap.Push(open, n)
	}
	isClosed := func(hash uint64) bool {
		_, ok := closed[hash]
		return ok
	}
	report := func(n *Node) {
		if cfg.Progress == nil {
			return
		}
		cfg.Progress(Progress{
			Expanded:  expanded,
			Open:      open.Len(),
			Closed:    len(closed),
			Best:      opt.Best(),
			Remaining: len(n.State.Remaining()),
			Weight:    opt.Weight,
		})
	}

	push(&Node{State: start})
	for open.Len() > 0 {
		n := heap.Pop(open).(*Node)
		if n.State.Done() {
			report(n)
			return n, nil
		}
		hash := n.State.Hash()
		if isClosed(hash) {
			continue
		}
		closed[hash] = n.Placed
		expanded++
		if cfg.MaxExpansions > 0 && expanded > cfg.MaxExpansions {
			return nil, fmt.Errorf("search: %d expansions: %w", cfg.MaxExpansions, ErrExpansionLimit)
		}
		if cfg.ProgressEvery > 0 && expanded%cfg.ProgressEvery == 0 {
			report(n)
		}

		if changed, trim := opt.Observe(n.Placed); changed || trim {
			if trim {
				trimBelow(open, closed, opt.Best()/2)
			}
			reweight(*open, opt.Weight)
			heap.Init(open)
			if changed && opt.ShouldYield() {
				runtime.Gosched()
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
		}

		for _, a := range n.State.PossibleActions(isClosed, nil) {
			next, cost, err := n.State.Execute(a)
			if err != nil {
				return nil, fmt.Errorf("search: expand: %w", err)
			}
			if isClosed(next.Hash()) {
				continue
			}
			placed := n.Placed
			if a.Kind.IsPlace() {
				placed++
			}
			push(&Node{State: next, Parent: n, Action: a, Cost: n.Cost + cost, Placed: placed})
		}
	}
	return nil, ErrNoSolution
}

func reweight(nodes []*Node, w float64) {
	for _, n := range nodes {
		n.F = float64(n.Cost) + w*float64(n.H)
	}
}

// trimBelow drops open and closed entries that placed fewer than floor blocks. Trimmed
// states are never revisited.
func trimBelow(open *openSet, closed map[uint64]int, floor int) {
	if floor <= 0 {
		return
	}
	kept := (*open)[:0]
	for _, n := range *open {
		if n.Placed >= floor {
			n.index = len(kept)
			kept = append(kept, n)
		}
	}
	for i := len(kept); i < len(*open); i++ {
		(*open)[i] = nil
	}
	*open = kept
	for h, placed := range closed {
		if placed < floor {
			delete(closed, h)
		}
	}
}
