// Package inventory tracks what the agent has taken from the supply point since its last
// resupply, packed into a fixed number of slots with per-item stack sizes.
package inventory

import "sort"

// DefaultStack is the stack size of items the catalog says nothing about.
const DefaultStack = 64

// StackSizes resolves an item to its stack size. Non-positive results fall back to
// DefaultStack.
type StackSizes func(item string) int

// Credit is immutable; Add and Reset return new values.
type Credit struct {
	slots  int
	stack  StackSizes
	counts map[string]int
	used   int
}

func New(slots int, stack StackSizes) Credit {
	if stack == nil {
		stack = func(string) int { return DefaultStack }
	}
	return Credit{slots: slots, stack: stack}
}

func (c Credit) Slots() int     { return c.slots }
func (c Credit) UsedSlots() int { return c.used }
func (c Credit) Empty() bool    { return c.used == 0 }

func (c Credit) stackOf(item string) int {
	if n := c.stack(item); n > 0 {
		return n
	}
	return DefaultStack
}

func slotsFor(count, stack int) int { return (count + stack - 1) / stack }

// usedWith returns the slot count after adding items.
func (c Credit) usedWith(items []string) int {
	add := map[string]int{}
	for _, it := range items {
		add[it]++
	}
	used := c.used
	for it, n := range add {
		st := c.stackOf(it)
		have := c.counts[it]
		used += slotsFor(have+n, st) - slotsFor(have, st)
	}
	return used
}

func (c Credit) CanAdd(items []string) bool {
	return c.usedWith(items) <= c.slots
}

func (c Credit) Add(items []string) Credit {
	if len(items) == 0 {
		return c
	}
	counts := make(map[string]int, len(c.counts)+len(items))
	for k, v := range c.counts {
		counts[k] = v
	}
	used := c.usedWith(items)
	for _, it := range items {
		counts[it]++
	}
	return Credit{slots: c.slots, stack: c.stack, counts: counts, used: used}
}

// AddableRatio is the fraction of the given item kinds of which one more unit would
// still fit. An empty list counts as fully addable.
func (c Credit) AddableRatio(items []string) float64 {
	if len(items) == 0 {
		return 1
	}
	ok := 0
	for _, it := range items {
		if c.CanAdd([]string{it}) {
			ok++
		}
	}
	return float64(ok) / float64(len(items))
}

func (c Credit) Reset() Credit {
	return Credit{slots: c.slots, stack: c.stack}
}

type Line struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Lines lists the credit in item order; used for resupply manifests.
func (c Credit) Lines() []Line {
	out := make([]Line, 0, len(c.counts))
	for it, n := range c.counts {
		out = append(out, Line{Item: it, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}
