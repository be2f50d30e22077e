package search

import "voxelplan.ai/internal/plan/state"

// Node is one entry of the search tree. Parents are shared by all their descendants.
type Node struct {
	State  *state.State
	Parent *Node
	Action state.Action

	Cost int     // accumulated action cost
	H    int     // heuristic estimate
	F    float64 // Cost + weight*H

	// Placed counts place actions from the root.
	Placed int

	seq   uint64
	index int
}

// Path returns the nodes from the first child of the root down to n.
func (n *Node) Path() []*Node {
	var out []*Node
	for cur := n; cur != nil && cur.Parent != nil; cur = cur.Parent {
		out = append(out, cur)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (n *Node) Actions() []state.Action {
	path := n.Path()
	out := make([]state.Action, len(path))
	for i, p := range path {
		out[i] = p.Action
	}
	return out
}

// openSet orders by F, then more blocks placed, then insertion order.
type openSet []*Node

func (o openSet) Len() int { return len(o) }

func (o openSet) Less(i, j int) bool {
	a, b := o[i], o[j]
	if a.F != b.F {
		return a.F < b.F
	}
	if a.Placed != b.Placed {
		return a.Placed > b.Placed
	}
	return a.seq < b.seq
}

func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}

func (o *openSet) Push(x any) {
	n := x.(*Node)
	n.index = len(*o)
	*o = append(*o, n)
}

func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*o = old[:n-1]
	return x
}
