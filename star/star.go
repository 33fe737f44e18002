// Package star implements the Vector-Field-Histogram-Star (VFH*) tree
// search: it expands candidate headings through the obstacle histogram,
// accumulating cost, and extracts the best lookahead path.
package star

import (
	"container/heap"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"avoidance-planner/costmap"
	"avoidance-planner/geometry"
	"avoidance-planner/histogram"
)

// Root marks a node with no parent (the tree's root).
const Root = -1

// Node is one entry in the tree arena. Parent indices are always smaller
// than the node's own index, so the arena never needs owning pointers.
type Node struct {
	Position   mgl64.Vec3
	YawHeading float64 // radians
	TotalCost  float64
	Heuristic  float64
	Depth      int
	Parent     int
}

// Score is the A*-style ordering key: total cost plus heuristic.
func (n Node) Score() float64 { return n.TotalCost + n.Heuristic }

// Tree is a forest-of-one arena rooted at the vehicle's current pose.
type Tree struct {
	Nodes    []Node
	expanded []bool
	age      int
	goal     mgl64.Vec3
}

// Age returns the number of cycles this tree has been reused for.
func (t *Tree) Age() int { return t.age }

// Options bundles the tunables driving tree expansion and search.
type Options struct {
	ChildrenPerNode  int
	NExpandedNodes   int
	StepLength       float64
	AcceptanceRadius float64
	TreeReuseAge     int
	CostParams       costmap.Params
	FOV              histogram.FOV
}

// Plan produces (or reuses) a VFH* lookahead tree and extracts the best
// path from it. prev may be nil, in which case a tree is always built.
// A goal change (goal != prev's stored goal) forces a rebuild regardless
// of age, per spec.md §3's "A goal change invalidates the tree at the
// next cycle."
func Plan(
	prev *Tree,
	rootPos mgl64.Vec3,
	rootYaw float64,
	goal mgl64.Vec3,
	hist *histogram.Grid,
	opts Options,
) (tree *Tree, path []mgl64.Vec3, pathNodeIdx []int) {
	reuse := prev != nil && prev.age < opts.TreeReuseAge && prev.goal == goal && len(prev.Nodes) > 0
	if reuse {
		tree = prev
		tree.age++
	} else {
		tree = &Tree{
			Nodes: []Node{{
				Position:   rootPos,
				YawHeading: rootYaw,
				TotalCost:  0,
				Heuristic:  opts.CostParams.GoalCostParam * rootPos.Sub(goal).Len(),
				Depth:      0,
				Parent:     Root,
			}},
			expanded: []bool{false},
			age:      0,
			goal:     goal,
		}
	}

	search(tree, hist, goal, opts)
	leafIdx := bestClosedLeaf(tree)
	pathNodeIdx = extractPath(tree, leafIdx)
	path = make([]mgl64.Vec3, len(pathNodeIdx))
	for i, idx := range pathNodeIdx {
		path[i] = tree.Nodes[idx].Position
	}
	return tree, path, pathNodeIdx
}

// openItem is one entry of the priority queue used by the search loop.
type openItem struct {
	idx   int
	score float64
}

type openHeap []openItem

func (h openHeap) Len() int            { return len(h) }
func (h openHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h openHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *openHeap) Push(x interface{}) { *h = append(*h, x.(openItem)) }
func (h *openHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// search runs the A*-style expansion loop in place over tree, bounded by
// opts.NExpandedNodes expansions, terminating early on acceptance-radius
// arrival or open-set exhaustion.
func search(tree *Tree, hist *histogram.Grid, goal mgl64.Vec3, opts Options) {
	open := &openHeap{}
	heap.Init(open)

	for i, n := range tree.Nodes {
		if !tree.expanded[i] {
			heap.Push(open, openItem{idx: i, score: n.Score()})
		}
	}

	expansions := 0
	for open.Len() > 0 && expansions < opts.NExpandedNodes {
		item := heap.Pop(open).(openItem)
		if tree.expanded[item.idx] {
			continue
		}
		tree.expanded[item.idx] = true
		expansions++

		node := tree.Nodes[item.idx]
		if node.Position.Sub(goal).Len() <= opts.AcceptanceRadius {
			break
		}

		children := expand(tree, item.idx, hist, goal, opts)
		for _, childIdx := range children {
			heap.Push(open, openItem{idx: childIdx, score: tree.Nodes[childIdx].Score()})
		}
	}
}

// expand builds the cost matrix at node n's position, treating n's yaw
// heading as "current yaw," selects the best opts.ChildrenPerNode cells,
// and appends the resulting children to tree.Nodes, returning their
// indices.
func expand(tree *Tree, nodeIdx int, hist *histogram.Grid, goal mgl64.Vec3, opts Options) []int {
	n := tree.Nodes[nodeIdx]

	goalPolar := geometry.CartesianToPolar(goal, n.Position)
	in := costmap.Inputs{
		Hist:          hist,
		Goal:          goalPolar,
		CurrentYawDeg: n.YawHeading * geometry.RadToDeg,
		VehicleSpeed:  1, // tree expansion always evaluates heading deviation
	}
	m := costmap.Build(opts.CostParams, in)
	best := m.BestCandidates(opts.ChildrenPerNode)

	var children []int
	for _, cand := range best {
		cellPolar := geometry.HistogramIndexToPolar(cand.EIdx, cand.ZIdx, hist.Res, opts.StepLength)
		cellPolar.E += float64(hist.Res) / 2
		cellPolar.Z += float64(hist.Res) / 2

		childPos := geometry.PolarToCartesian(cellPolar, n.Position)
		childYaw := geometry.NextYaw(n.Position, childPos, n.YawHeading)

		child := Node{
			Position:   childPos,
			YawHeading: childYaw,
			Depth:      n.Depth + 1,
			Parent:     nodeIdx,
			TotalCost:  n.TotalCost + cand.Cost + depthDiscount(n.Depth, opts.StepLength),
			Heuristic:  opts.CostParams.GoalCostParam * childPos.Sub(goal).Len(),
		}
		tree.Nodes = append(tree.Nodes, child)
		tree.expanded = append(tree.expanded, false)
		children = append(children, len(tree.Nodes)-1)
	}
	return children
}

// depthDiscount is the per-expansion step cost, discounted with depth so
// early branch decisions weigh more heavily than deep ones.
func depthDiscount(depth int, stepLength float64) float64 {
	return stepLength / float64(depth+1)
}

// bestClosedLeaf returns the index of the lowest-score leaf of the
// closed set (an expanded node none of whose children were expanded),
// used as the path's terminal node. The root is returned when it is the
// only expanded node.
func bestClosedLeaf(tree *Tree) int {
	hasClosedChild := make([]bool, len(tree.Nodes))
	for i, n := range tree.Nodes {
		if tree.expanded[i] && n.Parent != Root {
			hasClosedChild[n.Parent] = true
		}
	}

	best := 0
	bestScore := math.Inf(1)
	for i, n := range tree.Nodes {
		if !tree.expanded[i] || hasClosedChild[i] {
			continue
		}
		if n.Score() < bestScore {
			bestScore = n.Score()
			best = i
		}
	}
	return best
}

// extractPath walks Parent back to the root from leafIdx and reverses
// the result, per spec.md §4.5.
func extractPath(tree *Tree, leafIdx int) []int {
	var idxs []int
	for i := leafIdx; i != Root; i = tree.Nodes[i].Parent {
		idxs = append(idxs, i)
	}
	for i, j := 0, len(idxs)-1; i < j; i, j = i+1, j-1 {
		idxs[i], idxs[j] = idxs[j], idxs[i]
	}
	return idxs
}
