package star

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avoidance-planner/costmap"
	"avoidance-planner/histogram"
)

func testOptions() Options {
	return Options{
		ChildrenPerNode:  3,
		NExpandedNodes:   20,
		StepLength:       1.0,
		AcceptanceRadius: 0.5,
		TreeReuseAge:     3,
		CostParams: costmap.Params{
			GoalCostParam:         1,
			HeadingCostParam:      0.1,
			SmoothCostParam:       0.1,
			HeightChangeCostParam: 4,
		},
	}
}

func TestPlanPathStartsAtRoot(t *testing.T) {
	hist := histogram.NewGrid(6)
	root := mgl64.Vec3{0, 0, 3}
	goal := mgl64.Vec3{10, 0, 3}

	tree, path, idxs := Plan(nil, root, 0, goal, hist, testOptions())
	require.NotEmpty(t, path)
	assert.Equal(t, root, path[0])
	assert.Equal(t, Root, tree.Nodes[idxs[0]].Parent)
}

func TestPlanParentIndicesLessThanSelf(t *testing.T) {
	hist := histogram.NewGrid(6)
	root := mgl64.Vec3{0, 0, 3}
	goal := mgl64.Vec3{10, 0, 3}

	tree, _, _ := Plan(nil, root, 0, goal, hist, testOptions())
	for i, n := range tree.Nodes {
		if i == 0 {
			assert.Equal(t, Root, n.Parent)
			continue
		}
		assert.Less(t, n.Parent, i)
	}
}

func TestPlanMovesTowardGoal(t *testing.T) {
	hist := histogram.NewGrid(6)
	root := mgl64.Vec3{0, 0, 3}
	goal := mgl64.Vec3{10, 0, 3}

	_, path, _ := Plan(nil, root, 0, goal, hist, testOptions())
	require.GreaterOrEqual(t, len(path), 2)
	assert.Greater(t, path[1].X(), path[0].X()-1e-6)
}

func TestPlanReusesTreeUntilGoalChanges(t *testing.T) {
	hist := histogram.NewGrid(6)
	root := mgl64.Vec3{0, 0, 3}
	goal := mgl64.Vec3{10, 0, 3}

	tree1, _, _ := Plan(nil, root, 0, goal, hist, testOptions())
	tree2, _, _ := Plan(tree1, root, 0, goal, hist, testOptions())
	assert.Same(t, tree1, tree2)
	assert.Equal(t, 1, tree2.Age())

	newGoal := mgl64.Vec3{10, 5, 3}
	tree3, _, _ := Plan(tree2, root, 0, newGoal, hist, testOptions())
	assert.NotSame(t, tree2, tree3)
	assert.Equal(t, 0, tree3.Age())
}
