package avoidance

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avoidance-planner/config"
	"avoidance-planner/histogram"
	"avoidance-planner/live"
)

func testAppConfig() config.AppConfig {
	return config.AppConfig{
		Hz: 20,
		Planner: config.PlannerConfig{
			AlphaRes:                 6,
			BoxRadius:                5,
			GroundClearance:          0.5,
			FloorMargin:              0.2,
			GoalCostParam:            1,
			HeadingCostParam:         0.1,
			SmoothCostParam:          0.1,
			HeightChangeCostParam:    1,
			KeepDistance:             1,
			SmoothingMarginDegrees:   30,
			VelocityAroundObstacles:  1,
			VelocityFarFromObstacles: 3,
			ReprojAgeMax:             10,
			MinCloudSize:             3,
			MinSensorRange:           0.2,
			MinDistBackoff:           1,
			ChildrenPerNode:          3,
			NExpandedNodes:           20,
			StepLength:               1.5,
			AcceptanceRadius:         0.5,
			TreeReuseAge:             5,
			StopInFront:              true,
			UseBackOff:               true,
			HFovDeg:                  90,
			VFovDeg:                  60,
		},
		Output: config.OutputConfig{SendObstaclesFCU: true},
	}
}

func TestApplyConfigRejectsInvalidAlphaRes(t *testing.T) {
	p := New(testAppConfig(), nil)
	bad := testAppConfig()
	bad.Planner.AlphaRes = 7
	err := p.ApplyConfig(bad)
	assert.Error(t, err)

	// Previous config must remain in effect.
	_, err = p.RunCycle(live.CycleInputs{
		Position: mgl64.Vec3{0, 0, 2},
		Goal:     mgl64.Vec3{10, 0, 2},
		Armed:    true,
		Clouds:   [][]mgl64.Vec3{{}},
	}, time.Now())
	require.NoError(t, err)
}

func TestRunCycleSkipsWhenNoCloudsStaged(t *testing.T) {
	p := New(testAppConfig(), nil)
	_, err := p.RunCycle(live.CycleInputs{Position: mgl64.Vec3{0, 0, 2}}, time.Now())
	assert.ErrorIs(t, err, ErrSkipCycle)
}

func TestRunCycleProducesObstacleDistanceWhenEnabled(t *testing.T) {
	p := New(testAppConfig(), nil)
	// First cycle latches the takeoff pose at a low altitude.
	_, err := p.RunCycle(live.CycleInputs{
		Position: mgl64.Vec3{0, 0, 0.1},
		Goal:     mgl64.Vec3{10, 0, 5},
		Armed:    true,
		Clouds:   [][]mgl64.Vec3{{}},
	}, time.Now())
	require.NoError(t, err)

	// Second cycle climbs above starting_height: the controller flips
	// reach_altitude and reports direct mode without building a histogram.
	_, err = p.RunCycle(live.CycleInputs{
		Position: mgl64.Vec3{0, 0, 5},
		Goal:     mgl64.Vec3{10, 0, 5},
		Armed:    true,
		Clouds:   [][]mgl64.Vec3{{}},
	}, time.Now())
	require.NoError(t, err)

	// Third cycle reaches the plan branch and builds a histogram.
	out, err := p.RunCycle(live.CycleInputs{
		Position: mgl64.Vec3{0, 0, 5},
		Goal:     mgl64.Vec3{10, 0, 5},
		Armed:    true,
		Clouds:   [][]mgl64.Vec3{{}},
	}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, out.ObstacleDistance)
	assert.Len(t, out.ObstacleDistance, 360/testAppConfig().Planner.AlphaRes)
}

func TestLastOutputReflectsMostRecentCycle(t *testing.T) {
	p := New(testAppConfig(), nil)
	_, ok := p.LastOutput()
	assert.False(t, ok)

	out, err := p.RunCycle(live.CycleInputs{
		Position: mgl64.Vec3{0, 0, 5},
		Goal:     mgl64.Vec3{10, 0, 5},
		Armed:    true,
		Clouds:   [][]mgl64.Vec3{{}},
	}, time.Now())
	require.NoError(t, err)

	last, ok := p.LastOutput()
	require.True(t, ok)
	assert.Equal(t, out.WaypointType, last.WaypointType)
}

func TestBuildObstacleDistanceEmptyHistogramReportsRangeMaxPlusOne(t *testing.T) {
	g := histogram.NewGrid(6)
	out := BuildObstacleDistance(g, fullFOV(6))
	require.Len(t, out, g.LengthZ())
	for _, v := range out {
		assert.EqualValues(t, 21, v)
	}
}
