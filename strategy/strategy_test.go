package strategy

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avoidance-planner/cloudfilter"
	"avoidance-planner/costmap"
	"avoidance-planner/star"
)

func baseConfig() Config {
	return Config{
		AlphaRes:       6,
		ReprojAgeMax:   10,
		BoxRadius:      5,
		FloorMargin:    0.2,
		HFovDeg:        90,
		VFovDeg:        60,
		MinCloudSize:   3,
		MinSensorRange: 0.2,
		MinDistBackoff: 1,

		StopInFrontEnabled: true,
		UseBackOffEnabled:  true,
		UseVFHStar:         false,

		CostParams: costmap.Params{
			GoalCostParam:                1,
			HeadingCostParam:             0.1,
			SmoothCostParam:              0.1,
			HeightChangeCostParam:        1,
			HeightChangeCostParamAdapted: 1,
			KeepDistance:                 1,
			SmoothingMarginDegrees:       30,
		},
		Star: star.Options{
			ChildrenPerNode:  3,
			NExpandedNodes:   20,
			StepLength:       1.5,
			AcceptanceRadius: 0.5,
			TreeReuseAge:     5,
		},

		VelocityAroundObstacles:  1,
		VelocityFarFromObstacles: 3,
	}
}

func TestStepStaysInReachHeightUntilAboveStartingHeight(t *testing.T) {
	c := NewController(baseConfig())
	in := CycleInput{
		Position: mgl64.Vec3{0, 0, 0.2},
		Armed:    true,
		Goal:     mgl64.Vec3{10, 0, 2},
	}
	out := c.Step(in)
	assert.Equal(t, ModeReachHeight, out.Mode)
	assert.True(t, out.HaveTakeOffPose)
	assert.Equal(t, in.Position, out.TakeOffPose)
}

func TestStepSwitchesToDirectAboveStartingHeight(t *testing.T) {
	c := NewController(baseConfig())
	in := CycleInput{
		Position: mgl64.Vec3{0, 0, 0.1},
		Armed:    true,
		Goal:     mgl64.Vec3{10, 0, 2},
	}
	c.Step(in) // latch takeoff pose

	in.Position = mgl64.Vec3{0, 0, 5}
	out := c.Step(in)
	assert.Equal(t, ModeDirect, out.Mode)
}

func TestStopInFrontOverridesGoalWhileClosestObstaclePresent(t *testing.T) {
	cfg := baseConfig()
	c := NewController(cfg)
	c.reachAltitude = true

	in := CycleInput{
		Position: mgl64.Vec3{0, 0, 2},
		Goal:     mgl64.Vec3{10, 0, 2},
		Cloud: cloudfilter.Result{
			Points:          []mgl64.Vec3{{1, 0, 2}, {1, 0.1, 2}, {1, -0.1, 2}, {1, 0.2, 2}},
			HasClosestPoint: true,
			ClosestPoint:    mgl64.Vec3{1, 0, 2},
			ClosestDistance: 1,
		},
	}
	out := c.Step(in)
	require.Equal(t, ModeDirect, out.Mode)
	assert.True(t, out.ObstacleAhead)
	assert.True(t, out.HaveGoalOverride)
	assert.NotEqual(t, in.Goal, out.GoalOverride)
}

func TestGoBackActivatesOnHighBackoffCountAndLatchesUntilFarEnough(t *testing.T) {
	cfg := baseConfig()
	c := NewController(cfg)
	c.reachAltitude = true

	in := CycleInput{
		Position: mgl64.Vec3{0, 0, 2},
		Goal:     mgl64.Vec3{10, 0, 2},
		Cloud: cloudfilter.Result{
			Points:              []mgl64.Vec3{{1, 0, 2}, {1, 0.1, 2}, {1, -0.1, 2}},
			HasClosestPoint:     true,
			ClosestPoint:        mgl64.Vec3{1, 0, 2},
			ClosestDistance:     1,
			CounterCloseBackoff: 250,
		},
	}
	out := c.Step(in)
	require.Equal(t, ModeGoBack, out.Mode)
	assert.True(t, c.backOffActive)

	// Vehicle has retreated past minDistBackoff+1 from the obstacle: the
	// latch clears this cycle, so the following cycle (with a now-empty
	// cloud) leaves go-back mode.
	in.Position = mgl64.Vec3{-3, 0, 2}
	in.Cloud = cloudfilter.Result{}
	c.Step(in)
	assert.False(t, c.backOffActive)

	out = c.Step(in)
	assert.NotEqual(t, ModeGoBack, out.Mode)
}

func TestPlanBranchReturnsTryPathWhenHistogramEmpty(t *testing.T) {
	cfg := baseConfig()
	c := NewController(cfg)
	c.reachAltitude = true

	// hist_is_empty also needs the last sent waypoint inside the FOV:
	// facing +X (azimuth 90), a waypoint 1m ahead lies in view.
	in := CycleInput{
		Position:         mgl64.Vec3{0, 0, 2},
		Goal:             mgl64.Vec3{10, 0, 2},
		YawDeg:           90,
		LastSentWaypoint: mgl64.Vec3{1, 0, 2},
		HaveLastWaypoint: true,
	}
	out := c.Step(in)
	assert.Equal(t, ModeTryPath, out.Mode)
	assert.False(t, out.ObstacleAhead)
	require.Len(t, out.PathNodePositions, 2)
}

func TestPlanBranchFallsBackToCostmapWhenObstaclesPresent(t *testing.T) {
	cfg := baseConfig()
	cfg.UseVFHStar = false
	// Stop-in-front would take any cloud above min_cloud_size first.
	cfg.StopInFrontEnabled = false
	c := NewController(cfg)
	c.reachAltitude = true

	cloud := make([]mgl64.Vec3, 0, 20)
	for i := 0; i < 20; i++ {
		cloud = append(cloud, mgl64.Vec3{3, float64(i) * 0.05, 2})
	}
	in := CycleInput{
		Position: mgl64.Vec3{0, 0, 2},
		Goal:     mgl64.Vec3{10, 0, 2},
		Cloud:    cloudfilter.Result{Points: cloud},
	}
	out := c.Step(in)
	assert.Equal(t, ModeCostmap, out.Mode)
	assert.True(t, out.HaveCostmapDirection)
}

func TestEvaluateProgressRateLowersAdaptedCostWhenFallingBehind(t *testing.T) {
	cfg := baseConfig()
	cfg.AdaptCostParams = true
	cfg.DistInclineWindowSize = 2
	cfg.NoProgressSlope = 0
	c := NewController(cfg)

	in := CycleInput{
		PrevPosition: mgl64.Vec3{0, 0, 0},
		Position:     mgl64.Vec3{1, 0, 0}, // moving away from goal each cycle
		Goal:         mgl64.Vec3{-5, 0, 0},
		Dt:           1,
	}
	c.evaluateProgressRate(in)
	c.evaluateProgressRate(in)
	assert.Less(t, c.Cfg.CostParams.HeightChangeCostParamAdapted, 1.0)
}

func TestSelectCruiseSpeedPicksByObstaclePresence(t *testing.T) {
	cfg := baseConfig()
	assert.Equal(t, cfg.VelocityAroundObstacles, SelectCruiseSpeed(true, cfg))
	assert.Equal(t, cfg.VelocityFarFromObstacles, SelectCruiseSpeed(false, cfg))
}
