package avoidance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avoidance-planner/histogram"
	"avoidance-planner/strategy"
)

func fullFOV(res int) histogram.FOV {
	return histogram.ComputeFOV(res, 0, 0, 360, 180)
}

func noFOV(res int) histogram.FOV {
	return histogram.FOV{Res: res, ZIdx: map[int]bool{}, EMinIdx: 1, EMaxIdx: 0}
}

func TestBuildObstacleDistanceHasGridLengthZEntries(t *testing.T) {
	g := histogram.NewGrid(6)
	g.Set(15, 0, histogram.Cell{Distance: 3, Age: 0})
	out := BuildObstacleDistance(g, fullFOV(6))
	require.Len(t, out, g.LengthZ())
	for _, v := range out {
		assert.True(t, v <= uint16(maxObstacleRange+1) || v == uint16(unobservableSentinel))
	}
}

func TestBuildObstacleDistanceAppliesRotation(t *testing.T) {
	res := 6
	g := histogram.NewGrid(res)
	g.Set(15, 0, histogram.Cell{Distance: 3, Age: 0})

	out := BuildObstacleDistance(g, fullFOV(res))
	rotated := (0 + 180/res) % g.LengthZ()
	assert.EqualValues(t, 3, out[rotated])
}

func TestBuildObstacleDistanceClampsBelowMinRange(t *testing.T) {
	res := 6
	g := histogram.NewGrid(res)
	g.Set(15, 0, histogram.Cell{Distance: 0.05, Age: 0})

	out := BuildObstacleDistance(g, fullFOV(res))
	rotated := (0 + 180/res) % g.LengthZ()
	assert.EqualValues(t, uint16(minObstacleRange), out[rotated])
}

func TestBuildObstacleDistanceEmptyAzimuthInFOVReportsRangeMaxPlusOne(t *testing.T) {
	res := 6
	g := histogram.NewGrid(res)

	out := BuildObstacleDistance(g, fullFOV(res))
	for _, v := range out {
		assert.EqualValues(t, maxObstacleRange+1, v)
	}
}

func TestBuildObstacleDistanceEmptyAzimuthOutOfFOVReportsUnobservableSentinel(t *testing.T) {
	res := 6
	g := histogram.NewGrid(res)

	out := BuildObstacleDistance(g, noFOV(res))
	for _, v := range out {
		assert.EqualValues(t, unobservableSentinel, v)
	}
}

func TestHoverOutputReportsModeHover(t *testing.T) {
	out := HoverOutput(time.Unix(100, 0))
	assert.Equal(t, strategy.ModeHover, out.WaypointType)
}

func TestObstacleDistanceEntriesReportsAbsenceWhenNil(t *testing.T) {
	out := Output{}
	_, ok := out.ObstacleDistanceEntries()
	assert.False(t, ok)
}

func TestObstacleDistanceEntriesReturnsSweepWhenPresent(t *testing.T) {
	out := Output{ObstacleDistance: []uint16{1, 2, 3}}
	entries, ok := out.ObstacleDistanceEntries()
	require.True(t, ok)
	assert.Equal(t, []uint16{1, 2, 3}, entries)
}
