package histogram

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGridInvalidResolutionPanics(t *testing.T) {
	assert.Panics(t, func() { NewGrid(7) })
}

func TestNewHistogramMinDistanceKept(t *testing.T) {
	origin := mgl64.Vec3{0, 0, 0}
	points := []mgl64.Vec3{
		{0, 5, 0},
		{0, 3, 0}, // closer, same bin, should win
	}
	g := New(6, points, origin)
	found := false
	for e := 0; e < g.LengthE(); e++ {
		for z := 0; z < g.LengthZ(); z++ {
			c := g.At(e, z)
			if !c.Empty() {
				found = true
				assert.InDelta(t, 3.0, c.Distance, 1e-6)
				assert.Equal(t, 0, c.Age)
			}
		}
	}
	assert.True(t, found)
}

func TestCombineOnlyFillsOutsideFOV(t *testing.T) {
	res := 6
	newHist := NewGrid(res)
	propagated := NewGrid(2 * res)

	// Populate one cell of the propagated histogram everywhere at coarse
	// resolution so every fine cell maps to a non-empty coarse cell.
	for e := 0; e < propagated.LengthE(); e++ {
		for z := 0; z < propagated.LengthZ(); z++ {
			propagated.Set(e, z, Cell{Distance: 4, Age: 2})
		}
	}

	fov := FOV{Res: res, ZIdx: map[int]bool{}, EMinIdx: 0, EMaxIdx: newHist.LengthE() - 1}
	// Mark azimuth index 0 as in view; everything else out of view.
	fov.ZIdx[0] = true

	combined, _ := Combine(newHist, propagated, fov, false)

	inFOV := combined.At(0, 0)
	assert.True(t, inFOV.Empty(), "in-FOV empty cell must stay empty, memory must not override sensing")

	outFOV := combined.At(0, 1)
	require.False(t, outFOV.Empty())
	assert.Equal(t, 2, outFOV.Age)
}

func TestHistIsEmptyRequiresWaypointInFOV(t *testing.T) {
	res := 6
	newHist := NewGrid(res)
	propagated := NewGrid(2 * res)
	fov := FOV{Res: res, ZIdx: map[int]bool{}, EMinIdx: 0, EMaxIdx: newHist.LengthE() - 1}

	_, emptyTrue := Combine(newHist, propagated, fov, true)
	assert.True(t, emptyTrue)

	_, emptyFalse := Combine(newHist, propagated, fov, false)
	assert.False(t, emptyFalse)
}

func TestReprojectThenPropagateDropsOutOfRangePoints(t *testing.T) {
	res := 6
	g := NewGrid(res)
	g.Set(15, 0, Cell{Distance: 100, Age: 0})

	pts := Reproject(g, mgl64.Vec3{0, 0, 0})
	require.NotEmpty(t, pts)

	// At propagation time the reprojected points lie 100m from the
	// vehicle position, beyond 2*box_radius (10m), so they must be
	// discarded.
	propagated := Propagate(res, pts, mgl64.Vec3{0, 0, 0}, 10, 5)
	for e := 0; e < propagated.LengthE(); e++ {
		for z := 0; z < propagated.LengthZ(); z++ {
			assert.True(t, propagated.At(e, z).Empty())
		}
	}
}

func TestBoxZMinRespectsGroundClearance(t *testing.T) {
	b := NewBox(mgl64.Vec3{0, 0, 1}, 4, 0.5, 0.2)
	// position.z - radius = -3, ground_clearance+floor_margin = 0.7 -> zMin=0.7
	assert.InDelta(t, 0.7, b.ZMin, 1e-9)
}
