// Package histogram builds, propagates, and combines the polar obstacle
// histogram that the cost matrix and tree search are built on top of.
package histogram

import (
	"github.com/go-gl/mathgl/mgl64"

	"avoidance-planner/geometry"
)

// Cell holds the minimum observed obstacle radius and its age, in
// planner cycles, for one angular bin. A cell is empty iff Distance==0.
type Cell struct {
	Distance float64
	Age      int
}

// Empty reports whether the cell carries no observation.
func (c Cell) Empty() bool { return c.Distance == 0 }

// Grid is a 2D array of cells indexed [eIdx][zIdx] at angular resolution
// Res degrees. Res must divide both 180 and 360 evenly.
type Grid struct {
	Res     int
	cells   [][]Cell
	lengthE int
	lengthZ int
}

// NewGrid allocates an empty grid at the given angular resolution.
func NewGrid(res int) *Grid {
	if res <= 0 || 360%res != 0 || 180%res != 0 {
		panic("histogram: ALPHA_RES must evenly divide 180 and 360")
	}
	lengthE := 180 / res
	lengthZ := 360 / res
	cells := make([][]Cell, lengthE)
	for i := range cells {
		cells[i] = make([]Cell, lengthZ)
	}
	return &Grid{Res: res, cells: cells, lengthE: lengthE, lengthZ: lengthZ}
}

// LengthE returns GRID_LENGTH_E for this grid's resolution.
func (g *Grid) LengthE() int { return g.lengthE }

// LengthZ returns GRID_LENGTH_Z for this grid's resolution.
func (g *Grid) LengthZ() int { return g.lengthZ }

// At returns the cell at (eIdx, zIdx); azimuth wraps modularly, elevation
// is clamped.
func (g *Grid) At(eIdx, zIdx int) Cell {
	eIdx, zIdx = g.clampIndex(eIdx, zIdx)
	return g.cells[eIdx][zIdx]
}

// Set writes a cell, observing the same index-wrapping rules as At.
func (g *Grid) Set(eIdx, zIdx int, c Cell) {
	eIdx, zIdx = g.clampIndex(eIdx, zIdx)
	g.cells[eIdx][zIdx] = c
}

func (g *Grid) clampIndex(eIdx, zIdx int) (int, int) {
	zIdx = ((zIdx % g.lengthZ) + g.lengthZ) % g.lengthZ
	if eIdx < 0 {
		eIdx = 0
	}
	if eIdx > g.lengthE-1 {
		eIdx = g.lengthE - 1
	}
	return eIdx, zIdx
}

// SetMinDistance updates the cell at (eIdx, zIdx) to keep the minimum
// distance across contributors, setting age to 0 (a freshly observed
// cell).
func (g *Grid) SetMinDistance(eIdx, zIdx int, distance float64) {
	eIdx, zIdx = g.clampIndex(eIdx, zIdx)
	cur := g.cells[eIdx][zIdx]
	if cur.Empty() || distance < cur.Distance {
		g.cells[eIdx][zIdx] = Cell{Distance: distance, Age: 0}
	}
}

// SetMinDistanceAged is like SetMinDistance but carries an explicit age
// (used while building the propagated histogram from aged reprojected
// points).
func (g *Grid) SetMinDistanceAged(eIdx, zIdx int, distance float64, age int) {
	eIdx, zIdx = g.clampIndex(eIdx, zIdx)
	cur := g.cells[eIdx][zIdx]
	if cur.Empty() || distance < cur.Distance {
		g.cells[eIdx][zIdx] = Cell{Distance: distance, Age: age}
	}
}

// Box is the axis-aligned cube bounding the local planning region.
type Box struct {
	Center mgl64.Vec3
	Radius float64
	ZMin   float64
}

// NewBox builds the HistogramBox for the given vehicle position, ground
// clearance, and floor margin, per spec.md §3.
func NewBox(position mgl64.Vec3, radius, groundClearance, floorMargin float64) Box {
	zMin := position.Z() - radius
	floor := groundClearance + floorMargin
	if floor > zMin {
		zMin = floor
	}
	return Box{Center: position, Radius: radius, ZMin: zMin}
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p mgl64.Vec3) bool {
	if p.Z() < b.ZMin {
		return false
	}
	return abs(p.X()-b.Center.X()) <= b.Radius &&
		abs(p.Y()-b.Center.Y()) <= b.Radius &&
		abs(p.Z()-b.Center.Z()) <= b.Radius
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ReprojectedPoint is a cartesian point, carrying the age of the
// observation it was derived from, used to feed the next cycle's
// propagated histogram.
type ReprojectedPoint struct {
	Position mgl64.Vec3
	Age      int
}

// New builds a fresh histogram from the filtered, vehicle-relative
// cloud. Each point contributes the minimum observed distance to its
// cell; age of newly populated cells is 0.
func New(res int, points []mgl64.Vec3, origin mgl64.Vec3) *Grid {
	g := NewGrid(res)
	for _, p := range points {
		pol := geometry.CartesianToPolar(p, origin)
		pol = geometry.WrapPolar(pol)
		eIdx, zIdx := geometry.PolarToHistogramIndex(pol, res)
		g.SetMinDistance(eIdx, zIdx, pol.R)
	}
	return g
}

// Propagate builds the propagated histogram at resolution 2*baseRes from
// the previous cycle's reprojected points, incrementing each point's
// carried age by one and dropping cells whose age reaches reprojAgeMax.
// Points farther than 2*boxRadius from the (new) origin or closer than
// 0.3m are discarded here, since the new vehicle position is only known
// at the start of the cycle consuming the reprojected cloud — not when
// it was produced (spec.md §4.3's "Discard points farther than
// 2*box_radius from the new vehicle position").
func Propagate(baseRes int, reprojected []ReprojectedPoint, origin mgl64.Vec3, reprojAgeMax int, boxRadius float64) *Grid {
	g := NewGrid(2 * baseRes)
	maxDist := maxReprojRadiusScale * boxRadius
	for _, rp := range reprojected {
		age := rp.Age + 1
		if age >= reprojAgeMax {
			continue
		}
		d := rp.Position.Sub(origin).Len()
		if d > maxDist || d < minReprojDistance {
			continue
		}
		pol := geometry.CartesianToPolar(rp.Position, origin)
		pol = geometry.WrapPolar(pol)
		eIdx, zIdx := geometry.PolarToHistogramIndex(pol, g.Res)
		g.SetMinDistanceAged(eIdx, zIdx, pol.R, age)
	}
	return g
}

// FOV describes the azimuth indices and elevation bounds currently
// visible to the camera set, at the new histogram's resolution.
type FOV struct {
	Res     int
	ZIdx    map[int]bool
	EMinIdx int
	EMaxIdx int
}

// InAzimuth reports whether zIdx lies within the field of view.
func (f FOV) InAzimuth(zIdx int) bool {
	return f.ZIdx[zIdx]
}

// InElevation reports whether eIdx lies within the field of view.
func (f FOV) InElevation(eIdx int) bool {
	return eIdx >= f.EMinIdx && eIdx <= f.EMaxIdx
}

// In reports whether the cell at (eIdx, zIdx) is inside the FOV.
func (f FOV) In(eIdx, zIdx int) bool {
	return f.InAzimuth(zIdx) && f.InElevation(eIdx)
}

// ComputeFOV derives the visible azimuth/elevation index ranges for a
// camera set with combined horizontal FOV hFovDeg and vertical FOV
// vFovDeg, at the given yaw/pitch (degrees), for a histogram at
// resolution res.
func ComputeFOV(res int, yawDeg, pitchDeg, hFovDeg, vFovDeg float64) FOV {
	g := NewGrid(res)
	fov := FOV{Res: res, ZIdx: map[int]bool{}}

	zLo := geometry.WrapAngleToPlusMinus180(yawDeg - hFovDeg/2)
	_, loZ := geometry.PolarToHistogramIndex(geometry.Polar{E: 0, Z: zLo}, res)

	n := g.LengthZ()
	span := int(hFovDeg/float64(res)) + 1
	if span > n {
		span = n
	}
	idx := loZ
	for i := 0; i < span; i++ {
		fov.ZIdx[idx] = true
		idx = (idx + 1) % n
	}

	eMin := pitchDeg - vFovDeg/2
	eMax := pitchDeg + vFovDeg/2
	eMinIdx, _ := geometry.PolarToHistogramIndex(geometry.Polar{E: clampE(eMin), Z: 0}, res)
	eMaxIdx, _ := geometry.PolarToHistogramIndex(geometry.Polar{E: clampE(eMax), Z: 0}, res)
	fov.EMinIdx, fov.EMaxIdx = eMinIdx, eMaxIdx
	return fov
}

func clampE(e float64) float64 {
	if e < -90 {
		return -90
	}
	if e > 89.999 {
		return 89.999
	}
	return e
}

// Combine fills empty cells of the new histogram with the corresponding
// cells of the propagated histogram, but only where the cell lies
// outside the current FOV, so memory complements sensing but never
// overrides it. The returned flag (hist_is_empty) is true only when the
// combined histogram is entirely empty and lastWaypointInFOV is true.
func Combine(newHist, propagated *Grid, fov FOV, lastWaypointInFOV bool) (*Grid, bool) {
	combined := NewGrid(newHist.Res)
	allEmpty := true
	scale := propagated.Res / newHist.Res
	if scale <= 0 {
		scale = 1
	}

	for e := 0; e < newHist.LengthE(); e++ {
		for z := 0; z < newHist.LengthZ(); z++ {
			c := newHist.At(e, z)
			if c.Empty() {
				if !fov.In(e, z) {
					pe, pz := e/scale, z/scale
					c = propagated.At(pe, pz)
				}
			}
			combined.Set(e, z, c)
			if !c.Empty() {
				allEmpty = false
			}
		}
	}

	histIsEmpty := allEmpty && lastWaypointInFOV
	return combined, histIsEmpty
}

// maxReprojRadiusScale is the multiple of box radius beyond which
// reprojected points are discarded (spec.md §4.3).
const (
	maxReprojRadiusScale = 2.0
	minReprojDistance    = 0.3
)

// Reproject emits, for every non-empty cell of hist, four cartesian
// points at the cell's polar corners, labeled with the cell's age,
// expressed relative to origin (the vehicle position this histogram was
// built at). Distance thresholding against the next cycle's vehicle
// position happens in Propagate, once that position is known.
func Reproject(hist *Grid, origin mgl64.Vec3) []ReprojectedPoint {
	var out []ReprojectedPoint
	res := hist.Res

	for e := 0; e < hist.LengthE(); e++ {
		for z := 0; z < hist.LengthZ(); z++ {
			c := hist.At(e, z)
			if c.Empty() {
				continue
			}
			corners := [4][2]int{{e, z}, {e + 1, z}, {e, z + 1}, {e + 1, z + 1}}
			for _, corner := range corners {
				pol := geometry.HistogramIndexToPolar(corner[0], corner[1], res, c.Distance)
				cart := geometry.PolarToCartesian(pol, origin)
				out = append(out, ReprojectedPoint{Position: cart, Age: c.Age})
			}
		}
	}
	return out
}
