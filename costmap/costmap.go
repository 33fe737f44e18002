// Package costmap builds the per-cell cost matrix that both the direct
// costmap-following mode and the VFH* tree search score candidate
// directions against.
package costmap

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"avoidance-planner/geometry"
	"avoidance-planner/histogram"
)

// Params bundles the weighting terms of the cost function. Adapted is
// mutated by the strategy package's progress-rate controller and always
// clamped to [0.75, HeightChangeCostParam].
type Params struct {
	GoalCostParam                float64
	HeadingCostParam             float64
	SmoothCostParam              float64
	HeightChangeCostParam        float64
	HeightChangeCostParamAdapted float64
	KeepDistance                 float64
	SmoothingMarginDegrees       float64
}

// Inputs bundles the per-cycle state the cost function is evaluated
// against.
type Inputs struct {
	Hist             *histogram.Grid
	Goal             geometry.Polar // goal direction relative to the evaluation origin
	CurrentYawDeg    float64
	VehicleSpeed     float64
	LastWaypointDir  geometry.Polar // direction of the last sent waypoint, relative to origin
	HaveLastWaypoint bool
}

// Matrix is a dense cost matrix over the histogram grid, backed by
// gonum's mat.Dense.
type Matrix struct {
	dense   *mat.Dense
	lengthE int
	lengthZ int
}

// Build computes the cost matrix for the given histogram and evaluation
// context.
func Build(p Params, in Inputs) *Matrix {
	lengthE, lengthZ := in.Hist.LengthE(), in.Hist.LengthZ()
	res := in.Hist.Res
	dense := mat.NewDense(lengthE, lengthZ, nil)

	headingSkip := in.VehicleSpeed < 0.1

	for e := 0; e < lengthE; e++ {
		for z := 0; z < lengthZ; z++ {
			cellCenter := geometry.HistogramIndexToPolar(e, z, res, 1)
			cellCenter.E += float64(res) / 2
			cellCenter.Z += float64(res) / 2

			// A goal at the evaluation origin (R == 0) has no direction
			// and contributes no goal cost.
			var goalDev float64
			if in.Goal.R > 0 {
				goalDev = angularDistance(cellCenter, in.Goal, p.HeightChangeCostParamAdapted)
			}

			var headingDev float64
			if !headingSkip {
				headingDev = math.Abs(geometry.WrapAngleToPlusMinus180(cellCenter.Z - in.CurrentYawDeg))
			}

			var smoothPenalty float64
			if in.HaveLastWaypoint {
				smoothPenalty = smoothnessPenalty(cellCenter, in.LastWaypointDir, p.SmoothingMarginDegrees)
			}

			cell := in.Hist.At(e, z)
			obstaclePenalty := obstaclePenalty(cell.Distance, p.KeepDistance)

			cost := p.GoalCostParam*goalDev +
				p.HeadingCostParam*headingDev +
				p.SmoothCostParam*smoothPenalty +
				obstaclePenalty

			dense.Set(e, z, cost)
		}
	}

	return &Matrix{dense: dense, lengthE: lengthE, lengthZ: lengthZ}
}

// At returns the cost at (eIdx, zIdx).
func (m *Matrix) At(eIdx, zIdx int) float64 { return m.dense.At(eIdx, zIdx) }

// LengthE returns the matrix's elevation dimension.
func (m *Matrix) LengthE() int { return m.lengthE }

// LengthZ returns the matrix's azimuth dimension.
func (m *Matrix) LengthZ() int { return m.lengthZ }

// Candidate identifies a scored cell.
type Candidate struct {
	EIdx, ZIdx int
	Cost       float64
}

// BestCandidates returns the k lowest-cost finite cells, ties broken by
// smaller EIdx then smaller ZIdx. The result is empty iff every cell's
// cost is non-finite.
func (m *Matrix) BestCandidates(k int) []Candidate {
	var all []Candidate
	for e := 0; e < m.lengthE; e++ {
		for z := 0; z < m.lengthZ; z++ {
			c := m.At(e, z)
			if !math.IsInf(c, 1) && !math.IsNaN(c) {
				all = append(all, Candidate{EIdx: e, ZIdx: z, Cost: c})
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Cost != all[j].Cost {
			return all[i].Cost < all[j].Cost
		}
		if all[i].EIdx != all[j].EIdx {
			return all[i].EIdx < all[j].EIdx
		}
		return all[i].ZIdx < all[j].ZIdx
	})
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

// angularDistance measures the angular gap between two polar directions,
// scaling the vertical (elevation) component by verticalScale, per
// spec.md §4.4's "vertical component is scaled by
// height_change_cost_param_adapted."
func angularDistance(a, b geometry.Polar, verticalScale float64) float64 {
	dz := geometry.WrapAngleToPlusMinus180(a.Z - b.Z)
	de := (a.E - b.E) * verticalScale
	return math.Hypot(de, dz)
}

// smoothnessPenalty fades linearly to 0 as the angular distance to the
// last sent waypoint direction approaches marginDegrees; beyond the
// margin a candidate direction is considered an intentional departure
// and carries no smoothness cost.
func smoothnessPenalty(cell, lastWaypoint geometry.Polar, marginDegrees float64) float64 {
	if marginDegrees <= 0 {
		return 0
	}
	d := angularDistance(cell, lastWaypoint, 1)
	fade := 1 - d/marginDegrees
	if fade < 0 {
		return 0
	}
	return d * fade
}

// obstaclePenalty is +Inf inside the keep-out ring, 0 for cells with no
// obstacle observation, and a monotonically decreasing function of
// distance beyond keepDistance.
func obstaclePenalty(distance, keepDistance float64) float64 {
	if distance <= 0 {
		return 0
	}
	if distance < keepDistance {
		return math.Inf(1)
	}
	return 1 / distance
}
