// Package cloudfilter crops and cleans the fused point cloud before it
// feeds the histogram builder, and tracks the closest obstacle point and
// back-off point density.
package cloudfilter

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"avoidance-planner/histogram"
)

// Params bundles the filter's tunables.
type Params struct {
	MinSensorRange float64
	MinCloudSize   int
	MinDistBackoff float64
}

// Result is the output of a filter pass: the surviving cloud, the
// closest point observed (if any), its distance, and the count of
// points within MinDistBackoff.
type Result struct {
	Points              []mgl64.Vec3
	HasClosestPoint     bool
	ClosestPoint        mgl64.Vec3
	ClosestDistance     float64
	CounterCloseBackoff int
}

// Empty reports whether the surviving cloud is too small to be treated
// as carrying obstacle information (spec.md §4.2).
func (r Result) Empty(minCloudSize int) bool {
	return len(r.Points) < minCloudSize
}

// Filter merges the per-camera clouds, drops NaNs, points outside the
// box, points below the box's floor, and points closer than
// MinSensorRange, and tracks the closest surviving point plus a
// back-off density counter.
func Filter(cameraClouds [][]mgl64.Vec3, origin mgl64.Vec3, box histogram.Box, p Params) Result {
	var res Result
	res.ClosestDistance = math.Inf(1)

	for _, cloud := range cameraClouds {
		for _, pt := range cloud {
			if isNaN(pt) {
				continue
			}
			if !box.Contains(pt) {
				continue
			}
			d := pt.Sub(origin).Len()
			if d < p.MinSensorRange {
				continue
			}

			res.Points = append(res.Points, pt)

			if d < res.ClosestDistance {
				res.ClosestDistance = d
				res.ClosestPoint = pt
				res.HasClosestPoint = true
			}
			if d < p.MinDistBackoff {
				res.CounterCloseBackoff++
			}
		}
	}

	if !res.HasClosestPoint {
		res.ClosestDistance = 0
	}
	return res
}

func isNaN(p mgl64.Vec3) bool {
	return math.IsNaN(p.X()) || math.IsNaN(p.Y()) || math.IsNaN(p.Z())
}
