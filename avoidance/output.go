package avoidance

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"avoidance-planner/histogram"
	"avoidance-planner/strategy"
)

// minObstacleRange and maxObstacleRange bound the obstacle_distance
// sweep per spec.md §6: "range [0.2, 20.0] m... unobservable azimuths
// report UINT16_MAX; empty cells report range_max + 1." An azimuth is
// unobservable when none of its elevation bins lie in the current
// camera FOV and nothing was carried forward from reprojection —
// BuildObstacleDistance takes the cycle's FOV to tell that case apart
// from "in FOV, sensed clear."
const (
	maxObstacleRange     = 20.0
	unobservableSentinel = math.MaxUint16
)

var minObstacleRange float64 = 0.2

// obstacleDistanceRotationDeg is the 180-degree azimuth rotation
// updateObstacleDistanceMsg applies on output; spec.md §9 treats it as
// a wire-contract fact to reproduce rather than re-derive.
const obstacleDistanceRotationDeg = 180

// Output is the per-cycle AvoidanceOutput snapshot, a plain value the
// caller owns outright — the planner keeps no alias into it, per
// spec.md §4.7.
type Output struct {
	WaypointType             strategy.Mode
	ObstacleAhead            bool
	VelocityAroundObstacles  float64
	VelocityFarFromObstacles float64
	CruiseSpeed              float64
	LastPathTime             time.Time

	BackOffPoint      mgl64.Vec3
	BackOffStartPoint mgl64.Vec3
	HaveBackOff       bool
	MinDistBackoff    float64

	TakeOffPose     mgl64.Vec3
	HaveTakeOffPose bool

	CostmapDirectionE, CostmapDirectionZ int
	HaveCostmapDirection                 bool

	PathNodePositions []mgl64.Vec3
	Direction         mgl64.Vec3
	GoalOverride      mgl64.Vec3
	HaveGoalOverride  bool

	ObstacleDistance []uint16 // present only when send_obstacles_fcu is enabled
	CycleID          string
}

// FromStrategy assembles an Output from one strategy.Step result, per
// spec.md §3's AvoidanceOutput field list.
func FromStrategy(out strategy.Output, at time.Time, cycleID string) Output {
	return Output{
		WaypointType:             out.Mode,
		ObstacleAhead:            out.ObstacleAhead,
		CruiseSpeed:              out.CruiseSpeed,
		LastPathTime:             at,
		BackOffPoint:             out.BackOffPoint,
		BackOffStartPoint:        out.BackOffStartPoint,
		HaveBackOff:              out.HaveBackOff,
		MinDistBackoff:           out.MinDistBackoff,
		TakeOffPose:              out.TakeOffPose,
		HaveTakeOffPose:          out.HaveTakeOffPose,
		CostmapDirectionE:        out.CostmapDirectionE,
		CostmapDirectionZ:        out.CostmapDirectionZ,
		HaveCostmapDirection:     out.HaveCostmapDirection,
		PathNodePositions:        out.PathNodePositions,
		Direction:                out.Direction,
		GoalOverride:             out.GoalOverride,
		HaveGoalOverride:         out.HaveGoalOverride,
		CycleID:                  cycleID,
	}
}

// HoverOutput builds the output commanded when the watchdog reports
// HealthCritical: hold position rather than run a planning cycle on
// stale inputs.
func HoverOutput(at time.Time) Output {
	return Output{
		WaypointType: strategy.ModeHover,
		LastPathTime: at,
	}
}

// BuildObstacleDistance computes the fixed-length per-azimuth sweep
// message (spec.md §6): one entry per GRID_LENGTH_Z azimuth bin, each
// the nearest observed obstacle distance across all elevation bins at
// that azimuth, clamped to [minObstacleRange, maxObstacleRange],
// rotated 180 degrees on output. An empty azimuth with at least one
// elevation bin inside fov reports range_max+1 ("looked, saw
// nothing"); an empty azimuth with no elevation bin inside fov reports
// UINT16_MAX ("never looked, no carried memory either").
func BuildObstacleDistance(hist *histogram.Grid, fov histogram.FOV) []uint16 {
	n := hist.LengthZ()
	raw := make([]float64, n)
	observed := make([]bool, n)
	for z := 0; z < n; z++ {
		raw[z] = math.Inf(1)
		for e := 0; e < hist.LengthE(); e++ {
			if fov.In(e, z) {
				observed[z] = true
			}
			c := hist.At(e, z)
			if c.Empty() {
				continue
			}
			if c.Distance < raw[z] {
				raw[z] = c.Distance
			}
		}
	}

	rotation := (obstacleDistanceRotationDeg / hist.Res) % n
	out := make([]uint16, n)
	for z := 0; z < n; z++ {
		rotatedZ := (z + rotation) % n
		d := raw[z]
		switch {
		case math.IsInf(d, 1) && !observed[z]:
			out[rotatedZ] = unobservableSentinel
		case math.IsInf(d, 1):
			out[rotatedZ] = uint16(maxObstacleRange + 1)
		case d < minObstacleRange:
			out[rotatedZ] = uint16(minObstacleRange)
		case d > maxObstacleRange:
			out[rotatedZ] = uint16(maxObstacleRange)
		default:
			out[rotatedZ] = uint16(d)
		}
	}
	return out
}

// ObstacleDistanceEntries returns the obstacle_distance sweep and
// whether one was computed this cycle; live.OutputSender sends it as a
// second datagram after EncodeWire's line.
func (o Output) ObstacleDistanceEntries() ([]uint16, bool) {
	if o.ObstacleDistance == nil {
		return nil, false
	}
	return o.ObstacleDistance, true
}

// EncodeWire renders a CSV line describing the cycle's mode and
// direction, following nad_nav/output.go's Send's
// "yaw,vertical,forward,mode" convention, extended with the fields the
// richer AvoidanceOutput contract carries. The obstacle_distance sweep,
// when present, is not part of this line — live.OutputSender.Send
// follows up with a second datagram via ObstacleDistanceEntries.
func (o Output) EncodeWire() []byte {
	line := fmt.Sprintf("%s,%t,%.4f,%.4f,%.4f,%.4f,%.4f",
		o.WaypointType.String(),
		o.ObstacleAhead,
		o.Direction.X(), o.Direction.Y(), o.Direction.Z(),
		o.CruiseSpeed,
		float64(o.LastPathTime.UnixNano())/1e9,
	)
	return []byte(line)
}
