// Package strategy implements the mode-selecting state machine (C6):
// climb-to-altitude, direct flight with stop-in-front, back-off,
// costmap-following, and VFH* tree-following, plus the progress-rate
// cost-parameter adaptation that feeds back into the cost matrix.
//
// Its Controller.Step mirrors the shape of nad_nav's DroneController.Step:
// a small set of guarded branches, each producing one mode's command.
package strategy

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/stat"

	"avoidance-planner/cloudfilter"
	"avoidance-planner/costmap"
	"avoidance-planner/geometry"
	"avoidance-planner/histogram"
	"avoidance-planner/star"
)

// Mode is the tagged variant describing which policy produced a cycle's
// output.
type Mode int

const (
	ModeHover Mode = iota + 1
	ModeReachHeight
	ModeDirect
	ModeTryPath
	ModeCostmap
	ModeGoBack
)

func (m Mode) String() string {
	switch m {
	case ModeHover:
		return "hover"
	case ModeReachHeight:
		return "reach_height"
	case ModeDirect:
		return "direct"
	case ModeTryPath:
		return "try_path"
	case ModeCostmap:
		return "costmap"
	case ModeGoBack:
		return "go_back"
	default:
		return "unknown"
	}
}

// Config bundles the tunables the strategy controller reads each cycle.
// All fields are safe to mutate under the owning Planner's lock between
// cycles (spec.md §5's "atomic at cycle boundaries").
type Config struct {
	AlphaRes     int
	ReprojAgeMax int
	BoxRadius    float64
	FloorMargin  float64
	HFovDeg      float64
	VFovDeg      float64

	MinCloudSize   int
	MinSensorRange float64
	MinDistBackoff float64

	StopInFrontEnabled bool
	UseBackOffEnabled  bool
	UseVFHStar         bool
	AdaptCostParams    bool

	DistInclineWindowSize int
	NoProgressSlope       float64

	CostParams costmap.Params
	Star       star.Options

	VelocityAroundObstacles  float64
	VelocityFarFromObstacles float64
}

// CycleInput bundles the per-cycle vehicle/environment state the
// controller is stepped with.
type CycleInput struct {
	Position     mgl64.Vec3
	PrevPosition mgl64.Vec3
	Velocity     mgl64.Vec3
	YawDeg       float64
	PitchDeg     float64
	Armed        bool
	Goal         mgl64.Vec3

	LastSentWaypoint mgl64.Vec3
	HaveLastWaypoint bool

	Cloud           cloudfilter.Result
	PrevReprojected []histogram.ReprojectedPoint
	Dt              float64
}

// Output is the controller's per-cycle decision, assembled by the
// avoidance package into the final AvoidanceOutput (C7).
type Output struct {
	Mode          Mode
	ObstacleAhead bool

	Direction mgl64.Vec3

	GoalOverride     mgl64.Vec3
	HaveGoalOverride bool

	BackOffPoint      mgl64.Vec3
	BackOffStartPoint mgl64.Vec3
	HaveBackOff       bool
	MinDistBackoff    float64

	TakeOffPose     mgl64.Vec3
	HaveTakeOffPose bool

	CostmapDirectionE, CostmapDirectionZ int
	HaveCostmapDirection                 bool

	PathNodePositions []mgl64.Vec3

	Hist        *histogram.Grid
	HaveFOV     bool
	FOV         histogram.FOV
	Reprojected []histogram.ReprojectedPoint

	CruiseSpeed float64
}

// Controller is the mode state machine. It owns all mutable strategy
// state across cycles: the teacher's DroneController equivalent.
type Controller struct {
	Cfg Config

	mode          Mode
	reachAltitude bool

	firstBrake    bool
	brakeOverride mgl64.Vec3

	backOffActive     bool
	backOffPoint      mgl64.Vec3
	backOffStartPoint mgl64.Vec3

	takeOffPose *mgl64.Vec3

	tree *star.Tree

	inclineWindow []float64
}

// NewController constructs a Controller with the given configuration.
func NewController(cfg Config) *Controller {
	return &Controller{Cfg: cfg, mode: ModeReachHeight}
}

// Step runs one planning cycle through the mode state machine.
func (c *Controller) Step(in CycleInput) Output {
	var out Output

	if in.Armed && c.takeOffPose == nil {
		p := in.Position
		c.takeOffPose = &p
	}
	if c.takeOffPose != nil {
		out.TakeOffPose = *c.takeOffPose
		out.HaveTakeOffPose = true
	}

	if !c.reachAltitude {
		out = c.stepReachHeight(in, out)
		c.mode = out.Mode
		return out
	}

	if len(in.Cloud.Points) > c.Cfg.MinCloudSize && c.Cfg.StopInFrontEnabled {
		out = c.stepStopInFront(in, out)
		c.mode = out.Mode
		return out
	}
	c.firstBrake = false

	backOffTrigger := (in.Cloud.CounterCloseBackoff > 200 && !in.Cloud.Empty(c.Cfg.MinCloudSize)) || c.backOffActive
	if backOffTrigger && c.Cfg.UseBackOffEnabled {
		out = c.stepGoBack(in, out)
		c.mode = out.Mode
		return out
	}

	c.evaluateProgressRate(in)
	out = c.stepPlan(in, out)
	c.mode = out.Mode
	return out
}

// stepReachHeight implements spec.md §4.6 branch 1.
func (c *Controller) stepReachHeight(in CycleInput, out Output) Output {
	takeoffZ := in.Position.Z()
	if c.takeOffPose != nil {
		takeoffZ = c.takeOffPose.Z()
	}
	startingHeight := math.Max(in.Goal.Z()-0.5, takeoffZ+1.0)

	out.Mode = ModeReachHeight
	if in.Position.Z() > startingHeight {
		c.reachAltitude = true
		out.Mode = ModeDirect
	}
	return out
}

// stepStopInFront implements spec.md §4.6 branch 2: relocate the XY goal
// to a braking point ahead of the nearest obstacle.
func (c *Controller) stepStopInFront(in CycleInput, out Output) Output {
	out.Mode = ModeDirect
	out.ObstacleAhead = true

	if !c.firstBrake {
		dClosest := in.Cloud.ClosestDistance
		brakingDistance := math.Abs(dClosest - c.Cfg.CostParams.KeepDistance)

		dir := mgl64.Vec3{in.Goal.X() - in.Position.X(), in.Goal.Y() - in.Position.Y(), 0}
		if dir.Len() > 1e-6 {
			dir = dir.Normalize()
		}
		c.brakeOverride = mgl64.Vec3{
			in.Position.X() + dir.X()*brakingDistance,
			in.Position.Y() + dir.Y()*brakingDistance,
			in.Goal.Z(),
		}
		c.firstBrake = true
	}

	out.GoalOverride = c.brakeOverride
	out.HaveGoalOverride = true
	out.Direction = c.brakeOverride
	out.CruiseSpeed = SelectCruiseSpeed(true, c.Cfg)
	return out
}

// stepGoBack implements spec.md §4.6 branch 3.
func (c *Controller) stepGoBack(in CycleInput, out Output) Output {
	if !c.backOffActive {
		c.backOffPoint = in.Cloud.ClosestPoint
		c.backOffStartPoint = in.Position
		c.backOffActive = true
	}

	if in.Position.Sub(c.backOffPoint).Len() > c.Cfg.MinDistBackoff+1.0 {
		c.backOffActive = false
	}

	out.Mode = ModeGoBack
	out.ObstacleAhead = true
	out.BackOffPoint = c.backOffPoint
	out.BackOffStartPoint = c.backOffStartPoint
	out.HaveBackOff = true
	out.MinDistBackoff = c.Cfg.MinDistBackoff

	away := in.Position.Sub(c.backOffPoint)
	if away.Len() > 1e-6 {
		away = away.Normalize()
	}
	out.Direction = in.Position.Add(away)
	out.CruiseSpeed = SelectCruiseSpeed(true, c.Cfg)
	return out
}

// stepPlan implements spec.md §4.6 branch 4: build the combined
// histogram and either run the VFH* tree search or fall back to the
// best costmap cell.
func (c *Controller) stepPlan(in CycleInput, out Output) Output {
	propagated := histogram.Propagate(c.Cfg.AlphaRes, in.PrevReprojected, in.Position, c.Cfg.ReprojAgeMax, c.Cfg.BoxRadius)
	newHist := histogram.New(c.Cfg.AlphaRes, in.Cloud.Points, in.Position)
	fov := histogram.ComputeFOV(c.Cfg.AlphaRes, in.YawDeg, in.PitchDeg, c.Cfg.HFovDeg, c.Cfg.VFovDeg)

	lastWaypointInFOV := false
	if in.HaveLastWaypoint {
		pol := geometry.WrapPolar(geometry.CartesianToPolar(in.LastSentWaypoint, in.Position))
		eIdx, zIdx := geometry.PolarToHistogramIndex(pol, c.Cfg.AlphaRes)
		lastWaypointInFOV = fov.In(eIdx, zIdx)
	}

	combined, histIsEmpty := histogram.Combine(newHist, propagated, fov, lastWaypointInFOV)
	out.Hist = combined
	out.FOV = fov
	out.HaveFOV = true
	out.Reprojected = histogram.Reproject(combined, in.Position)

	if histIsEmpty {
		out.Mode = ModeTryPath
		out.ObstacleAhead = false
		out.CruiseSpeed = SelectCruiseSpeed(false, c.Cfg)
		out.PathNodePositions = []mgl64.Vec3{in.Position, projectTowardGoal(in.Position, in.Goal, c.Cfg.Star.StepLength)}
		out.Direction = out.PathNodePositions[1]
		return out
	}

	goalPolar := geometry.CartesianToPolar(in.Goal, in.Position)
	var lastWaypointPolar geometry.Polar
	if in.HaveLastWaypoint {
		lastWaypointPolar = geometry.CartesianToPolar(in.LastSentWaypoint, in.Position)
	}
	costIn := costmap.Inputs{
		Hist:             combined,
		Goal:             goalPolar,
		CurrentYawDeg:    in.YawDeg,
		VehicleSpeed:     in.Velocity.Len(),
		LastWaypointDir:  lastWaypointPolar,
		HaveLastWaypoint: in.HaveLastWaypoint,
	}
	matrix := costmap.Build(c.Cfg.CostParams, costIn)

	if c.Cfg.UseVFHStar {
		opts := c.Cfg.Star
		opts.CostParams = c.Cfg.CostParams
		opts.FOV = fov
		tree, path, _ := star.Plan(c.tree, in.Position, in.YawDeg*geometry.DegToRad, in.Goal, combined, opts)
		c.tree = tree

		out.Mode = ModeTryPath
		out.ObstacleAhead = true
		out.PathNodePositions = path
		if len(path) > 1 {
			out.Direction = path[1]
		} else {
			out.Direction = path[0]
		}
		out.CruiseSpeed = SelectCruiseSpeed(true, c.Cfg)
		return out
	}

	best := matrix.BestCandidates(1)
	if len(best) == 0 {
		c.firstBrake = false
		return c.stepStopInFront(in, out)
	}

	cand := best[0]
	cellPolar := geometry.HistogramIndexToPolar(cand.EIdx, cand.ZIdx, combined.Res, c.Cfg.Star.StepLength)
	cellPolar.E += float64(combined.Res) / 2
	cellPolar.Z += float64(combined.Res) / 2
	direction := geometry.PolarToCartesian(cellPolar, in.Position)

	out.Mode = ModeCostmap
	out.ObstacleAhead = true
	out.Direction = direction
	out.CostmapDirectionE, out.CostmapDirectionZ = cand.EIdx, cand.ZIdx
	out.HaveCostmapDirection = true
	out.CruiseSpeed = SelectCruiseSpeed(true, c.Cfg)
	return out
}

// evaluateProgressRate maintains the rolling window of goal-distance
// incline samples and adapts HeightChangeCostParamAdapted per spec.md
// §4.6, reproducing the sign convention confirmed against
// original_source (avg_incline > no_progress_slope means the vehicle is
// falling behind, which lowers the vertical-maneuver cost).
func (c *Controller) evaluateProgressRate(in CycleInput) {
	if !c.Cfg.AdaptCostParams || in.Dt <= 0 {
		return
	}
	dNow := in.Position.Sub(in.Goal).Len()
	dPrev := in.PrevPosition.Sub(in.Goal).Len()
	incline := (dNow - dPrev) / in.Dt

	c.inclineWindow = append(c.inclineWindow, incline)
	if len(c.inclineWindow) > c.Cfg.DistInclineWindowSize {
		c.inclineWindow = c.inclineWindow[len(c.inclineWindow)-c.Cfg.DistInclineWindowSize:]
	}

	windowFull := len(c.inclineWindow) >= c.Cfg.DistInclineWindowSize
	avgIncline := stat.Mean(c.inclineWindow, nil)

	adapted := c.Cfg.CostParams.HeightChangeCostParamAdapted
	if avgIncline > c.Cfg.NoProgressSlope && windowFull {
		if adapted > 0.75 {
			adapted -= 0.02
		}
	}
	if avgIncline < c.Cfg.NoProgressSlope {
		if adapted < c.Cfg.CostParams.HeightChangeCostParam-0.03 {
			adapted += 0.03
		}
	}
	c.Cfg.CostParams.HeightChangeCostParamAdapted = clamp(adapted, 0.75, c.Cfg.CostParams.HeightChangeCostParam)
}

// SelectCruiseSpeed picks between the around-obstacles and
// far-from-obstacles cruise speeds; the actual velocity shaping
// (acceleration limiting, sigmoid blending) is left to the downstream
// setpoint shaper this controller's output feeds.
func SelectCruiseSpeed(obstacleAhead bool, cfg Config) float64 {
	if obstacleAhead {
		return cfg.VelocityAroundObstacles
	}
	return cfg.VelocityFarFromObstacles
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func projectTowardGoal(position, goal mgl64.Vec3, step float64) mgl64.Vec3 {
	dir := goal.Sub(position)
	if dir.Len() < 1e-9 {
		return position
	}
	return position.Add(dir.Normalize().Mul(step))
}
