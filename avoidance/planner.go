// Package avoidance is the top-level lifecycle owner: it wires the
// cloud filter, histogram, cost matrix, tree search, and strategy
// controller into one per-cycle pipeline, and assembles the
// AvoidanceOutput contract each cycle produces. It mirrors
// nad_nav/live.go's RunLive loop shape, generalized from the teacher's
// single-controller step to the richer pose/velocity/cloud input set
// spec.md §6 describes.
package avoidance

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"avoidance-planner/cloudfilter"
	"avoidance-planner/config"
	"avoidance-planner/geometry"
	"avoidance-planner/histogram"
	"avoidance-planner/live"
	"avoidance-planner/strategy"
)

// ErrSkipCycle is returned by RunCycle when transient data
// unavailability (spec.md §7) forces the cycle to be skipped without
// error escalation.
var ErrSkipCycle = errors.New("avoidance: skipping cycle, inputs not ready")

// Planner owns all mutable planning state for its lifetime (spec.md
// §3's Lifecycle). ApplyConfig mutates tuning parameters under mu;
// RunCycle takes mu for the duration of one cycle.
type Planner struct {
	mu sync.Mutex

	cfg        config.PlannerConfig
	controller *strategy.Controller
	cloudCfg   cloudfilter.Params

	sendObstaclesFCU bool
	log              *zap.SugaredLogger

	prevReprojected []histogram.ReprojectedPoint
	prevPosition    mgl64.Vec3
	prevTime        time.Time
	haveHistory     bool
	lastOutput      Output
	haveLastOutput  bool
}

// New constructs a Planner from an initial validated configuration.
func New(cfg config.AppConfig, log *zap.SugaredLogger) *Planner {
	sc := cfg.Planner.StrategyConfig()
	return &Planner{
		cfg:        cfg.Planner,
		controller: strategy.NewController(sc),
		cloudCfg: cloudfilter.Params{
			MinSensorRange: cfg.Planner.MinSensorRange,
			MinCloudSize:   cfg.Planner.MinCloudSize,
			MinDistBackoff: cfg.Planner.MinDistBackoff,
		},
		sendObstaclesFCU: cfg.Output.SendObstaclesFCU,
		log:              log,
	}
}

// ApplyConfig validates the incoming configuration before swapping it
// in, atomically, under mu — a rejected configuration leaves the
// previous one untouched (spec.md §7's "rejected at apply time;
// previous config retained"), grounded on nad_nav/config.go's
// validate-then-assign LoadConfig shape.
func (p *Planner) ApplyConfig(cfg config.AppConfig) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("avoidance: reject config: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg.Planner
	p.controller.Cfg = cfg.Planner.StrategyConfig()
	p.cloudCfg = cloudfilter.Params{
		MinSensorRange: cfg.Planner.MinSensorRange,
		MinCloudSize:   cfg.Planner.MinCloudSize,
		MinDistBackoff: cfg.Planner.MinDistBackoff,
	}
	p.sendObstaclesFCU = cfg.Output.SendObstaclesFCU
	return nil
}

// RunCycle consumes one CycleInputs snapshot (already copied out of the
// live.Store by the caller, per spec.md §5) and runs one end-to-end
// planning cycle, returning the resulting Output.
func (p *Planner) RunCycle(in live.CycleInputs, now time.Time) (Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(in.Clouds) == 0 {
		return Output{}, ErrSkipCycle
	}

	box := histogram.NewBox(in.Position, p.cfg.BoxRadius, p.cfg.GroundClearance, p.cfg.FloorMargin)
	filtered := cloudfilter.Filter(in.Clouds, in.Position, box, p.cloudCfg)

	dt := 0.0
	prevPosition := in.Position
	if p.haveHistory {
		dt = now.Sub(p.prevTime).Seconds()
		prevPosition = p.prevPosition
	}

	yawDeg := geometry.GetYawFromQuaternion(in.Orientation)
	pitchDeg := geometry.GetPitchFromQuaternion(in.Orientation)

	stepIn := strategy.CycleInput{
		Position:         in.Position,
		PrevPosition:     prevPosition,
		Velocity:         in.Velocity,
		YawDeg:           yawDeg,
		PitchDeg:         pitchDeg,
		Armed:            in.Armed,
		Goal:             in.Goal,
		LastSentWaypoint: in.LastSentWaypoint,
		HaveLastWaypoint: in.HaveLastWaypoint,
		Cloud:            filtered,
		PrevReprojected:  p.prevReprojected,
		Dt:               dt,
	}

	stepOut := p.controller.Step(stepIn)
	p.prevReprojected = stepOut.Reprojected
	p.prevPosition = in.Position
	p.prevTime = now
	p.haveHistory = true

	cycleID := uuid.NewString()
	out := FromStrategy(stepOut, now, cycleID)
	out.VelocityAroundObstacles = p.cfg.VelocityAroundObstacles
	out.VelocityFarFromObstacles = p.cfg.VelocityFarFromObstacles

	if p.sendObstaclesFCU && stepOut.Hist != nil && stepOut.HaveFOV {
		out.ObstacleDistance = BuildObstacleDistance(stepOut.Hist, stepOut.FOV)
	}

	if p.log != nil {
		p.log.Debugw("avoidance: cycle complete",
			"cycle_id", cycleID,
			"mode", stepOut.Mode.String(),
			"obstacle_ahead", stepOut.ObstacleAhead,
		)
	}

	p.lastOutput = out
	p.haveLastOutput = true
	return out, nil
}

// LastOutput returns the most recently produced Output, the only other
// piece of cross-thread state besides the live.Store staging fields
// (spec.md §5).
func (p *Planner) LastOutput() (Output, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOutput, p.haveLastOutput
}
