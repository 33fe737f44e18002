package live

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// GroundDistanceSample is the last reported ground-distance reading and
// when it arrived. Resolve falls back to a default when the reading is
// stale, mirroring the original local_planner's
// ground_distance_sensor_timeout_ behavior (spec.md §6).
type GroundDistanceSample struct {
	Value float64
	At    time.Time
}

// defaultGroundDistance and maxGroundDistanceAge implement spec.md §6's
// "default 2.0 m if the last reading is older than 0.5s."
const (
	defaultGroundDistance = 2.0
	maxGroundDistanceAge  = 500 * time.Millisecond
)

// Resolve returns the staged ground-distance value, or the default if
// it is stale or was never set.
func (g GroundDistanceSample) Resolve(now time.Time) float64 {
	if g.At.IsZero() || now.Sub(g.At) > maxGroundDistanceAge {
		return defaultGroundDistance
	}
	return g.Value
}

// CycleInputs is the snapshot the planner goroutine copies out of the
// Store at the top of a cycle, per spec.md §5's handoff protocol.
type CycleInputs struct {
	Position         mgl64.Vec3
	Orientation      mgl64.Quat
	Velocity         mgl64.Vec3
	Goal             mgl64.Vec3
	GroundDistance   GroundDistanceSample
	Armed            bool
	LastSentWaypoint mgl64.Vec3
	HaveLastWaypoint bool
	Clouds           [][]mgl64.Vec3
}

// Store is the cross-thread staging area: transport callbacks write to
// it under mu and signal cond once every configured camera has a fresh
// cloud; the planner goroutine blocks on cond in WaitForCycle. This is
// the Go analogue of nad_nav/live.go's liveStore, extended with a
// per-camera freshness bitmap per spec.md §5.
type Store struct {
	mu   sync.Mutex
	cond *sync.Cond

	havePose     bool
	pose         PosePacket
	groundDist   GroundDistanceSample
	clouds       [][]mgl64.Vec3
	camerasFresh []bool

	dataReady  bool
	shouldExit bool
}

// NewStore allocates a Store tracking nCameras independent cloud
// streams.
func NewStore(nCameras int) *Store {
	s := &Store{
		clouds:       make([][]mgl64.Vec3, nCameras),
		camerasFresh: make([]bool, nCameras),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// StagePose records the latest pose/velocity/goal packet.
func (s *Store) StagePose(p PosePacket, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = p
	s.havePose = true
	if p.HasGroundDist {
		s.groundDist = GroundDistanceSample{Value: p.GroundDistance, At: at}
	}
	s.maybeSignalLocked()
}

// StageCloud records camIdx's latest cloud and marks it fresh.
func (s *Store) StageCloud(camIdx int, cloud []mgl64.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if camIdx < 0 || camIdx >= len(s.clouds) {
		return
	}
	s.clouds[camIdx] = cloud
	s.camerasFresh[camIdx] = true
	s.maybeSignalLocked()
}

// maybeSignalLocked implements spec.md §5's handoff condition: every
// configured camera has delivered a fresh cloud since the last cycle.
// Transform availability is assumed (transport already transforms
// clouds to the local frame before staging, per spec.md §6).
func (s *Store) maybeSignalLocked() {
	if !s.havePose {
		return
	}
	for _, fresh := range s.camerasFresh {
		if !fresh {
			return
		}
	}
	s.dataReady = true
	s.cond.Signal()
}

// WaitForCycle blocks until data_ready or shutdown, then copies the
// staged fields and marks every camera not-fresh, matching spec.md §5's
// "copies staging fields ... marks all cameras as not fresh ... releases
// the copy lock." It returns ok=false only on shutdown.
func (s *Store) WaitForCycle() (CycleInputs, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.dataReady && !s.shouldExit {
		s.cond.Wait()
	}
	if s.shouldExit {
		return CycleInputs{}, false
	}

	in := CycleInputs{
		Position:         s.pose.Position,
		Orientation:      s.pose.Orientation,
		Velocity:         s.pose.Velocity,
		Goal:             s.pose.Goal,
		GroundDistance:   s.groundDist,
		Armed:            s.pose.Armed,
		LastSentWaypoint: s.pose.LastSentWaypoint,
		HaveLastWaypoint: s.pose.HasLastWaypoint,
		Clouds:           append([][]mgl64.Vec3(nil), s.clouds...),
	}

	for i := range s.camerasFresh {
		s.camerasFresh[i] = false
	}
	s.dataReady = false
	return in, true
}

// NotifyShutdown sets should_exit and wakes the planner goroutine so it
// can exit at its next wake, per spec.md §5.
func (s *Store) NotifyShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldExit = true
	s.cond.Broadcast()
}
