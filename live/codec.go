// Package live owns the transport-side staging store and UDP ingestion
// loop: pose/velocity packets and per-camera point-cloud packets are
// decoded here and staged into a Store the planner goroutine waits on,
// mirroring nad_nav/live.go's liveStore/parseLiveObservation shape
// extended to the avoidance planner's richer input set.
package live

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// PosePacket is the decoded form of one pose/velocity/goal telemetry
// packet.
type PosePacket struct {
	T                float64
	Position         mgl64.Vec3
	Orientation      mgl64.Quat
	Velocity         mgl64.Vec3
	Goal             mgl64.Vec3
	GroundDistance   float64
	HasGroundDist    bool
	Armed            bool
	LastSentWaypoint mgl64.Vec3
	HasLastWaypoint  bool
}

// ParsePosePacket decodes a CSV telemetry line:
//
//	t,px,py,pz,qw,qx,qy,qz,vx,vy,vz,gx,gy,gz,armed[,ground_dist[,lwx,lwy,lwz]]
//
// following the teacher's comma-separated, variable-tail-length
// convention (nad_nav/live.go:parseLiveObservation).
func ParsePosePacket(b []byte) (PosePacket, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return PosePacket{}, fmt.Errorf("live: empty pose packet")
	}
	parts := strings.Split(s, ",")
	if len(parts) < 15 {
		return PosePacket{}, fmt.Errorf("live: expected at least 15 fields, got %d", len(parts))
	}

	vals := make([]float64, 14)
	for i := 0; i < 14; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return PosePacket{}, fmt.Errorf("live: field %d: %w", i, err)
		}
		vals[i] = v
	}
	armed, err := parseBoolLoose(parts[14])
	if err != nil {
		return PosePacket{}, fmt.Errorf("live: armed field: %w", err)
	}

	pkt := PosePacket{
		T:           vals[0],
		Position:    mgl64.Vec3{vals[1], vals[2], vals[3]},
		Orientation: mgl64.Quat{W: vals[4], V: mgl64.Vec3{vals[5], vals[6], vals[7]}},
		Velocity:    mgl64.Vec3{vals[8], vals[9], vals[10]},
		Goal:        mgl64.Vec3{vals[11], vals[12], vals[13]},
		Armed:       armed,
	}

	if len(parts) >= 16 {
		gd, err := strconv.ParseFloat(strings.TrimSpace(parts[15]), 64)
		if err != nil {
			return PosePacket{}, fmt.Errorf("live: ground_distance field: %w", err)
		}
		pkt.GroundDistance = gd
		pkt.HasGroundDist = true
	}
	if len(parts) >= 19 {
		lx, err := strconv.ParseFloat(strings.TrimSpace(parts[16]), 64)
		if err != nil {
			return PosePacket{}, fmt.Errorf("live: last_waypoint.x: %w", err)
		}
		ly, err := strconv.ParseFloat(strings.TrimSpace(parts[17]), 64)
		if err != nil {
			return PosePacket{}, fmt.Errorf("live: last_waypoint.y: %w", err)
		}
		lz, err := strconv.ParseFloat(strings.TrimSpace(parts[18]), 64)
		if err != nil {
			return PosePacket{}, fmt.Errorf("live: last_waypoint.z: %w", err)
		}
		pkt.LastSentWaypoint = mgl64.Vec3{lx, ly, lz}
		pkt.HasLastWaypoint = true
	}
	return pkt, nil
}

// ParseCloudPacket decodes a length-prefixed binary point cloud: a
// little-endian uint32 point count followed by that many float32 (x, y,
// z) triples, already transformed to the local frame by the sending
// camera driver. NaN-padded points are dropped here.
func ParseCloudPacket(b []byte) ([]mgl64.Vec3, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("live: cloud packet shorter than length prefix")
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	want := 4 + int(n)*12
	if len(b) < want {
		return nil, fmt.Errorf("live: cloud packet truncated: want %d bytes, got %d", want, len(b))
	}

	points := make([]mgl64.Vec3, 0, n)
	off := 4
	for i := uint32(0); i < n; i++ {
		x := math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		z := math.Float32frombits(binary.LittleEndian.Uint32(b[off+8 : off+12]))
		off += 12
		if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) || math.IsNaN(float64(z)) {
			continue
		}
		points = append(points, mgl64.Vec3{float64(x), float64(y), float64(z)})
	}
	return points, nil
}

func parseBoolLoose(value string) (bool, error) {
	norm := strings.ToLower(strings.TrimSpace(value))
	switch norm {
	case "1", "true", "yes", "y", "t":
		return true, nil
	case "0", "false", "no", "n", "f":
		return false, nil
	default:
		f, err := strconv.ParseFloat(norm, 64)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}
