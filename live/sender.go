package live

import (
	"encoding/binary"
	"fmt"
	"net"
)

// OutputSender publishes the planner's per-cycle output over UDP,
// mirroring nad_nav/output.go's OutputSender but encoding the richer
// AvoidanceOutput contract instead of a four-field CSV command.
type OutputSender struct {
	conn *net.UDPConn
}

// NewOutputSender opens a UDP socket for the given address. An empty
// address yields a no-op sender, matching nad_nav/output.go's "Send is
// a no-op without a configured address" behavior.
func NewOutputSender(addr string) (*OutputSender, error) {
	if addr == "" {
		return &OutputSender{}, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("live: resolve output addr %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("live: dial output addr %q: %w", addr, err)
	}
	return &OutputSender{conn: conn}, nil
}

// Close releases the UDP socket.
func (s *OutputSender) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// SendableOutput is the subset of avoidance.Output the wire encoding
// needs; kept narrow so live does not import avoidance (avoidance
// already imports live).
type SendableOutput interface {
	EncodeWire() []byte
	ObstacleDistanceEntries() ([]uint16, bool)
}

// Send writes the output's CSV line, then, when send_obstacles_fcu
// produced a sweep, a second datagram carrying the obstacle_distance
// packet.
func (s *OutputSender) Send(out SendableOutput) {
	if s == nil || s.conn == nil {
		return
	}
	_, _ = s.conn.Write(out.EncodeWire())
	if entries, ok := out.ObstacleDistanceEntries(); ok {
		_, _ = s.conn.Write(EncodeObstacleDistance(entries))
	}
}

// EncodeObstacleDistance packs an obstacle_distance sweep into its
// wire form: a uint16 count followed by that many little-endian uint16
// range entries.
func EncodeObstacleDistance(entries []uint16) []byte {
	buf := make([]byte, 2+2*len(entries))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(entries)))
	off := 2
	for _, v := range entries {
		binary.LittleEndian.PutUint16(buf[off:off+2], v)
		off += 2
	}
	return buf
}
