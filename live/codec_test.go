package live

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePosePacketDecodesRequiredFields(t *testing.T) {
	line := "1.5,0,0,3,1,0,0,0,1,0,0,10,0,3,true"
	pkt, err := ParsePosePacket([]byte(line))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, pkt.Position.Z(), 1e-9)
	assert.True(t, pkt.Armed)
	assert.False(t, pkt.HasGroundDist)
}

func TestParsePosePacketDecodesOptionalTail(t *testing.T) {
	line := "1.5,0,0,3,1,0,0,0,1,0,0,10,0,3,true,1.8,9,0,3"
	pkt, err := ParsePosePacket([]byte(line))
	require.NoError(t, err)
	require.True(t, pkt.HasGroundDist)
	assert.InDelta(t, 1.8, pkt.GroundDistance, 1e-9)
	require.True(t, pkt.HasLastWaypoint)
	assert.InDelta(t, 9.0, pkt.LastSentWaypoint.X(), 1e-9)
}

func TestParsePosePacketRejectsShortPacket(t *testing.T) {
	_, err := ParsePosePacket([]byte("1,2,3"))
	assert.Error(t, err)
}

func encodeCloud(points [][3]float32) []byte {
	buf := make([]byte, 4+len(points)*12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(points)))
	off := 4
	for _, p := range points {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(p[0]))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(p[1]))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], math.Float32bits(p[2]))
		off += 12
	}
	return buf
}

func TestParseCloudPacketDropsNaNPoints(t *testing.T) {
	buf := encodeCloud([][3]float32{
		{1, 2, 3},
		{float32(math.NaN()), 0, 0},
		{4, 5, 6},
	})
	points, err := ParseCloudPacket(buf)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestParseCloudPacketRejectsTruncated(t *testing.T) {
	buf := encodeCloud([][3]float32{{1, 2, 3}})
	_, err := ParseCloudPacket(buf[:len(buf)-4])
	assert.Error(t, err)
}
