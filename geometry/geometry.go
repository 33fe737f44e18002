// Package geometry implements the polar/cartesian conversions and angular
// utilities shared by the histogram, cost-matrix, and tree-search
// components of the avoidance planner.
package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	DegToRad = math.Pi / 180
	RadToDeg = 180 / math.Pi
)

// Polar is a point expressed in the vehicle-relative polar frame:
// elevation in degrees [-90, 90], azimuth in degrees (-180, 180] measured
// from +Y, and radius in meters.
type Polar struct {
	E float64
	Z float64
	R float64
}

// CartesianToPolar converts p into a Polar point relative to origin.
func CartesianToPolar(p, origin mgl64.Vec3) Polar {
	d := p.Sub(origin)
	r := d.Len()
	if r == 0 {
		return Polar{E: 0, Z: 0, R: 0}
	}
	z := math.Atan2(d.X(), d.Y()) * RadToDeg
	xy := math.Hypot(d.X(), d.Y())
	e := math.Atan2(d.Z(), xy) * RadToDeg
	return Polar{E: e, Z: wrapAzimuthDeg(z), R: r}
}

// PolarToCartesian is the exact inverse of CartesianToPolar on the valid
// domain.
func PolarToCartesian(p Polar, origin mgl64.Vec3) mgl64.Vec3 {
	eRad := p.E * DegToRad
	zRad := p.Z * DegToRad
	x := origin.X() + p.R*math.Cos(eRad)*math.Sin(zRad)
	y := origin.Y() + p.R*math.Cos(eRad)*math.Cos(zRad)
	zc := origin.Z() + p.R*math.Sin(eRad)
	return mgl64.Vec3{x, y, zc}
}

// WrapPolar folds an elevation outside [-90, 90) back into range,
// flipping azimuth by 180 degrees for every reflection through the pole.
// Straight up (E == 90) is its own reflection, so that case is nudged
// just below 90 instead of looping forever on a fixed point.
func WrapPolar(p Polar) Polar {
	for p.E < -90 || p.E >= 90 {
		if p.E >= 90 {
			reflected := 180 - p.E
			if reflected >= 90 {
				reflected = math.Nextafter(90, 0)
			}
			p.E = reflected
		} else {
			p.E = -180 - p.E
		}
		p.Z = wrapAzimuthDeg(p.Z + 180)
	}
	return p
}

// PolarToHistogramIndex maps a polar angle to a histogram cell at the
// given angular resolution (degrees). Invalid input (NaN, or elevation
// outside [-90, 90] before wrapping) yields index (0, 0).
func PolarToHistogramIndex(p Polar, res int) (eIdx, zIdx int) {
	if res <= 0 || math.IsNaN(p.E) || math.IsNaN(p.Z) || p.E < -90 || p.E > 90 {
		return 0, 0
	}
	gridLengthZ := 360 / res
	gridLengthE := 180 / res

	zIdx = int(math.Floor((p.Z + 180) / float64(res)))
	zIdx = ((zIdx % gridLengthZ) + gridLengthZ) % gridLengthZ

	eIdx = int(math.Floor((p.E + 90) / float64(res)))
	if eIdx < 0 {
		eIdx = 0
	}
	if eIdx > gridLengthE-1 {
		eIdx = gridLengthE - 1
	}
	return eIdx, zIdx
}

// HistogramIndexToPolar returns the lower-corner angle of the cell at
// (eIdx, zIdx) for the given resolution and radius. Callers add res/2 to
// obtain the cell center.
func HistogramIndexToPolar(eIdx, zIdx, res int, r float64) Polar {
	return Polar{
		E: float64(eIdx*res) - 90,
		Z: float64(zIdx*res) - 180,
		R: r,
	}
}

// NextYaw computes the heading (radians) from u towards v. When u and v
// are closer than 1e-6 in the horizontal plane (their vertical offset is
// ignored), the direction is undefined and previousYaw is returned
// unchanged.
func NextYaw(u, v mgl64.Vec3, previousYaw float64) float64 {
	dx := v.X() - u.X()
	dy := v.Y() - u.Y()
	if math.Hypot(dx, dy) < 1e-6 {
		return previousYaw
	}
	return math.Atan2(dx, dy)
}

// maxAngularVelocity bounds the scaled yaw-rate command returned by
// GetAngularVelocity.
const maxAngularVelocity = 1.5 // rad/s

// angularVelocityGain scales the wrapped heading error into a rate
// command before clamping to maxAngularVelocity.
const angularVelocityGain = 2.0

// GetAngularVelocity wraps (desired - current) into [-pi, pi] and scales
// it linearly into a bounded angular-rate command.
func GetAngularVelocity(desiredYaw, currYaw float64) float64 {
	diff := WrapAngleToPlusMinusPi(desiredYaw - currYaw)
	v := diff * angularVelocityGain
	if v > maxAngularVelocity {
		return maxAngularVelocity
	}
	if v < -maxAngularVelocity {
		return -maxAngularVelocity
	}
	return v
}

// WrapAngleToPlusMinusPi wraps an angle in radians into (-pi, pi].
func WrapAngleToPlusMinusPi(angle float64) float64 {
	for angle > math.Pi {
		angle -= 2 * math.Pi
	}
	for angle <= -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}

// WrapAngleToPlusMinus180 wraps an angle in degrees into (-180, 180].
func WrapAngleToPlusMinus180(angle float64) float64 {
	for angle > 180 {
		angle -= 360
	}
	for angle <= -180 {
		angle += 360
	}
	return angle
}

func wrapAzimuthDeg(z float64) float64 {
	return WrapAngleToPlusMinus180(z)
}

// GetYawFromQuaternion extracts the yaw angle in degrees from an
// orientation quaternion.
func GetYawFromQuaternion(q mgl64.Quat) float64 {
	x, y, z := q.V.X(), q.V.Y(), q.V.Z()
	siny := 2 * (q.W*z + x*y)
	cosy := 1 - 2*(y*y+z*z)
	return math.Atan2(siny, cosy) * RadToDeg
}

// GetPitchFromQuaternion extracts the pitch angle in degrees from an
// orientation quaternion.
func GetPitchFromQuaternion(q mgl64.Quat) float64 {
	x, y, z := q.V.X(), q.V.Y(), q.V.Z()
	sinp := 2 * (q.W*y - z*x)
	if sinp > 1 {
		sinp = 1
	}
	if sinp < -1 {
		sinp = -1
	}
	return math.Asin(sinp) * RadToDeg
}
