package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// NormalizeQuat returns q scaled to unit length. The zero quaternion maps to the identity.
func NormalizeQuat(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/norm, q)
}

// RotateVector rotates v by the unit quaternion q.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// QuatAlmostEqual returns whether two unit quaternions describe the same rotation within tol.
// q and -q are the same rotation.
func QuatAlmostEqual(a, b quat.Number, tol float64) bool {
	same := func(x, y quat.Number) bool {
		return math.Abs(x.Real-y.Real) < tol &&
			math.Abs(x.Imag-y.Imag) < tol &&
			math.Abs(x.Jmag-y.Jmag) < tol &&
			math.Abs(x.Kmag-y.Kmag) < tol
	}
	return same(a, b) || same(a, quat.Scale(-1, b))
}

// QuatFromSlice builds a quaternion from a [w, x, y, z] slice. Any other length yields the
// identity.
func QuatFromSlice(wxyz []float64) quat.Number {
	if len(wxyz) != 4 {
		return quat.Number{Real: 1}
	}
	return NormalizeQuat(quat.Number{Real: wxyz[0], Imag: wxyz[1], Jmag: wxyz[2], Kmag: wxyz[3]})
}

// NewQuatFromRPY converts roll, pitch and yaw angles (fixed axes X, Y, Z, radians) to a unit
// quaternion.
func NewQuatFromRPY(roll, pitch, yaw float64) quat.Number {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}
