// Package spatialmath defines the rigid transforms and simple geometries used to place robot
// frames, obstacles and sensor data in space.
package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/dualquat"
	"gonum.org/v1/gonum/num/quat"
)

// Pose represents a 6dof pose in space: a translation and an orientation. Poses are immutable.
type Pose interface {
	// Point returns the translation of the pose.
	Point() r3.Vector
	// Orientation returns the rotation of the pose as a unit quaternion.
	Orientation() quat.Number
}

// dualQuaternion stores a pose as a unit dual quaternion: the real part is the rotation, the dual
// part is half the translation multiplied by the rotation.
type dualQuaternion struct {
	dualquat.Number
}

// NewZeroPose returns a pose at (0,0,0) with no rotation.
func NewZeroPose() Pose {
	return &dualQuaternion{dualquat.Number{Real: quat.Number{Real: 1}}}
}

// NewPoseFromPoint returns a pose with the given translation and no rotation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return NewPose(point, quat.Number{Real: 1})
}

// NewPoseFromAxisAngle returns a pose with the given translation and a rotation of theta
// radians around axis.
func NewPoseFromAxisAngle(point r3.Vector, aa *R4AA) Pose {
	return NewPose(point, aa.ToQuat())
}

// NewPose returns a pose with the given translation and rotation. The quaternion is normalized;
// a zero quaternion is treated as the identity.
func NewPose(point r3.Vector, orientation quat.Number) Pose {
	rot := NormalizeQuat(orientation)
	return &dualQuaternion{dualquat.Number{
		Real: rot,
		Dual: quat.Scale(0.5, quat.Mul(quat.Number{Imag: point.X, Jmag: point.Y, Kmag: point.Z}, rot)),
	}}
}

func (q *dualQuaternion) Point() r3.Vector {
	t := quat.Scale(2, quat.Mul(q.Dual, quat.Conj(q.Real)))
	return r3.Vector{X: t.Imag, Y: t.Jmag, Z: t.Kmag}
}

func (q *dualQuaternion) Orientation() quat.Number {
	return q.Real
}

func (q *dualQuaternion) String() string {
	pt := q.Point()
	return fmt.Sprintf("{X:%.3f Y:%.3f Z:%.3f Q:%v}", pt.X, pt.Y, pt.Z, q.Real)
}

func asDualQuaternion(p Pose) *dualQuaternion {
	if dq, ok := p.(*dualQuaternion); ok {
		return dq
	}
	return NewPose(p.Point(), p.Orientation()).(*dualQuaternion)
}

// Compose returns the pose obtained by applying b in the frame of a, i.e. a*b.
func Compose(a, b Pose) Pose {
	result := &dualQuaternion{dualquat.Mul(asDualQuaternion(a).Number, asDualQuaternion(b).Number)}
	// Keep the rotation normalized so that long kinematic chains do not drift.
	result.Real = NormalizeQuat(result.Real)
	return result
}

// PoseInverse returns the pose that undoes p.
func PoseInverse(p Pose) Pose {
	return &dualQuaternion{dualquat.Conj(asDualQuaternion(p).Number)}
}

// PoseBetween returns the pose that takes a to b, i.e. Compose(a, PoseBetween(a, b)) == b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// TransformPoint expresses in the parent frame of p a point given in the frame of p.
func TransformPoint(p Pose, pt r3.Vector) r3.Vector {
	return RotateVector(p.Orientation(), pt).Add(p.Point())
}

// PoseAlmostEqual returns whether two poses are equal up to a default tolerance.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-8)
}

// PoseAlmostEqualEps returns whether the translations differ by less than epsilon and the
// rotations describe the same orientation up to a fixed 1e-5 tolerance.
func PoseAlmostEqualEps(a, b Pose, epsilon float64) bool {
	return R3VectorAlmostEqual(a.Point(), b.Point(), epsilon) &&
		QuatAlmostEqual(a.Orientation(), b.Orientation(), 1e-5)
}
