// Package referenceframe holds the kinematic description of a robot. A Model is a tree of
// frames rooted at World; given a configuration it yields the world pose of every frame.
package referenceframe

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	spatial "github.com/agimus-project/agimus/spatialmath"
)

// World is the name of the root frame every model is attached to.
const World = "world"

const axisEpsilon = 1e-8

// Limit bounds the value of one degree of freedom.
type Limit struct {
	Min float64
	Max float64
}

func (l Limit) contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

func (l Limit) almostEqual(other Limit) bool {
	const eps = 1e-5
	return spatial.Float64AlmostEqual(l.Min, other.Min, eps) && spatial.Float64AlmostEqual(l.Max, other.Max, eps)
}

// Frame is one element of a kinematic chain: a fixed placement or a single joint.
type Frame interface {
	Name() string
	// Transform returns the pose of the frame in its parent for the given inputs. Inputs outside
	// DoF still produce a valid pose, along with an error for which IsOOBError holds.
	Transform([]Input) (spatial.Pose, error)
	// DoF returns one Limit per degree of freedom; empty for fixed frames.
	DoF() []Limit
	// AlmostEquals compares up to floating point noise.
	AlmostEquals(other Frame) bool
}

type staticFrame struct {
	name string
	pose spatial.Pose
}

// NewStaticFrame returns a fixed frame placed at pose in its parent.
func NewStaticFrame(name string, pose spatial.Pose) (Frame, error) {
	if pose == nil {
		return nil, errors.Errorf("static frame %q needs a pose", name)
	}
	return &staticFrame{name: name, pose: pose}, nil
}

// NewZeroStaticFrame returns a fixed frame coinciding with its parent.
func NewZeroStaticFrame(name string) Frame {
	return &staticFrame{name: name, pose: spatial.NewZeroPose()}
}

// FrameFromPoint returns a fixed frame translated by point from its parent.
func FrameFromPoint(name string, point r3.Vector) (Frame, error) {
	return NewStaticFrame(name, spatial.NewPoseFromPoint(point))
}

func (f *staticFrame) Name() string { return f.name }

func (f *staticFrame) DoF() []Limit { return nil }

func (f *staticFrame) Transform(input []Input) (spatial.Pose, error) {
	if len(input) != 0 {
		return nil, NewIncorrectDoFError(len(input), 0)
	}
	return f.pose, nil
}

func (f *staticFrame) AlmostEquals(other Frame) bool {
	o, ok := other.(*staticFrame)
	return ok && f.name == o.name && spatial.PoseAlmostEqual(f.pose, o.pose)
}

type jointKind int

const (
	revolute jointKind = iota
	prismatic
)

// jointFrame moves along (prismatic) or around (revolute) a unit axis by a single input.
type jointFrame struct {
	name  string
	kind  jointKind
	axis  r3.Vector
	limit Limit
}

func newJointFrame(name string, kind jointKind, axis r3.Vector, limit Limit) (Frame, error) {
	if spatial.R3VectorAlmostEqual(axis, r3.Vector{}, axisEpsilon) {
		return nil, errors.Errorf("joint %q has a zero axis", name)
	}
	return &jointFrame{name: name, kind: kind, axis: axis.Normalize(), limit: limit}, nil
}

// NewRotationalFrame returns a revolute joint turning about axis, in radians.
func NewRotationalFrame(name string, axis r3.Vector, limit Limit) (Frame, error) {
	return newJointFrame(name, revolute, axis, limit)
}

// NewTranslationalFrame returns a prismatic joint sliding along axis, in mm.
func NewTranslationalFrame(name string, axis r3.Vector, limit Limit) (Frame, error) {
	return newJointFrame(name, prismatic, axis, limit)
}

func (f *jointFrame) Name() string { return f.name }

func (f *jointFrame) DoF() []Limit { return []Limit{f.limit} }

func (f *jointFrame) Transform(input []Input) (spatial.Pose, error) {
	if len(input) != 1 {
		return nil, NewIncorrectDoFError(len(input), 1)
	}
	v := input[0].Value
	var err error
	if !f.limit.contains(v) {
		err = errors.Errorf("joint %q: %.5f %s [%g, %g]", f.name, v, OOBErrString, f.limit.Min, f.limit.Max)
	}
	if f.kind == prismatic {
		return spatial.NewPoseFromPoint(f.axis.Mul(v)), err
	}
	return spatial.NewPoseFromAxisAngle(r3.Vector{}, &spatial.R4AA{Theta: v, RX: f.axis.X, RY: f.axis.Y, RZ: f.axis.Z}), err
}

func (f *jointFrame) AlmostEquals(other Frame) bool {
	o, ok := other.(*jointFrame)
	return ok && f.name == o.name && f.kind == o.kind &&
		spatial.R3VectorAlmostEqual(f.axis, o.axis, axisEpsilon) && f.limit.almostEqual(o.limit)
}
