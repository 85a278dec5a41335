package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Ordered list of box vertices.
var boxVertices = [8]r3.Vector{
	{X: 1, Y: 1, Z: 1},
	{X: 1, Y: 1, Z: -1},
	{X: 1, Y: -1, Z: 1},
	{X: 1, Y: -1, Z: -1},
	{X: -1, Y: 1, Z: 1},
	{X: -1, Y: 1, Z: -1},
	{X: -1, Y: -1, Z: 1},
	{X: -1, Y: -1, Z: -1},
}

// The sets of indices of the box vertices that tile the box exterior.
var boxTriangles = [12][3]int{
	{0, 1, 3},
	{0, 2, 3},
	{0, 1, 5},
	{0, 4, 5},
	{0, 2, 6},
	{0, 4, 6},
	{7, 1, 3},
	{7, 2, 3},
	{7, 1, 5},
	{7, 4, 5},
	{7, 2, 6},
	{7, 4, 6},
}

// Box is a 3D rectangular prism defined by the pose of its center and its half sizes.
type Box struct {
	center   Pose
	halfSize [3]float64
	label    string
}

// NewBox instantiates a new box. Negative dimensions are rejected; zero dimensions are allowed.
func NewBox(pose Pose, dims r3.Vector, label string) (*Box, error) {
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return nil, newBadGeometryDimensionsError(dims)
	}
	halfSize := dims.Mul(0.5)
	return &Box{
		center:   pose,
		halfSize: [3]float64{halfSize.X, halfSize.Y, halfSize.Z},
		label:    label,
	}, nil
}

// String returns a human readable string that represents the box.
func (b *Box) String() string {
	pt := b.center.Point()
	return fmt.Sprintf("Type: Box | Position: X:%.1f, Y:%.1f, Z:%.1f | Dims: X:%.0f, Y:%.0f, Z:%.0f",
		pt.X, pt.Y, pt.Z, 2*b.halfSize[0], 2*b.halfSize[1], 2*b.halfSize[2])
}

// Label returns the label of this box.
func (b *Box) Label() string {
	return b.label
}

// SetLabel sets the label of this box.
func (b *Box) SetLabel(label string) {
	b.label = label
}

// Pose returns the pose of the box center.
func (b *Box) Pose() Pose {
	return b.center
}

// Dims returns the full side lengths of the box.
func (b *Box) Dims() r3.Vector {
	return r3.Vector{X: 2 * b.halfSize[0], Y: 2 * b.halfSize[1], Z: 2 * b.halfSize[2]}
}

// AlmostEqual compares the box with another box.
func (b *Box) AlmostEqual(other *Box) bool {
	for i := 0; i < 3; i++ {
		if !Float64AlmostEqual(b.halfSize[i], other.halfSize[i], 1e-8) {
			return false
		}
	}
	return PoseAlmostEqualEps(b.center, other.center, 1e-6)
}

// Transform premultiplies the box pose with a transform, allowing the box to be moved in space.
func (b *Box) Transform(toPremultiply Pose) *Box {
	return &Box{
		center:   Compose(toPremultiply, b.center),
		halfSize: b.halfSize,
		label:    b.label,
	}
}

// Vertices returns the eight corners of the box.
func (b *Box) Vertices() []r3.Vector {
	verts := make([]r3.Vector, 0, 8)
	for _, vert := range boxVertices {
		offset := r3.Vector{X: vert.X * b.halfSize[0], Y: vert.Y * b.halfSize[1], Z: vert.Z * b.halfSize[2]}
		verts = append(verts, TransformPoint(b.center, offset))
	}
	return verts
}

// ToMesh returns a 12-triangle mesh representation of the box, 2 right triangles for each face.
func (b *Box) ToMesh() *Mesh {
	triangles := make([]*Triangle, 0, len(boxTriangles))
	verts := b.Vertices()
	for _, tri := range boxTriangles {
		triangles = append(triangles, NewTriangle(verts[tri[0]], verts[tri[1]], verts[tri[2]]))
	}
	return NewMesh(NewZeroPose(), triangles)
}

// ClosestPoint returns the point of the box closest to pt.
// Reference: https://github.com/gszauer/GamePhysicsCookbook/blob/a0b8ee0c39fed6d4b90bb6d2195004dfcf5a1115/Code/Geometry3D.cpp#L165
func (b *Box) ClosestPoint(pt r3.Vector) r3.Vector {
	local := b.toLocal(pt)
	clamped := r3.Vector{
		X: math.Max(-b.halfSize[0], math.Min(b.halfSize[0], local.X)),
		Y: math.Max(-b.halfSize[1], math.Min(b.halfSize[1], local.Y)),
		Z: math.Max(-b.halfSize[2], math.Min(b.halfSize[2], local.Z)),
	}
	return TransformPoint(b.center, clamped)
}

// ContainsPoint returns whether pt is inside the box or within buffer of its surface.
func (b *Box) ContainsPoint(pt r3.Vector, buffer float64) bool {
	local := b.toLocal(pt)
	return math.Abs(local.X) <= b.halfSize[0]+buffer &&
		math.Abs(local.Y) <= b.halfSize[1]+buffer &&
		math.Abs(local.Z) <= b.halfSize[2]+buffer
}

// EncompassedBy returns whether every vertex of b is inside outer.
func (b *Box) EncompassedBy(outer *Box) bool {
	for _, vertex := range b.Vertices() {
		if !outer.ContainsPoint(vertex, floatEpsilon) {
			return false
		}
	}
	return true
}

func (b *Box) toLocal(pt r3.Vector) r3.Vector {
	return TransformPoint(PoseInverse(b.center), pt)
}
