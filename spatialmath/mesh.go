package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Mesh is a set of triangles expressed in the frame given by its pose.
type Mesh struct {
	pose      Pose
	triangles []*Triangle
}

// NewMesh creates a mesh from triangles expressed relative to pose.
func NewMesh(pose Pose, triangles []*Triangle) *Mesh {
	return &Mesh{
		pose:      pose,
		triangles: triangles,
	}
}

// Pose returns the pose of the mesh.
func (m *Mesh) Pose() Pose {
	return m.pose
}

// Triangles returns the triangles of the mesh, in the mesh frame.
func (m *Mesh) Triangles() []*Triangle {
	return m.triangles
}

// Transform premultiplies the mesh pose with pose.
func (m *Mesh) Transform(pose Pose) *Mesh {
	// Triangle points are in frame of mesh, like the corners of a box, so no need to transform them
	return &Mesh{
		pose:      Compose(pose, m.pose),
		triangles: m.triangles,
	}
}

// WorldTriangles returns the triangles expressed in the parent frame of the mesh pose.
func (m *Mesh) WorldTriangles() []*Triangle {
	out := make([]*Triangle, 0, len(m.triangles))
	for _, t := range m.triangles {
		out = append(out, t.Transform(m.pose))
	}
	return out
}

// DistanceToPoint returns the distance from pt to the closest triangle of the mesh.
func (m *Mesh) DistanceToPoint(pt r3.Vector) float64 {
	best := math.Inf(1)
	for _, t := range m.WorldTriangles() {
		if d := t.ClosestPointToPoint(pt).Sub(pt).Norm(); d < best {
			best = d
		}
	}
	return best
}
