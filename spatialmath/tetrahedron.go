package spatialmath

import (
	"github.com/golang/geo/r3"
)

// tetrahedronFaces lists, for each face, the vertex indices followed by the index of the
// opposite vertex.
var tetrahedronFaces = [4][4]int{
	{0, 1, 2, 3},
	{0, 1, 3, 2},
	{0, 2, 3, 1},
	{1, 2, 3, 0},
}

// NewTetrahedron returns the four faces of the tetrahedron with vertices a, b, c and d. Every
// face normal points away from the opposite vertex. Degenerate (flat) inputs still yield four
// triangles but their normals are meaningless.
func NewTetrahedron(a, b, c, d r3.Vector) []*Triangle {
	pts := [4]r3.Vector{a, b, c, d}
	faces := make([]*Triangle, 0, 4)
	for _, f := range tetrahedronFaces {
		p0, p1, p2, opposite := pts[f[0]], pts[f[1]], pts[f[2]], pts[f[3]]
		if PlaneNormal(p0, p1, p2).Dot(opposite.Sub(p0)) > 0 {
			p1, p2 = p2, p1
		}
		faces = append(faces, NewTriangle(p0, p1, p2))
	}
	return faces
}

// TetrahedronContains returns whether pt lies inside or on the boundary of the tetrahedron
// described by faces built with NewTetrahedron.
func TetrahedronContains(faces []*Triangle, pt r3.Vector) bool {
	if len(faces) != 4 {
		return false
	}
	for _, f := range faces {
		if DistanceToPlane(pt, f.p0, f.normal) > floatEpsilon {
			return false
		}
	}
	return true
}

// TetrahedronVolume returns the volume of the tetrahedron a, b, c, d.
func TetrahedronVolume(a, b, c, d r3.Vector) float64 {
	v := b.Sub(a).Dot(c.Sub(a).Cross(d.Sub(a))) / 6
	if v < 0 {
		return -v
	}
	return v
}
