package spatialmath

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestTetrahedron(t *testing.T) {
	a, b, c, d := r3.Vector{X: 0, Y: 0, Z: 0}, r3.Vector{X: 1, Y: 0, Z: 0}, r3.Vector{X: 0, Y: 1, Z: 0}, r3.Vector{X: 0, Y: 0, Z: 1}
	faces := NewTetrahedron(a, b, c, d)
	test.That(t, len(faces), test.ShouldEqual, 4)

	centroid := a.Add(b).Add(c).Add(d).Mul(0.25)
	for _, f := range faces {
		// every face normal points away from the inside
		test.That(t, DistanceToPlane(centroid, f.Points()[0], f.Normal()), test.ShouldBeLessThan, 0)
	}

	test.That(t, TetrahedronContains(faces, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}), test.ShouldBeTrue)
	test.That(t, TetrahedronContains(faces, d), test.ShouldBeTrue)
	test.That(t, TetrahedronContains(faces, r3.Vector{X: 1, Y: 1, Z: 1}), test.ShouldBeFalse)
	test.That(t, TetrahedronContains(faces, r3.Vector{X: -0.01, Y: 0.1, Z: 0.1}), test.ShouldBeFalse)
	test.That(t, TetrahedronContains(nil, centroid), test.ShouldBeFalse)

	test.That(t, TetrahedronVolume(a, b, c, d), test.ShouldAlmostEqual, 1./6)
	// vertex order does not change the orientation of the faces
	reordered := NewTetrahedron(d, c, b, a)
	test.That(t, TetrahedronContains(reordered, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}), test.ShouldBeTrue)
}
