package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestBasicTriangleFunctions(t *testing.T) {
	expectedPts := []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 3, Z: 0}, {X: 3, Y: 0, Z: 0}}
	tri := NewTriangle(expectedPts[0], expectedPts[1], expectedPts[2])

	expectedNormal := r3.Vector{X: 0, Y: 0, Z: -1}
	expectedArea := 4.5
	expectedCentroid := r3.Vector{X: 1, Y: 1, Z: 0}

	t.Run("constructor", func(t *testing.T) {
		test.That(t, tri.Points(), test.ShouldResemble, expectedPts)
		test.That(t, tri.Normal(), test.ShouldResemble, expectedNormal)
	})

	t.Run("area", func(t *testing.T) {
		test.That(t, tri.Area(), test.ShouldEqual, expectedArea)
	})

	t.Run("centroid", func(t *testing.T) {
		test.That(t, R3VectorAlmostEqual(tri.Centroid(), expectedCentroid, 1e-9), test.ShouldBeTrue)
	})

	t.Run("transform", func(t *testing.T) {
		tf := NewPoseFromAxisAngle(r3.Vector{X: 1, Y: 1, Z: 1}, &R4AA{Theta: math.Pi, RZ: 1})
		tri2 := tri.Transform(tf)
		expected := []r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 1, Y: -2, Z: 1}, {X: -2, Y: 1, Z: 1}}
		for i, pt := range tri2.Points() {
			test.That(t, R3VectorAlmostEqual(pt, expected[i], 1e-9), test.ShouldBeTrue)
		}
	})

	t.Run("closest triangle inside point", func(t *testing.T) {
		// interior
		closestPoint, isInside := tri.ClosestInsidePoint(r3.Vector{X: 1, Y: 1, Z: 1})
		test.That(t, R3VectorAlmostEqual(closestPoint, r3.Vector{X: 1, Y: 1, Z: 0}, 1e-9), test.ShouldBeTrue)
		test.That(t, isInside, test.ShouldBeTrue)

		// above edge
		closestPoint, isInside = tri.ClosestInsidePoint(r3.Vector{X: 2, Y: 0, Z: 1})
		test.That(t, R3VectorAlmostEqual(closestPoint, r3.Vector{X: 2, Y: 0, Z: 0}, 1e-9), test.ShouldBeTrue)
		test.That(t, isInside, test.ShouldBeTrue)

		// outside (obtuse with triangle)
		_, isInside = tri.ClosestInsidePoint(r3.Vector{X: 1, Y: -1, Z: 1})
		test.That(t, isInside, test.ShouldBeFalse)

		// outside (straight with triangle)
		_, isInside = tri.ClosestInsidePoint(r3.Vector{X: 0, Y: 4, Z: 0})
		test.That(t, isInside, test.ShouldBeFalse)
	})

	t.Run("closest triangle point", func(t *testing.T) {
		closestPoint := tri.ClosestPointToPoint(r3.Vector{X: 1, Y: 1, Z: 1})
		test.That(t, R3VectorAlmostEqual(closestPoint, r3.Vector{X: 1, Y: 1, Z: 0}, 1e-9), test.ShouldBeTrue)

		// closest point is edge
		closestPoint = tri.ClosestPointToPoint(r3.Vector{X: 3, Y: 2, Z: 1})
		test.That(t, R3VectorAlmostEqual(closestPoint, r3.Vector{X: 2, Y: 1, Z: 0}, 1e-9), test.ShouldBeTrue)

		// closest point is vertex
		closestPoint = tri.ClosestPointToPoint(r3.Vector{X: -1, Y: -1, Z: 1})
		test.That(t, R3VectorAlmostEqual(closestPoint, r3.Vector{X: 0, Y: 0, Z: 0}, 1e-9), test.ShouldBeTrue)
	})
}

func TestTrianglePlaneIntersection(t *testing.T) {
	tri := NewTriangle(r3.Vector{X: 0, Y: 0, Z: -1}, r3.Vector{X: 2, Y: 0, Z: 1}, r3.Vector{X: 0, Y: 2, Z: 1})

	test.That(t, tri.IntersectsPlane(r3.Vector{}, r3.Vector{X: 0, Y: 0, Z: 1}), test.ShouldBeTrue)
	test.That(t, tri.IntersectsPlane(r3.Vector{X: 0, Y: 0, Z: 5}, r3.Vector{X: 0, Y: 0, Z: 1}), test.ShouldBeFalse)

	a, b, ok := tri.TrianglePlaneIntersectingSegment(r3.Vector{}, r3.Vector{X: 0, Y: 0, Z: 1})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, a.Z, test.ShouldAlmostEqual, 0)
	test.That(t, b.Z, test.ShouldAlmostEqual, 0)
	test.That(t, a.Sub(b).Norm(), test.ShouldAlmostEqual, math.Sqrt2)
}
