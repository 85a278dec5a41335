package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

const floatEpsilon = 1e-9

// Float64AlmostEqual compares two floats and returns if the difference between them is less than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// R3VectorAlmostEqual compares two r3.Vector objects and returns if the all elementwise differences are less than epsilon.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}

// PlaneNormal returns the unit normal of the plane through p0, p1 and p2, oriented by the right
// hand rule. Degenerate (colinear) points yield the zero vector.
func PlaneNormal(p0, p1, p2 r3.Vector) r3.Vector {
	n := p1.Sub(p0).Cross(p2.Sub(p0))
	if norm := n.Norm(); norm > 0 {
		return n.Mul(1 / norm)
	}
	return r3.Vector{}
}

// ClosestPointSegmentPoint returns the point of the segment [segStart, segEnd] closest to pt.
func ClosestPointSegmentPoint(segStart, segEnd, pt r3.Vector) r3.Vector {
	segment := segEnd.Sub(segStart)
	lengthSq := segment.Norm2()
	if lengthSq == 0 {
		return segStart
	}
	t := pt.Sub(segStart).Dot(segment) / lengthSq
	t = math.Max(0, math.Min(1, t))
	return segStart.Add(segment.Mul(t))
}

// DistanceToPlane returns the signed distance of pt to the plane through planePt with normal
// planeNormal. Positive values are on the side the normal points to.
func DistanceToPlane(pt, planePt, planeNormal r3.Vector) float64 {
	n := planeNormal
	if norm := n.Norm(); norm > 0 {
		n = n.Mul(1 / norm)
	}
	return pt.Sub(planePt).Dot(n)
}
