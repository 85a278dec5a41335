package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Triangle is a face in space. Its normal follows the right hand rule on p0, p1, p2.
type Triangle struct {
	p0, p1, p2 r3.Vector
	normal     r3.Vector
}

// NewTriangle returns the triangle p0, p1, p2.
func NewTriangle(p0, p1, p2 r3.Vector) *Triangle {
	return &Triangle{p0: p0, p1: p1, p2: p2, normal: PlaneNormal(p0, p1, p2)}
}

// Points returns the vertices in construction order.
func (t *Triangle) Points() []r3.Vector {
	return []r3.Vector{t.p0, t.p1, t.p2}
}

// Normal returns the unit normal, or the zero vector for a degenerate triangle.
func (t *Triangle) Normal() r3.Vector {
	return t.normal
}

// Area returns the area of the triangle.
func (t *Triangle) Area() float64 {
	return t.p1.Sub(t.p0).Cross(t.p2.Sub(t.p0)).Norm() / 2
}

// Centroid returns the mean of the vertices.
func (t *Triangle) Centroid() r3.Vector {
	return t.p0.Add(t.p1).Add(t.p2).Mul(1. / 3)
}

// Transform returns the triangle with its vertices moved by pose.
func (t *Triangle) Transform(pose Pose) *Triangle {
	return NewTriangle(TransformPoint(pose, t.p0), TransformPoint(pose, t.p1), TransformPoint(pose, t.p2))
}

// barycentric returns the weights of p1 and p2 of the projection of pt on the plane of t.
func (t *Triangle) barycentric(pt r3.Vector) (u, v float64) {
	e0, e1, d := t.p1.Sub(t.p0), t.p2.Sub(t.p0), pt.Sub(t.p0)
	d00, d01, d11 := e0.Dot(e0), e0.Dot(e1), e1.Dot(e1)
	d20, d21 := d.Dot(e0), d.Dot(e1)
	det := d00*d11 - d01*d01
	return (d11*d20 - d01*d21) / det, (d00*d21 - d01*d20) / det
}

// ClosestInsidePoint projects pt on the plane of the triangle. The boolean reports whether the
// projection falls inside the triangle (with a 1e-6 tolerance on the barycentric weights).
func (t *Triangle) ClosestInsidePoint(pt r3.Vector) (r3.Vector, bool) {
	const eps = 1e-6
	u, v := t.barycentric(pt)
	proj := t.p0.Add(t.p1.Sub(t.p0).Mul(u)).Add(t.p2.Sub(t.p0).Mul(v))
	return proj, u >= -eps && v >= -eps && u+v <= 1+eps
}

// ClosestPointToPoint returns the point of the triangle closest to pt.
// Real-Time Collision Detection, Ericson, section 5.1.5.
func (t *Triangle) ClosestPointToPoint(pt r3.Vector) r3.Vector {
	a, b, c := t.p0, t.p1, t.p2
	ab, ac, ap := b.Sub(a), c.Sub(a), pt.Sub(a)

	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := pt.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	if vc := d1*d4 - d3*d2; vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.Mul(d1 / (d1 - d3)))
	}
	cp := pt.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	if vb := d5*d2 - d1*d6; vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.Mul(d2 / (d2 - d6)))
	}
	if va := d3*d6 - d5*d4; va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		return b.Add(c.Sub(b).Mul((d4 - d3) / ((d4 - d3) + (d5 - d6))))
	}
	vc := d1*d4 - d3*d2
	vb := d5*d2 - d1*d6
	va := d3*d6 - d5*d4
	denom := 1 / (va + vb + vc)
	return a.Add(ab.Mul(vb * denom)).Add(ac.Mul(vc * denom))
}

// signedDistances returns the distances of the vertices to the plane through planePt with
// normal planeNormal.
func (t *Triangle) signedDistances(planePt, planeNormal r3.Vector) [3]float64 {
	return [3]float64{
		planeNormal.Dot(t.p0.Sub(planePt)),
		planeNormal.Dot(t.p1.Sub(planePt)),
		planeNormal.Dot(t.p2.Sub(planePt)),
	}
}

// IntersectsPlane returns whether the triangle touches or crosses the plane.
func (t *Triangle) IntersectsPlane(planePt, planeNormal r3.Vector) bool {
	d := t.signedDistances(planePt, planeNormal)
	above := d[0] > floatEpsilon && d[1] > floatEpsilon && d[2] > floatEpsilon
	below := d[0] < -floatEpsilon && d[1] < -floatEpsilon && d[2] < -floatEpsilon
	return !above && !below
}

// TrianglePlaneIntersectingSegment returns the segment along which the triangle meets the plane.
// A triangle touching the plane at a single vertex yields a zero length segment and a triangle
// lying in the plane yields its longest edge.
func (t *Triangle) TrianglePlaneIntersectingSegment(planePt, planeNormal r3.Vector) (r3.Vector, r3.Vector, bool) {
	if !t.IntersectsPlane(planePt, planeNormal) {
		return r3.Vector{}, r3.Vector{}, false
	}
	d := t.signedDistances(planePt, planeNormal)
	pts := [3]r3.Vector{t.p0, t.p1, t.p2}

	if math.Abs(d[0]) < floatEpsilon && math.Abs(d[1]) < floatEpsilon && math.Abs(d[2]) < floatEpsilon {
		longest := 0
		for i := 1; i < 3; i++ {
			if pts[(i+1)%3].Sub(pts[i]).Norm2() > pts[(longest+1)%3].Sub(pts[longest]).Norm2() {
				longest = i
			}
		}
		return pts[longest], pts[(longest+1)%3], true
	}

	found := make([]r3.Vector, 0, 3)
	for i := range pts {
		j := (i + 1) % 3
		switch {
		case math.Abs(d[i]) < floatEpsilon:
			found = append(found, pts[i])
		case d[i]*d[j] < 0:
			found = append(found, pts[i].Add(pts[j].Sub(pts[i]).Mul(d[i]/(d[i]-d[j]))))
		}
	}
	if len(found) == 1 {
		return found[0], found[0], true
	}
	return found[0], found[1], true
}
