package pointcloud

import (
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/agimus-project/agimus/spatialmath"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()

	p0 := NewVector(0, 0, 0)
	d0 := NewValueData(5)

	test.That(t, pc.Set(p0, d0), test.ShouldBeNil)
	d, got := pc.At(0, 0, 0)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d0)

	_, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeFalse)

	p1 := NewVector(1, 0, 1)
	d1 := NewValueData(17)
	test.That(t, pc.Set(p1, d1), test.ShouldBeNil)

	d, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d1)
	test.That(t, d, test.ShouldNotResemble, d0)

	p2 := NewVector(-1, -2, 1)
	d2 := NewColoredData(color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	test.That(t, pc.Set(p2, d2), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	// overwriting keeps the size
	test.That(t, pc.Set(p2, NewBasicData()), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	meta := pc.MetaData()
	test.That(t, meta.HasValue, test.ShouldBeTrue)
	test.That(t, meta.HasColor, test.ShouldBeTrue)
	test.That(t, meta.MinY, test.ShouldEqual, -2.)
	test.That(t, meta.MaxX, test.ShouldEqual, 1.)
	test.That(t, meta.MaxSideLength(), test.ShouldEqual, 2.)
	test.That(t, spatialmath.R3VectorAlmostEqual(meta.Center(), r3.Vector{X: 0, Y: -2. / 3, Z: 2. / 3}, 1e-9), test.ShouldBeTrue)

	err := pc.Set(NewVector(math.NaN(), 0, 0), nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPointCloudIterate(t *testing.T) {
	pc := New()
	for i := 0; i < 4; i++ {
		test.That(t, pc.Set(NewVector(float64(i), 0, 0), NewBasicData()), test.ShouldBeNil)
	}

	count := 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		count++
		return true
	})
	test.That(t, count, test.ShouldEqual, 4)

	count = 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		count++
		return count < 2
	})
	test.That(t, count, test.ShouldEqual, 2)

	seen := map[r3.Vector]bool{}
	for batch := 0; batch < 2; batch++ {
		pc.Iterate(2, batch, func(p r3.Vector, d Data) bool {
			seen[p] = true
			return true
		})
	}
	test.That(t, len(seen), test.ShouldEqual, 4)
}

func TestApplyPoseAndFilter(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(NewVector(100, 0, 0), NewValueData(1)), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(0, 100, 0), NewValueData(2)), test.ShouldBeNil)

	pose := spatialmath.NewPoseFromAxisAngle(r3.Vector{X: 0, Y: 0, Z: 10}, &spatialmath.R4AA{Theta: math.Pi / 2, RZ: 1})
	moved, err := ApplyPose(pc, pose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moved.Size(), test.ShouldEqual, 2)
	pts := Points(moved)
	test.That(t, spatialmath.R3VectorAlmostEqual(pts[0], r3.Vector{X: 0, Y: 100, Z: 10}, 1e-9), test.ShouldBeTrue)
	test.That(t, spatialmath.R3VectorAlmostEqual(pts[1], r3.Vector{X: -100, Y: 0, Z: 10}, 1e-9), test.ShouldBeTrue)

	filtered, err := Filter(pc, func(p r3.Vector, d Data) bool { return d.Value() == 2 })
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filtered.Size(), test.ShouldEqual, 1)
	_, ok := filtered.At(0, 100, 0)
	test.That(t, ok, test.ShouldBeTrue)

	merged := New()
	test.That(t, MergePointClouds(merged, pc, filtered), test.ShouldBeNil)
	test.That(t, merged.Size(), test.ShouldEqual, 2)
}

func TestStatistics(t *testing.T) {
	_, err := Statistics(New(), r3.Vector{})
	test.That(t, err, test.ShouldNotBeNil)

	pc := New()
	test.That(t, pc.Set(NewVector(3, 4, 0), nil), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(0, 0, 10), nil), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(6, 8, 0), nil), test.ShouldBeNil)

	s, err := Statistics(pc, r3.Vector{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Count, test.ShouldEqual, 3)
	test.That(t, s.Mean, test.ShouldAlmostEqual, 25./3)
	test.That(t, s.Median, test.ShouldAlmostEqual, 10)
	test.That(t, s.Min, test.ShouldAlmostEqual, 5)
	test.That(t, s.Max, test.ShouldAlmostEqual, 10)
}
