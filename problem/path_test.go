package problem

import (
	"testing"

	"go.viam.com/test"
)

func TestStraightPath(t *testing.T) {
	p, err := NewStraightPath([][]float64{{0, 0}, {1, 2}, {1, 4}}, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Length(), test.ShouldEqual, 2.)
	test.That(t, p.OutputSize(), test.ShouldEqual, 2)

	t.Run("eval", func(t *testing.T) {
		for _, tc := range []struct {
			t        float64
			expected []float64
		}{
			{0, []float64{0, 0}},
			{0.5, []float64{0.5, 1}},
			{1, []float64{1, 2}},
			{1.5, []float64{1, 3}},
			{2, []float64{1, 4}},
		} {
			q, err := p.Eval(tc.t)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, q[0], test.ShouldAlmostEqual, tc.expected[0])
			test.That(t, q[1], test.ShouldAlmostEqual, tc.expected[1])
		}
	})

	t.Run("derivative", func(t *testing.T) {
		v, err := p.Derivative(0.25)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v[0], test.ShouldAlmostEqual, 1.)
		test.That(t, v[1], test.ShouldAlmostEqual, 2.)

		v, err = p.Derivative(2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v[0], test.ShouldAlmostEqual, 0.)
		test.That(t, v[1], test.ShouldAlmostEqual, 2.)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := p.Eval(2.5)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "outside of the path range")
		_, err = p.Derivative(-1)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("waypoints are copied", func(t *testing.T) {
		w := p.Waypoints()
		w[0][0] = 42
		q, err := p.Eval(0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, q[0], test.ShouldEqual, 0.)
	})
}

func TestStraightPathInvalid(t *testing.T) {
	_, err := NewStraightPath(nil, 1)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewStraightPath([][]float64{{0}, {1, 2}}, 1)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "waypoint 1")

	_, err = NewStraightPath([][]float64{{0}, {1}}, -1)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConstantPath(t *testing.T) {
	p, err := NewStraightPath([][]float64{{3, 4}}, 5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Length(), test.ShouldEqual, 0.)

	q, err := p.Eval(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q, test.ShouldResemble, []float64{3, 4})
	v, err := p.Derivative(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldResemble, []float64{0, 0})
}

func TestSubPath(t *testing.T) {
	parent, err := NewStraightPath([][]float64{{0}, {10}}, 10)
	test.That(t, err, test.ShouldBeNil)

	t.Run("forward", func(t *testing.T) {
		sub, err := NewSubPath(parent, 2, 4)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sub.Length(), test.ShouldEqual, 4.)
		test.That(t, sub.OutputSize(), test.ShouldEqual, 1)
		q, err := sub.Eval(1)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, q[0], test.ShouldAlmostEqual, 3.)
		v, err := sub.Derivative(1)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v[0], test.ShouldAlmostEqual, 1.)
		_, err = sub.Eval(5)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("backward", func(t *testing.T) {
		sub, err := NewSubPath(parent, 8, -4)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sub.Length(), test.ShouldEqual, 4.)
		q, err := sub.Eval(1)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, q[0], test.ShouldAlmostEqual, 7.)
		q, err = sub.Eval(4)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, q[0], test.ShouldAlmostEqual, 4.)
		v, err := sub.Derivative(1)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v[0], test.ShouldAlmostEqual, -1.)
	})

	t.Run("out of parent range", func(t *testing.T) {
		_, err := NewSubPath(parent, 8, 4)
		test.That(t, err, test.ShouldNotBeNil)
		_, err = NewSubPath(parent, 2, -3)
		test.That(t, err, test.ShouldNotBeNil)
		_, err = NewSubPath(nil, 0, 1)
		test.That(t, err, test.ShouldNotBeNil)
	})
}
