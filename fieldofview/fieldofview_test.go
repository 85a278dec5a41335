package fieldofview

import (
	"sync"
	"testing"

	"go.viam.com/test"

	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/problem"
	"github.com/agimus-project/agimus/testutils"
)

func newTestFieldOfView(t *testing.T) *FieldOfView {
	t.Helper()
	logger := logging.NewTestLogger(t)
	ps, err := problem.NewSolver(testutils.NewTestModel(t), logger)
	test.That(t, err, test.ShouldBeNil)
	return New(ps, logger)
}

func TestFeature(t *testing.T) {
	f := NewFeature("f", 1.0)
	test.That(t, f.Name(), test.ShouldEqual, "f")
	test.That(t, f.Size(), test.ShouldEqual, 1.0)

	negative := NewFeature("", -2)
	test.That(t, negative.Name(), test.ShouldEqual, "")
	test.That(t, negative.Size(), test.ShouldEqual, -2.)
}

func TestFeatureGroup(t *testing.T) {
	g := NewFeatureGroup(3, 0.1, 0.2)
	test.That(t, g.VisibilityThreshold, test.ShouldEqual, 3)
	test.That(t, g.DepthMargin, test.ShouldEqual, 0.1)
	test.That(t, g.SizeMargin, test.ShouldEqual, 0.2)
	test.That(t, g.Features(), test.ShouldBeEmpty)

	g.AddFeature(NewFeature("a", 1))
	g.AddFeature(NewFeature("b", 2))
	features := g.Features()
	test.That(t, features, test.ShouldResemble, []Feature{NewFeature("a", 1), NewFeature("b", 2)})

	features[0] = NewFeature("changed", 0)
	test.That(t, g.Features()[0].Name(), test.ShouldEqual, "a")
}

func TestAddFeatureGroup(t *testing.T) {
	fov := newTestFieldOfView(t)
	test.That(t, fov.FeatureGroups(), test.ShouldBeEmpty)

	for i := 0; i < 3; i++ {
		g := NewFeatureGroup(i, 0, 0)
		before := len(fov.FeatureGroups())
		fov.AddFeatureGroup(g)
		groups := fov.FeatureGroups()
		test.That(t, len(groups), test.ShouldEqual, before+1)
		test.That(t, groups[len(groups)-1], test.ShouldEqual, g)
	}

	// a group is shared, changes made through another handle are visible
	g := fov.FeatureGroups()[0]
	g.AddFeature(NewFeature("late", 1))
	test.That(t, len(fov.FeatureGroups()[0].Features()), test.ShouldEqual, 1)
}

func TestResetFeatureGroups(t *testing.T) {
	fov := newTestFieldOfView(t)
	fov.ResetFeatureGroups()
	test.That(t, fov.FeatureGroups(), test.ShouldBeEmpty)

	fov.AddFeatureGroup(NewFeatureGroup(1, 0, 0))
	fov.AddFeatureGroup(NewFeatureGroup(2, 0, 0))
	fov.ResetFeatureGroups()
	test.That(t, fov.FeatureGroups(), test.ShouldBeEmpty)

	fov.AddFeatureGroup(NewFeatureGroup(3, 0, 0))
	test.That(t, len(fov.FeatureGroups()), test.ShouldEqual, 1)
}

func TestClogged(t *testing.T) {
	fov := newTestFieldOfView(t)
	test.That(t, fov.Clogged(), test.ShouldBeFalse)

	ops := []func(){
		func() { fov.AddFeatureGroup(NewFeatureGroup(1, 0.1, 0.2)) },
		fov.ResetFeatureGroups,
		func() { fov.AddFeatureGroup(NewFeatureGroup(-1, -1, -1)) },
		func() { fov.AddFeatureGroup(nil) },
		fov.ResetFeatureGroups,
	}
	for _, op := range ops {
		op()
		test.That(t, fov.Clogged(), test.ShouldBeFalse)
	}
}

func TestNumberVisibleFeature(t *testing.T) {
	fov := newTestFieldOfView(t)
	g := NewFeatureGroup(1, 0, 0)
	g.AddFeature(NewFeature("a", 1))
	g.AddFeature(NewFeature("b", 1))
	fov.AddFeatureGroup(g)
	test.That(t, fov.NumberVisibleFeature(g), test.ShouldEqual, 0)
	test.That(t, fov.NumberVisibleFeature(nil), test.ShouldEqual, 0)
}

func TestStubs(t *testing.T) {
	fov := newTestFieldOfView(t)
	f := NewFeature("a", 1)
	test.That(t, fov.featureToTetrahedronPts(f), test.ShouldBeEmpty)
	test.That(t, fov.featureVisible(f), test.ShouldBeFalse)
	test.That(t, fov.robotClogsFieldOfView(), test.ShouldBeFalse)
}

func TestDisplay(t *testing.T) {
	fov := newTestFieldOfView(t)
	test.That(t, fov.Display(), test.ShouldBeFalse)
	fov.SetDisplay(true)
	test.That(t, fov.Display(), test.ShouldBeTrue)
}

func TestConcurrentAccess(t *testing.T) {
	fov := newTestFieldOfView(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fov.AddFeatureGroup(NewFeatureGroup(i, 0, 0))
			_ = fov.FeatureGroups()
			_ = fov.Clogged()
		}(i)
	}
	wg.Wait()
	test.That(t, len(fov.FeatureGroups()), test.ShouldEqual, 8)
}

func TestProblem(t *testing.T) {
	ps, err := problem.NewSolver(testutils.NewTestModel(t), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	fov := New(ps, logging.NewTestLogger(t))
	test.That(t, fov.Problem(), test.ShouldEqual, ps)
}
