package testutils

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/agimus-project/agimus/referenceframe"
)

// NewTestModel returns a two joint robot: base at (0, 0, 100), a revolute joint j1 about z, an arm
// link 100mm along x weighing 2, a prismatic joint j2 along x in [0, 50] and a tool weighing 1.
// The base weighs 1.
func NewTestModel(tb testing.TB) *referenceframe.Model {
	tb.Helper()
	m := referenceframe.NewModel("test")

	base, err := referenceframe.FrameFromPoint("base", r3.Vector{X: 0, Y: 0, Z: 100})
	test.That(tb, err, test.ShouldBeNil)
	test.That(tb, m.AddFrame(base, referenceframe.World, 1), test.ShouldBeNil)

	j1, err := referenceframe.NewRotationalFrame("j1", r3.Vector{X: 0, Y: 0, Z: 1}, referenceframe.Limit{Min: -math.Pi, Max: math.Pi})
	test.That(tb, err, test.ShouldBeNil)
	test.That(tb, m.AddFrame(j1, "base", 0), test.ShouldBeNil)

	arm, err := referenceframe.FrameFromPoint("arm", r3.Vector{X: 100, Y: 0, Z: 0})
	test.That(tb, err, test.ShouldBeNil)
	test.That(tb, m.AddFrame(arm, "j1", 2), test.ShouldBeNil)

	j2, err := referenceframe.NewTranslationalFrame("j2", r3.Vector{X: 1, Y: 0, Z: 0}, referenceframe.Limit{Min: 0, Max: 50})
	test.That(tb, err, test.ShouldBeNil)
	test.That(tb, m.AddFrame(j2, "arm", 0), test.ShouldBeNil)

	test.That(tb, m.AddFrame(referenceframe.NewZeroStaticFrame("tool"), "j2", 1), test.ShouldBeNil)
	return m
}
