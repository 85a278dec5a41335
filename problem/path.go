package problem

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// rangeTolerance is how far outside [0, Length] a path still accepts to be evaluated.
const rangeTolerance = 1e-9

// Path is a configuration space trajectory parametrized by time in [0, Length()].
type Path interface {
	// Length returns the duration of the path in seconds.
	Length() float64
	// OutputSize returns the size of the configurations of the path.
	OutputSize() int
	// Eval returns the configuration at time t.
	Eval(t float64) ([]float64, error)
	// Derivative returns the velocity at time t.
	Derivative(t float64) ([]float64, error)
}

// StraightPath is a piecewise linear path through waypoints, each segment lasting the same time.
type StraightPath struct {
	waypoints [][]float64
	duration  float64
}

// NewStraightPath builds a path through waypoints that lasts duration seconds. A single waypoint
// gives a constant path.
func NewStraightPath(waypoints [][]float64, duration float64) (*StraightPath, error) {
	if len(waypoints) == 0 {
		return nil, errors.New("a path needs at least one waypoint")
	}
	if duration < 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, errors.Errorf("invalid path duration %g", duration)
	}
	size := len(waypoints[0])
	copied := make([][]float64, 0, len(waypoints))
	for i, w := range waypoints {
		if len(w) != size {
			return nil, errors.Errorf("waypoint %d has size %d, expected %d", i, len(w), size)
		}
		copied = append(copied, append([]float64(nil), w...))
	}
	if len(copied) == 1 {
		duration = 0
	}
	return &StraightPath{waypoints: copied, duration: duration}, nil
}

// Length returns the duration of the path.
func (p *StraightPath) Length() float64 {
	return p.duration
}

// OutputSize returns the size of the waypoints.
func (p *StraightPath) OutputSize() int {
	return len(p.waypoints[0])
}

// Waypoints returns a copy of the waypoints of the path.
func (p *StraightPath) Waypoints() [][]float64 {
	out := make([][]float64, 0, len(p.waypoints))
	for _, w := range p.waypoints {
		out = append(out, append([]float64(nil), w...))
	}
	return out
}

// segment returns the segment index holding t, and the position of t inside it in [0, 1].
func (p *StraightPath) segment(t float64) (int, float64, error) {
	if t < -rangeTolerance || t > p.duration+rangeTolerance || math.IsNaN(t) {
		return 0, 0, NewOutOfRangeError(t, p.duration)
	}
	segments := len(p.waypoints) - 1
	if segments == 0 || p.duration == 0 {
		return 0, 0, nil
	}
	segDuration := p.duration / float64(segments)
	t = math.Max(0, math.Min(p.duration, t))
	idx := int(t / segDuration)
	if idx >= segments {
		idx = segments - 1
	}
	alpha := (t - float64(idx)*segDuration) / segDuration
	return idx, math.Max(0, math.Min(1, alpha)), nil
}

// Eval returns the configuration at time t.
func (p *StraightPath) Eval(t float64) ([]float64, error) {
	idx, alpha, err := p.segment(t)
	if err != nil {
		return nil, err
	}
	out := append([]float64(nil), p.waypoints[idx]...)
	if len(p.waypoints) == 1 {
		return out, nil
	}
	delta := make([]float64, len(out))
	floats.SubTo(delta, p.waypoints[idx+1], p.waypoints[idx])
	floats.AddScaled(out, alpha, delta)
	return out, nil
}

// Derivative returns the velocity at time t. It is constant on each segment.
func (p *StraightPath) Derivative(t float64) ([]float64, error) {
	idx, _, err := p.segment(t)
	if err != nil {
		return nil, err
	}
	out := make([]float64, p.OutputSize())
	if len(p.waypoints) == 1 || p.duration == 0 {
		return out, nil
	}
	segDuration := p.duration / float64(len(p.waypoints)-1)
	floats.SubTo(out, p.waypoints[idx+1], p.waypoints[idx])
	floats.Scale(1/segDuration, out)
	return out, nil
}

// SubPath is the part of a path that starts at start and lasts |length|. A negative length walks the
// parent path backwards.
type SubPath struct {
	parent Path
	start  float64
	length float64
}

// NewSubPath extracts [start, start+length] of parent, or [start+length, start] walked backwards when
// length is negative.
func NewSubPath(parent Path, start, length float64) (*SubPath, error) {
	if parent == nil {
		return nil, errors.New("parent path is nil")
	}
	end := start + length
	for _, bound := range []float64{start, end} {
		if bound < -rangeTolerance || bound > parent.Length()+rangeTolerance {
			return nil, NewOutOfRangeError(bound, parent.Length())
		}
	}
	return &SubPath{parent: parent, start: start, length: length}, nil
}

// Length returns the duration of the sub path.
func (p *SubPath) Length() float64 {
	return math.Abs(p.length)
}

// OutputSize returns the size of the configurations of the parent path.
func (p *SubPath) OutputSize() int {
	return p.parent.OutputSize()
}

func (p *SubPath) parentTime(t float64) (float64, error) {
	if t < -rangeTolerance || t > p.Length()+rangeTolerance || math.IsNaN(t) {
		return 0, NewOutOfRangeError(t, p.Length())
	}
	if p.length < 0 {
		return p.start - t, nil
	}
	return p.start + t, nil
}

// Eval returns the configuration of the parent path at the matching time.
func (p *SubPath) Eval(t float64) ([]float64, error) {
	pt, err := p.parentTime(t)
	if err != nil {
		return nil, err
	}
	return p.parent.Eval(pt)
}

// Derivative returns the velocity of the parent path, negated when walking backwards.
func (p *SubPath) Derivative(t float64) ([]float64, error) {
	pt, err := p.parentTime(t)
	if err != nil {
		return nil, err
	}
	d, err := p.parent.Derivative(pt)
	if err != nil {
		return nil, err
	}
	if p.length < 0 {
		floats.Scale(-1, d)
	}
	return d, nil
}
