// Package discretization samples a path at given times and turns each sample into the reference
// messages a controller consumes: joint positions and velocities, operational frame poses and
// twists, and centers of mass.
package discretization

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/problem"
	"github.com/agimus-project/agimus/referenceframe"
	"github.com/agimus-project/agimus/spatialmath"
	"github.com/agimus-project/agimus/topics"
)

// DefaultTopicPrefix prefixes every topic the discretization publishes to.
const DefaultTopicPrefix = "/hpp/target/"

// ErrPathNotSet is returned when sampling before a path is set.
var ErrPathNotSet = errors.New("path is not set")

// ComputationOption selects what is computed for a frame or a center of mass.
type ComputationOption int

// The computation options. They combine as bit flags.
const (
	Position              ComputationOption = 1
	Derivative            ComputationOption = 2
	PositionAndDerivative                   = Position | Derivative
)

// Has returns whether every flag of other is set in o.
func (o ComputationOption) Has(other ComputationOption) bool {
	return o&other == other
}

// String returns the name of the option.
func (o ComputationOption) String() string {
	switch o {
	case Position:
		return "position"
	case Derivative:
		return "derivative"
	case PositionAndDerivative:
		return "position_and_derivative"
	default:
		return "none"
	}
}

// Transform is the payload of operational frame position topics.
type Transform struct {
	Translation r3.Vector `json:"translation"`
	// Rotation is the unit quaternion w, x, y, z.
	Rotation [4]float64 `json:"rotation"`
}

// NewTransform converts pose into a Transform.
func NewTransform(pose spatialmath.Pose) Transform {
	q := pose.Orientation()
	return Transform{Translation: pose.Point(), Rotation: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag}}
}

type frameData struct {
	name   string
	option ComputationOption
}

type comData struct {
	name   string
	frames []string
	option ComputationOption
}

// segment is a contiguous range of a configuration or velocity vector.
type segment struct {
	start, size int
}

// Discretization samples a path of a robot.
type Discretization struct {
	mu         sync.Mutex
	path       problem.Path
	prefix     string
	jointNames []string
	qView      []segment
	vView      []segment
	frames     []frameData
	coms       []comData

	robot  *referenceframe.Model
	bus    *topics.Bus
	logger logging.Logger
}

// New returns a discretization of robot paths that publishes on bus.
func New(robot *referenceframe.Model, bus *topics.Bus, logger logging.Logger) *Discretization {
	return &Discretization{
		prefix: DefaultTopicPrefix,
		robot:  robot,
		bus:    bus,
		logger: logger,
	}
}

// SetPath sets the path to sample.
func (d *Discretization) SetPath(p problem.Path) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.path = p
}

// Path returns the path being sampled, or nil.
func (d *Discretization) Path() problem.Path {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// SetTopicPrefix sets the prefix of the topics. A trailing slash is added when missing.
func (d *Discretization) SetTopicPrefix(prefix string) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prefix = prefix
}

// TopicPrefix returns the prefix of the topics.
func (d *Discretization) TopicPrefix() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prefix
}

// SetJointNames restricts the published positions and velocities to the given joints. Overlapping
// and adjacent joints are merged and the values keep the order of the robot configuration. A nil or
// empty list publishes the whole configuration.
func (d *Discretization) SetJointNames(names []string) error {
	var qView, vView []segment
	for _, name := range names {
		rank, err := d.robot.JointConfigRank(name)
		if err != nil {
			return err
		}
		size, err := d.robot.JointConfigSize(name)
		if err != nil {
			return err
		}
		vRank, err := d.robot.JointVelocityRank(name)
		if err != nil {
			return err
		}
		qView = append(qView, segment{rank, size})
		vView = append(vView, segment{vRank, size})
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jointNames = append([]string(nil), names...)
	d.qView = mergeSegments(qView)
	d.vView = mergeSegments(vView)
	return nil
}

// JointNames returns the joints set with SetJointNames.
func (d *Discretization) JointNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.jointNames...)
}

// AddOperationalFrame publishes the pose and/or twist of the named frame. Adding a frame twice merges
// the options. It returns false when the robot has no such frame.
func (d *Discretization) AddOperationalFrame(name string, option ComputationOption) bool {
	if name == referenceframe.World || !d.robot.HasFrame(name) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.frames {
		if d.frames[i].name == name {
			d.frames[i].option |= option
			return true
		}
	}
	d.frames = append(d.frames, frameData{name: name, option: option})
	return true
}

// AddCenterOfMass publishes the center of mass of frames, or of the whole robot when frames is empty,
// under the given name. Adding the same name twice merges the options. It returns false when one of
// the frames does not exist.
func (d *Discretization) AddCenterOfMass(name string, frames []string, option ComputationOption) bool {
	for _, f := range frames {
		if !d.robot.HasFrame(f) || f == referenceframe.World {
			return false
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.coms {
		if d.coms[i].name == name {
			d.coms[i].option |= option
			return true
		}
	}
	d.coms = append(d.coms, comData{name: name, frames: append([]string(nil), frames...), option: option})
	return true
}

// ResetTopics removes every operational frame and center of mass.
func (d *Discretization) ResetTopics() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = nil
	d.coms = nil
}

// Topics returns the topics a sample is published to, in publication order.
func (d *Discretization) Topics() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []string{d.prefix + "position", d.prefix + "velocity"}
	for _, f := range d.frames {
		if f.option.Has(Position) {
			out = append(out, d.prefix+"op_frame/"+f.name)
		}
		if f.option.Has(Derivative) {
			out = append(out, d.prefix+"velocity/op_frame/"+f.name)
		}
	}
	for _, c := range d.coms {
		if c.option.Has(Position) {
			out = append(out, d.prefix+comTopic(c.name))
		}
		if c.option.Has(Derivative) {
			out = append(out, d.prefix+"velocity/"+comTopic(c.name))
		}
	}
	return out
}

func comTopic(name string) string {
	if name == "" {
		return "com"
	}
	return "com/" + name
}

// Sample evaluates the path at time t and returns the messages of every topic, in publication order.
// The messages are not stamped.
func (d *Discretization) Sample(t float64) ([]topics.Message, error) {
	d.mu.Lock()
	path := d.path
	d.mu.Unlock()
	if path == nil {
		return nil, ErrPathNotSet
	}
	q, err := path.Eval(t)
	if err != nil {
		return nil, errors.Wrap(err, "could not evaluate the path")
	}
	v, err := path.Derivative(t)
	if err != nil {
		return nil, errors.Wrap(err, "could not evaluate the path")
	}
	return d.Messages(q, v)
}

// Messages returns the messages of every topic for the robot at configuration q moving with
// velocity v, in publication order.
func (d *Discretization) Messages(q, v []float64) ([]topics.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	size := d.robot.ConfigSize()
	if len(q) != size {
		return nil, referenceframe.NewIncorrectDoFError(len(q), size)
	}
	if len(v) != size {
		return nil, referenceframe.NewIncorrectDoFError(len(v), size)
	}

	msgs := []topics.Message{
		{Topic: d.prefix + "position", Payload: d.selectRows(q, d.qView)},
		{Topic: d.prefix + "velocity", Payload: d.selectRows(v, d.vView)},
	}
	if len(d.frames) == 0 && len(d.coms) == 0 {
		return msgs, nil
	}

	poses, err := d.robot.FramePoses(q)
	if poses == nil {
		return nil, err
	}
	if err != nil {
		d.logger.Debugw("configuration out of bounds", "configuration", q, "error", err)
	}
	var twists map[string]referenceframe.Twist
	for _, f := range d.frames {
		if f.option.Has(Position) {
			msgs = append(msgs, topics.Message{Topic: d.prefix + "op_frame/" + f.name, Payload: NewTransform(poses[f.name])})
		}
		if f.option.Has(Derivative) {
			if twists == nil {
				if twists, err = d.robot.FrameVelocities(q, v); err != nil {
					return nil, err
				}
			}
			msgs = append(msgs, topics.Message{Topic: d.prefix + "velocity/op_frame/" + f.name, Payload: twists[f.name]})
		}
	}
	for _, c := range d.coms {
		if c.option.Has(Position) {
			com, err := d.robot.CenterOfMass(q, c.frames)
			if err != nil && !referenceframe.IsOOBError(err) {
				return nil, err
			}
			msgs = append(msgs, topics.Message{Topic: d.prefix + comTopic(c.name), Payload: com})
		}
		if c.option.Has(Derivative) {
			vel, err := d.robot.CenterOfMassVelocity(q, v, c.frames)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, topics.Message{Topic: d.prefix + "velocity/" + comTopic(c.name), Payload: vel})
		}
	}
	return msgs, nil
}

// Compute samples the path at time t and publishes every message on the bus.
func (d *Discretization) Compute(ctx context.Context, t float64) error {
	start := time.Now()
	msgs, err := d.Sample(t)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := d.bus.Publish(msg.Topic, msg.Payload); err != nil {
			return err
		}
	}
	d.logger.CDebugw(ctx, "discretization", "time", t, "messages", len(msgs), "duration", time.Since(start))
	return nil
}

// mergeSegments sorts segments and merges the ones that overlap or touch. Empty segments are dropped.
func mergeSegments(in []segment) []segment {
	segs := make([]segment, 0, len(in))
	for _, s := range in {
		if s.size > 0 {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return nil
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].start < segs[j].start })
	out := []segment{segs[0]}
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if s.start <= last.start+last.size {
			if end := s.start + s.size; end > last.start+last.size {
				last.size = end - last.start
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// selectRows returns the rows of x in view, or a copy of x when no joint is selected.
func (d *Discretization) selectRows(x []float64, view []segment) []float64 {
	if len(d.jointNames) == 0 {
		return append([]float64(nil), x...)
	}
	out := []float64{}
	for _, s := range view {
		out = append(out, x[s.start:s.start+s.size]...)
	}
	return out
}
