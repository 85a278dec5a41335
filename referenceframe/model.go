package referenceframe

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"

	"github.com/agimus-project/agimus/spatialmath"
)

// finiteDifferenceStep is the configuration step used to differentiate frame poses.
const finiteDifferenceStep = 1e-6

// Twist is the velocity of a frame expressed in the world frame.
type Twist struct {
	Linear  r3.Vector
	Angular r3.Vector
}

type modelFrame struct {
	frame     Frame
	parent    string
	placement spatialmath.Pose
	mass      float64
	// rank of the first configuration variable of the frame
	rank int
}

// Model is the kinematic tree of a robot. Frames are stored in insertion order; since a parent must
// exist before its children are added, that order is also a valid evaluation order.
// Generally speaking, a Joint will attach a Body to a Frame
// And a Fixed will attach a Frame to a Body
// Exceptions are the head of the tree where we are just starting the robot from World.
type Model struct {
	name       string
	frames     []*modelFrame
	index      map[string]int
	configSize int
	poseCache  *sync.Map
	lock       sync.RWMutex
}

// NewModel constructs a new empty model attached to the world frame.
func NewModel(name string) *Model {
	return &Model{
		name:      name,
		index:     map[string]int{},
		poseCache: &sync.Map{},
	}
}

// Name returns the name of this model.
func (m *Model) Name() string {
	return m.name
}

// AddFrame adds frame as a child of parent with no placement offset. parent must be World or a frame
// already in the model. mass is the mass of the body attached to the frame, used for the center of mass.
func (m *Model) AddFrame(frame Frame, parent string, mass float64) error {
	return m.AddFrameWithPlacement(frame, parent, spatialmath.NewZeroPose(), mass)
}

// AddFrameWithPlacement adds frame as a child of parent. placement is the fixed pose of the frame origin
// in the parent frame, applied before the frame's own motion.
func (m *Model) AddFrameWithPlacement(frame Frame, parent string, placement spatialmath.Pose, mass float64) error {
	if frame == nil {
		return errors.New("frame is not allowed to be nil")
	}
	if placement == nil {
		placement = spatialmath.NewZeroPose()
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	name := frame.Name()
	if name == World {
		return NewFrameAlreadyExistsError(name)
	}
	if _, ok := m.index[name]; ok {
		return NewFrameAlreadyExistsError(name)
	}
	if _, ok := m.index[parent]; !ok && parent != World {
		return NewParentFrameMissingError(name, parent)
	}
	m.index[name] = len(m.frames)
	m.frames = append(m.frames, &modelFrame{
		frame:     frame,
		parent:    parent,
		placement: placement,
		mass:      mass,
		rank:      m.configSize,
	})
	m.configSize += len(frame.DoF())
	m.poseCache = &sync.Map{}
	return nil
}

// HasFrame returns whether a frame with the given name is part of the model. World always is.
func (m *Model) HasFrame(name string) bool {
	if name == World {
		return true
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.index[name]
	return ok
}

// FrameNames returns the names of every frame in insertion order.
func (m *Model) FrameNames() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	names := make([]string, 0, len(m.frames))
	for _, f := range m.frames {
		names = append(names, f.frame.Name())
	}
	return names
}

// Parent returns the name of the parent of the named frame.
func (m *Model) Parent(name string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	idx, ok := m.index[name]
	if !ok {
		return "", NewFrameNotFoundError(name)
	}
	return m.frames[idx].parent, nil
}

// JointNames returns the names of the frames that have degrees of freedom, in configuration order.
func (m *Model) JointNames() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	names := []string{}
	for _, f := range m.frames {
		if len(f.frame.DoF()) > 0 {
			names = append(names, f.frame.Name())
		}
	}
	return names
}

// ConfigSize returns the size of a configuration vector.
func (m *Model) ConfigSize() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.configSize
}

// NumberDof returns the size of a velocity vector. Every supported joint is one dimensional so it
// equals ConfigSize.
func (m *Model) NumberDof() int {
	return m.ConfigSize()
}

// DoF returns the limits of every configuration variable in order.
func (m *Model) DoF() []Limit {
	m.lock.RLock()
	defer m.lock.RUnlock()
	limits := make([]Limit, 0, m.configSize)
	for _, f := range m.frames {
		limits = append(limits, f.frame.DoF()...)
	}
	return limits
}

// JointConfigRank returns the index of the first configuration variable of the named frame.
func (m *Model) JointConfigRank(name string) (int, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	idx, ok := m.index[name]
	if !ok {
		return 0, NewFrameNotFoundError(name)
	}
	return m.frames[idx].rank, nil
}

// JointConfigSize returns the number of configuration variables of the named frame.
func (m *Model) JointConfigSize(name string) (int, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	idx, ok := m.index[name]
	if !ok {
		return 0, NewFrameNotFoundError(name)
	}
	return len(m.frames[idx].frame.DoF()), nil
}

// JointVelocityRank returns the index of the first velocity variable of the named frame.
func (m *Model) JointVelocityRank(name string) (int, error) {
	return m.JointConfigRank(name)
}

// Mass returns the mass attached to the named frame.
func (m *Model) Mass(name string) (float64, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	idx, ok := m.index[name]
	if !ok {
		return 0, NewFrameNotFoundError(name)
	}
	return m.frames[idx].mass, nil
}

// floatsToString turns a float array into a serializable binary representation.
func floatsToString(q []float64) string {
	b := make([]byte, len(q)*8)
	for i, v := range q {
		binary.BigEndian.PutUint64(b[8*i:8*i+8], math.Float64bits(v))
	}
	return string(b)
}

type cachedPoses struct {
	poses map[string]spatialmath.Pose
	err   error
}

// FramePoses computes the world pose of every frame at configuration q. Out of bounds inputs are
// still computed; the returned error then contains OOBErrString and the poses are valid.
func (m *Model) FramePoses(q []float64) (map[string]spatialmath.Pose, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if len(q) != m.configSize {
		return nil, NewIncorrectDoFError(len(q), m.configSize)
	}
	key := floatsToString(q)
	if val, ok := m.poseCache.Load(key); ok {
		if cached, ok := val.(*cachedPoses); ok {
			return copyPoses(cached.poses), cached.err
		}
	}

	var errAll error
	poses := make(map[string]spatialmath.Pose, len(m.frames)+1)
	poses[World] = spatialmath.NewZeroPose()
	for _, f := range m.frames {
		dof := len(f.frame.DoF())
		local, err := f.frame.Transform(FloatsToInputs(q[f.rank : f.rank+dof]))
		if local == nil {
			return nil, err
		}
		multierr.AppendInto(&errAll, err)
		poses[f.frame.Name()] = spatialmath.Compose(spatialmath.Compose(poses[f.parent], f.placement), local)
	}
	m.poseCache.Store(key, &cachedPoses{poses: poses, err: errAll})
	return copyPoses(poses), errAll
}

func copyPoses(in map[string]spatialmath.Pose) map[string]spatialmath.Pose {
	out := make(map[string]spatialmath.Pose, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// FramePose returns the world pose of the named frame at configuration q.
func (m *Model) FramePose(name string, q []float64) (spatialmath.Pose, error) {
	if !m.HasFrame(name) {
		return nil, NewFrameNotFoundError(name)
	}
	poses, err := m.FramePoses(q)
	if poses == nil {
		return nil, err
	}
	return poses[name], err
}

// Difference returns q1 - q0, the velocity that brings q0 to q1 in unit time.
func (m *Model) Difference(q1, q0 []float64) ([]float64, error) {
	size := m.ConfigSize()
	if len(q1) != size {
		return nil, NewIncorrectDoFError(len(q1), size)
	}
	if len(q0) != size {
		return nil, NewIncorrectDoFError(len(q0), size)
	}
	out := make([]float64, size)
	floats.SubTo(out, q1, q0)
	return out, nil
}

// Integrate returns q + v, the configuration reached from q at velocity v in unit time.
func (m *Model) Integrate(q, v []float64) ([]float64, error) {
	size := m.ConfigSize()
	if len(q) != size || len(v) != size {
		return nil, NewIncorrectDoFError(len(v), size)
	}
	out := make([]float64, size)
	floats.AddTo(out, q, v)
	return out, nil
}

// CenterOfMass returns the mass weighted average of the world positions of the given frames at q.
// An empty list means every frame of the model.
func (m *Model) CenterOfMass(q []float64, frames []string) (r3.Vector, error) {
	poses, err := m.FramePoses(q)
	if poses == nil {
		return r3.Vector{}, err
	}
	if len(frames) == 0 {
		frames = m.FrameNames()
	}
	var com r3.Vector
	total := 0.
	for _, name := range frames {
		mass, err := m.Mass(name)
		if err != nil {
			return r3.Vector{}, err
		}
		com = com.Add(poses[name].Point().Mul(mass))
		total += mass
	}
	if total <= 0 {
		return r3.Vector{}, errors.Errorf("frames %v have no mass", frames)
	}
	return com.Mul(1 / total), err
}

// FrameVelocities returns the world twist of every frame at configuration q moving with velocity v.
// Velocities are obtained by central finite differences of the forward kinematics.
func (m *Model) FrameVelocities(q, v []float64) (map[string]Twist, error) {
	plus, minus, err := m.perturbedPoses(q, v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Twist, len(plus))
	for name, pPlus := range plus {
		pMinus := minus[name]
		delta := quat.Mul(pPlus.Orientation(), quat.Conj(pMinus.Orientation()))
		out[name] = Twist{
			Linear:  pPlus.Point().Sub(pMinus.Point()).Mul(1 / (2 * finiteDifferenceStep)),
			Angular: spatialmath.QuatToR3AA(delta).Mul(1 / (2 * finiteDifferenceStep)),
		}
	}
	return out, nil
}

// CenterOfMassVelocity returns the velocity of the center of mass of frames at q moving with velocity v.
func (m *Model) CenterOfMassVelocity(q, v []float64, frames []string) (r3.Vector, error) {
	qPlus, qMinus, err := m.perturbedConfigurations(q, v)
	if err != nil {
		return r3.Vector{}, err
	}
	comPlus, err := m.CenterOfMass(qPlus, frames)
	if err != nil && !IsOOBError(err) {
		return r3.Vector{}, err
	}
	comMinus, err := m.CenterOfMass(qMinus, frames)
	if err != nil && !IsOOBError(err) {
		return r3.Vector{}, err
	}
	return comPlus.Sub(comMinus).Mul(1 / (2 * finiteDifferenceStep)), nil
}

func (m *Model) perturbedConfigurations(q, v []float64) ([]float64, []float64, error) {
	size := m.ConfigSize()
	if len(q) != size {
		return nil, nil, NewIncorrectDoFError(len(q), size)
	}
	if len(v) != size {
		return nil, nil, NewIncorrectDoFError(len(v), size)
	}
	qPlus := make([]float64, size)
	qMinus := make([]float64, size)
	floats.AddScaledTo(qPlus, q, finiteDifferenceStep, v)
	floats.AddScaledTo(qMinus, q, -finiteDifferenceStep, v)
	return qPlus, qMinus, nil
}

func (m *Model) perturbedPoses(q, v []float64) (map[string]spatialmath.Pose, map[string]spatialmath.Pose, error) {
	qPlus, qMinus, err := m.perturbedConfigurations(q, v)
	if err != nil {
		return nil, nil, err
	}
	plus, err := m.FramePoses(qPlus)
	if plus == nil {
		return nil, nil, err
	}
	minus, err := m.FramePoses(qMinus)
	if minus == nil {
		return nil, nil, err
	}
	return plus, minus, nil
}
