// Package problem holds the planning context shared by the agimus services: the robot model, the
// computed paths, the obstacles and the current configuration.
package problem

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/referenceframe"
	"github.com/agimus-project/agimus/spatialmath"
)

// Obstacle is a set of boxes rigidly attached to a frame of the robot or to the world.
type Obstacle struct {
	Name  string
	Frame string
	// Geometries are expressed in Frame.
	Geometries []*spatialmath.Box
}

// ProblemSolver is the planning context the services read from and write to.
type ProblemSolver interface {
	Robot() *referenceframe.Model
	AddPath(p Path) int
	Path(id int) (Path, error)
	NumberPaths() int
	AddObstacle(name, frame string, geometries []*spatialmath.Box) error
	RemoveObstacle(name string) error
	Obstacle(name string) (Obstacle, error)
	Obstacles() []string
	ObstaclePose(name string) (spatialmath.Pose, error)
	ObstacleGeometries(name string) ([]*spatialmath.Box, error)
	CurrentConfiguration() []float64
	SetCurrentConfiguration(q []float64) error
}

// Solver is an in-memory ProblemSolver safe for concurrent use.
type Solver struct {
	mu        sync.RWMutex
	robot     *referenceframe.Model
	paths     []Path
	obstacles map[string]Obstacle
	current   []float64

	logger logging.Logger
}

// NewSolver returns a solver for robot, starting at the zero configuration.
func NewSolver(robot *referenceframe.Model, logger logging.Logger) (*Solver, error) {
	if robot == nil {
		return nil, referenceframe.ErrNoModelInformation
	}
	return &Solver{
		robot:     robot,
		obstacles: map[string]Obstacle{},
		current:   make([]float64, robot.ConfigSize()),
		logger:    logger,
	}, nil
}

// Robot returns the robot model.
func (s *Solver) Robot() *referenceframe.Model {
	return s.robot
}

// AddPath stores p and returns its id.
func (s *Solver) AddPath(p Path) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, p)
	return len(s.paths) - 1
}

// Path returns the path with the given id.
func (s *Solver) Path(id int) (Path, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.paths) {
		return nil, NewPathNotFoundError(id)
	}
	return s.paths[id], nil
}

// NumberPaths returns how many paths are stored.
func (s *Solver) NumberPaths() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

// AddObstacle attaches geometries to frame under name. An obstacle with the same name is replaced.
func (s *Solver) AddObstacle(name, frame string, geometries []*spatialmath.Box) error {
	if name == "" {
		return errors.New("obstacle name must not be empty")
	}
	if !s.robot.HasFrame(frame) {
		return referenceframe.NewFrameNotFoundError(frame)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.obstacles[name]; ok {
		s.logger.Debugw("replacing obstacle", "name", name, "frame", frame)
	}
	s.obstacles[name] = Obstacle{
		Name:       name,
		Frame:      frame,
		Geometries: append([]*spatialmath.Box(nil), geometries...),
	}
	return nil
}

// RemoveObstacle deletes the named obstacle.
func (s *Solver) RemoveObstacle(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.obstacles[name]; !ok {
		return NewObstacleNotFoundError(name)
	}
	delete(s.obstacles, name)
	return nil
}

// Obstacle returns the named obstacle.
func (s *Solver) Obstacle(name string) (Obstacle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.obstacles[name]
	if !ok {
		return Obstacle{}, NewObstacleNotFoundError(name)
	}
	o.Geometries = append([]*spatialmath.Box(nil), o.Geometries...)
	return o, nil
}

// Obstacles returns the sorted obstacle names.
func (s *Solver) Obstacles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := lo.Keys(s.obstacles)
	sort.Strings(names)
	return names
}

// ObstaclePose returns the world pose of the frame the obstacle is attached to, at the current
// configuration.
func (s *Solver) ObstaclePose(name string) (spatialmath.Pose, error) {
	s.mu.RLock()
	o, ok := s.obstacles[name]
	q := append([]float64(nil), s.current...)
	s.mu.RUnlock()
	if !ok {
		return nil, NewObstacleNotFoundError(name)
	}
	if o.Frame == referenceframe.World {
		return spatialmath.NewZeroPose(), nil
	}
	pose, err := s.robot.FramePose(o.Frame, q)
	if pose == nil {
		return nil, err
	}
	return pose, nil
}

// ObstacleGeometries returns the geometries of the obstacle expressed in the world frame.
func (s *Solver) ObstacleGeometries(name string) ([]*spatialmath.Box, error) {
	o, err := s.Obstacle(name)
	if err != nil {
		return nil, err
	}
	pose, err := s.ObstaclePose(name)
	if err != nil {
		return nil, err
	}
	return lo.Map(o.Geometries, func(b *spatialmath.Box, _ int) *spatialmath.Box {
		return b.Transform(pose)
	}), nil
}

// CurrentConfiguration returns a copy of the current configuration.
func (s *Solver) CurrentConfiguration() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.current...)
}

// SetCurrentConfiguration sets the current configuration.
func (s *Solver) SetCurrentConfiguration(q []float64) error {
	if len(q) != s.robot.ConfigSize() {
		return referenceframe.NewIncorrectDoFError(len(q), s.robot.ConfigSize())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = append(s.current[:0], q...)
	return nil
}
