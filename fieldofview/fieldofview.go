// Package fieldofview tracks the groups of features a sensor is expected to see while the robot moves.
package fieldofview

import (
	"sync"

	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/problem"
	"github.com/agimus-project/agimus/spatialmath"
)

// Tetrahedron is the set of faces a feature is converted to for visibility checks.
type Tetrahedron []*spatialmath.Triangle

// FieldOfView holds the feature groups of a planning session.
type FieldOfView struct {
	mu            sync.RWMutex
	featureGroups []*FeatureGroup
	display       bool

	problem problem.ProblemSolver
	logger  logging.Logger
}

// New returns a field of view with no feature group.
func New(ps problem.ProblemSolver, logger logging.Logger) *FieldOfView {
	return &FieldOfView{problem: ps, logger: logger}
}

// Problem returns the planning context the field of view was created for.
func (fov *FieldOfView) Problem() problem.ProblemSolver {
	return fov.problem
}

// AddFeatureGroup appends g.
func (fov *FieldOfView) AddFeatureGroup(g *FeatureGroup) {
	fov.mu.Lock()
	defer fov.mu.Unlock()
	fov.featureGroups = append(fov.featureGroups, g)
	fov.logger.Debugw("added feature group", "groups", len(fov.featureGroups))
}

// ResetFeatureGroups removes every feature group.
func (fov *FieldOfView) ResetFeatureGroups() {
	fov.mu.Lock()
	defer fov.mu.Unlock()
	fov.featureGroups = nil
}

// FeatureGroups returns a copy of the feature groups, in insertion order.
func (fov *FieldOfView) FeatureGroups() []*FeatureGroup {
	fov.mu.RLock()
	defer fov.mu.RUnlock()
	return append([]*FeatureGroup{}, fov.featureGroups...)
}

// SetDisplay sets whether visibility results are displayed.
func (fov *FieldOfView) SetDisplay(display bool) {
	fov.mu.Lock()
	defer fov.mu.Unlock()
	fov.display = display
}

// Display returns the display flag.
func (fov *FieldOfView) Display() bool {
	fov.mu.RLock()
	defer fov.mu.RUnlock()
	return fov.display
}

// NumberVisibleFeature returns how many features of g are visible.
func (fov *FieldOfView) NumberVisibleFeature(g *FeatureGroup) int {
	if g == nil {
		return 0
	}
	n := 0
	for _, f := range g.Features() {
		if fov.featureVisible(f) {
			n++
		}
	}
	return n
}

// Clogged returns whether the robot hides the field of view. Never true for now.
func (fov *FieldOfView) Clogged() bool {
	return fov.robotClogsFieldOfView()
}

// featureToTetrahedronPts returns the tetrahedron of f. Not computed yet.
func (fov *FieldOfView) featureToTetrahedronPts(f Feature) Tetrahedron {
	return Tetrahedron{}
}

// featureVisible is not computed yet.
func (fov *FieldOfView) featureVisible(f Feature) bool {
	return false
}

// robotClogsFieldOfView is not computed yet.
func (fov *FieldOfView) robotClogsFieldOfView() bool {
	return false
}
