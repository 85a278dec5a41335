package problem

import "github.com/pkg/errors"

// NewPathNotFoundError returns an error indicating that no path has the given id.
func NewPathNotFoundError(id int) error {
	return errors.Errorf("path %d does not exist", id)
}

// NewObstacleNotFoundError returns an error indicating that no obstacle has the given name.
func NewObstacleNotFoundError(name string) error {
	return errors.Errorf("obstacle %q does not exist", name)
}

// NewOutOfRangeError returns an error indicating that a path was evaluated outside of its time range.
func NewOutOfRangeError(t, length float64) error {
	return errors.Errorf("parameter %g is outside of the path range [0, %g]", t, length)
}
