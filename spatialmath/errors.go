package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

func newBadGeometryDimensionsError(dims r3.Vector) error {
	return errors.Errorf("invalid dimension(s) %v for box, dimensions must not be negative", dims)
}
