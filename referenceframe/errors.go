package referenceframe

import (
	"strings"

	"github.com/pkg/errors"
)

// OOBErrString is a string that all OOB errors should contain, so that they can be checked for distinct from other Transform errors.
const OOBErrString = "input out of bounds"

// IsOOBError returns whether err reports inputs out of bounds. Results returned along such an error are valid.
func IsOOBError(err error) bool {
	return err != nil && strings.Contains(err.Error(), OOBErrString)
}

// NewFrameNotFoundError returns an error indicating that a frame with the given name is not part of the model.
func NewFrameNotFoundError(frameName string) error {
	return errors.Errorf("frame with name %q not in model", frameName)
}

// NewParentFrameMissingError returns an error indicating that the parent of a frame is not part of the model.
func NewParentFrameMissingError(frameName, parentName string) error {
	return errors.Errorf("parent frame %q of frame %q is not in model", parentName, frameName)
}

// NewFrameAlreadyExistsError returns an error indicating that a frame with the given name already exists.
func NewFrameAlreadyExistsError(frameName string) error {
	return errors.Errorf("frame with name %q already exists in model", frameName)
}

// NewIncorrectDoFError returns an error indicating that the number of inputs does not match the degrees of freedom.
func NewIncorrectDoFError(actual, expected int) error {
	return errors.Errorf("number of inputs does not match frame DoF, expected %d but got %d", expected, actual)
}

// NewUnsupportedJointTypeError returns an error indicating that a given joint type is not supported.
func NewUnsupportedJointTypeError(jointType string) error {
	return errors.Errorf("unsupported joint type detected: %q", jointType)
}

// ErrNoModelInformation is used when there is no model information.
var ErrNoModelInformation = errors.New("no model information")
