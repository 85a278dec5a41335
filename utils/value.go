package utils

import (
	"github.com/pkg/errors"
)

// NewUnexpectedTypeError reports that a value of type ExpectedT was wanted and actual was found.
// The expected type is printed as a pointer so that interface types show up by name.
func NewUnexpectedTypeError[ExpectedT any](actual interface{}) error {
	return errors.Errorf("expected %T but got %T", (*ExpectedT)(nil), actual)
}

// AssertType returns v as a T, or the zero T and an error built with NewUnexpectedTypeError.
func AssertType[T any](v interface{}) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	return zero, NewUnexpectedTypeError[T](v)
}
