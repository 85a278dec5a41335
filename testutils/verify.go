// Package testutils holds helpers shared by the package tests.
package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the tests of a package and fails if goroutines are still running afterwards.
func VerifyTestMain(m goleak.TestingM, opts ...goleak.Option) {
	goleak.VerifyTestMain(m, opts...)
}
