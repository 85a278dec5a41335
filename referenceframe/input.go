package referenceframe

import (
	"gonum.org/v1/gonum/floats"
)

// Input is the value of one degree of freedom: radians for revolute joints, mm for prismatic
// ones.
type Input struct {
	Value float64
}

// FloatsToInputs converts a configuration vector to inputs.
func FloatsToInputs(q []float64) []Input {
	out := make([]Input, 0, len(q))
	for _, v := range q {
		out = append(out, Input{Value: v})
	}
	return out
}

// InputsToFloats converts inputs back to a configuration vector.
func InputsToFloats(in []Input) []float64 {
	out := make([]float64, 0, len(in))
	for _, i := range in {
		out = append(out, i.Value)
	}
	return out
}

// InputsL2Distance returns the euclidean distance between two configurations, or 0 when their
// lengths differ.
func InputsL2Distance(from, to []Input) float64 {
	if len(from) != len(to) {
		return 0
	}
	return floats.Distance(InputsToFloats(from), InputsToFloats(to), 2)
}
