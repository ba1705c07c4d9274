package predictor

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// SumTolerance is how far a score vector's sum may drift from 1 before it is
// treated as unnormalized logits. The artifact does not record its final
// activation, so this is a heuristic and not a probability test.
const SumTolerance = 0.1

// Calibrate returns a probability distribution derived from raw. Vectors
// summing to within SumTolerance of 1 are returned unchanged; anything else
// goes through a softmax and the second result is true.
func Calibrate(raw []float64) ([]float64, bool, error) {
	if len(raw) == 0 {
		return nil, false, newError(KindInferenceFailure, errors.New("empty score vector"))
	}

	var sum float64
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false, newError(KindInferenceFailure, fmt.Errorf("score %d is not finite", i))
		}
		sum += v
	}

	if math.Abs(sum-1) <= SumTolerance {
		return slices.Clone(raw), false, nil
	}

	return softmax(raw), true, nil
}

func softmax(v []float64) []float64 {
	peak := slices.Max(v)
	out := make([]float64, len(v))

	var sum float64
	for i, x := range v {
		out[i] = math.Exp(x - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}

	return out
}
