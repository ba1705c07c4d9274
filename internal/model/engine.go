package model

import (
	"context"
	"fmt"
)

// Infer runs one forward pass and widens the raw scores to float64. It
// trusts the model to reject an input of the wrong shape.
func (m *LoadedModel) Infer(ctx context.Context, input Tensor) (scores []float64, err error) {
	if !m.Ready || m.model == nil {
		return nil, ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			scores = nil
			err = fmt.Errorf("%w: panic in forward pass: %v", ErrInference, r)
		}
	}()

	out, err := m.model.Predict(input.Data)
	if err != nil {
		return nil, err
	}

	scores = make([]float64, len(out))
	for i, v := range out {
		scores[i] = float64(v)
	}

	return scores, nil
}
