package model

import (
	"fmt"
	"slices"
)

// Tensor is a dense float32 array in row-major order. Image tensors use the
// NHWC layout.
type Tensor struct {
	Shape []int64   `msgpack:"shape" json:"shape"`
	Data  []float32 `msgpack:"data" json:"-"`
}

func NewTensor(shape ...int64) Tensor {
	return Tensor{
		Shape: slices.Clone(shape),
		Data:  make([]float32, NumElements(shape)),
	}
}

// NumElements returns the product of the dimensions of shape.
func NumElements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}

	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	return int(n)
}

// Validate checks that the data length agrees with the declared shape.
func (t Tensor) Validate() error {
	if n := NumElements(t.Shape); n != len(t.Data) {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShapeMismatch, t.Shape, n, len(t.Data))
	}

	return nil
}

func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

func ShapeEqual(a, b []int64) bool {
	return slices.Equal(a, b)
}
