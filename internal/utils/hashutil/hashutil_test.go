package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlake3Hash(t *testing.T) {
	t.Run("Should return a stable 64 character hex digest", func(t *testing.T) {
		a := Blake3Hash([]byte("lesion"))
		b := Blake3Hash([]byte("lesion"))

		assert.Len(t, a, 64)
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, Blake3Hash([]byte("lesion!")))
	})
}

func TestBlake3Floats(t *testing.T) {
	t.Run("Should distinguish vectors that differ in a single bit", func(t *testing.T) {
		a := Blake3Floats([]float64{0.1, 0.9})
		b := Blake3Floats([]float64{0.1, 0.9})
		c := Blake3Floats([]float64{0.1, 0.9000000000000001})

		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
	})
}
