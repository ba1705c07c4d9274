package resultcache

import (
	"testing"

	"github.com/cozy-creator/lesion-server/internal/predictor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(diagnosis string) *predictor.Result {
	return &predictor.Result{
		TopResult: predictor.TopResult{Diagnosis: diagnosis, Confidence: 60},
		AllPredictions: []predictor.Prediction{
			{Class: diagnosis, Confidence: 60},
			{Class: "Nevus", Confidence: 5},
		},
		ModelStatus: predictor.ModelStatusLoaded,
	}
}

func TestCache(t *testing.T) {
	t.Run("Should return stored results by content key", func(t *testing.T) {
		c, err := New(4)
		require.NoError(t, err)

		key := Key([]byte("image bytes"))
		c.Add(key, sampleResult("Melanoma"))

		got, ok := c.Get(key)
		require.True(t, ok)
		assert.Equal(t, "Melanoma", got.TopResult.Diagnosis)

		_, ok = c.Get(Key([]byte("other bytes")))
		assert.False(t, ok)
	})

	t.Run("Should not share prediction slices with callers", func(t *testing.T) {
		c, err := New(4)
		require.NoError(t, err)

		original := sampleResult("Melanoma")
		c.Add("k", original)
		original.AllPredictions[0].Class = "mutated"

		got, _ := c.Get("k")
		got.AllPredictions[1].Class = "mutated too"

		again, _ := c.Get("k")
		assert.Equal(t, "Melanoma", again.AllPredictions[0].Class)
		assert.Equal(t, "Nevus", again.AllPredictions[1].Class)
	})

	t.Run("Should evict the least recently used entry", func(t *testing.T) {
		c, err := New(2)
		require.NoError(t, err)

		c.Add("a", sampleResult("A"))
		c.Add("b", sampleResult("B"))
		c.Get("a")
		c.Add("c", sampleResult("C"))

		_, ok := c.Get("b")
		assert.False(t, ok)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("Should be disabled at size zero", func(t *testing.T) {
		c, err := New(0)
		require.NoError(t, err)
		assert.Nil(t, c)

		c.Add("a", sampleResult("A"))
		_, ok := c.Get("a")
		assert.False(t, ok)
		assert.Zero(t, c.Len())
	})
}
