package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyNetwork(t *testing.T) *Network {
	t.Helper()
	net, err := BuildNetwork([]int64{1, 2, 2, 1}, []LayerConfig{
		{Name: "conv", Kind: LayerConv2D, Filters: 1, KernelSize: 1},
		{Name: "pool", Kind: LayerGlobalAveragePooling2D},
		{Name: "out", Kind: LayerDense, Units: 2, Activation: "softmax"},
	})
	require.NoError(t, err)
	return net
}

func TestBuildNetwork(t *testing.T) {
	t.Run("Should infer the output length of the expected architecture", func(t *testing.T) {
		net, err := BuildNetwork([]int64{1, 128, 128, 3}, ExpectedArchitecture(9))
		require.NoError(t, err)
		assert.Equal(t, 9, net.OutputLen())
		assert.Equal(t, []int64{1, 128, 128, 3}, net.InputShape())
		assert.Len(t, net.Architecture(), 6)
	})

	t.Run("Should reject unknown layer kinds", func(t *testing.T) {
		_, err := BuildNetwork([]int64{1, 4, 4, 1}, []LayerConfig{{Name: "x", Kind: "lstm"}})
		require.ErrorIs(t, err, ErrUnknownLayer)
	})

	t.Run("Should reject duplicate layer names", func(t *testing.T) {
		_, err := BuildNetwork([]int64{1, 4, 4, 1}, []LayerConfig{
			{Name: "a", Kind: LayerGlobalAveragePooling2D},
			{Name: "a", Kind: LayerDense, Units: 2},
		})
		require.Error(t, err)
	})

	t.Run("Should reject a network that does not end in a vector", func(t *testing.T) {
		_, err := BuildNetwork([]int64{1, 4, 4, 1}, []LayerConfig{
			{Name: "conv", Kind: LayerConv2D, Filters: 2, KernelSize: 3},
		})
		require.Error(t, err)
	})

	t.Run("Should reject an input shape without a batch axis", func(t *testing.T) {
		_, err := BuildNetwork([]int64{128, 128, 3}, ExpectedArchitecture(9))
		require.Error(t, err)
	})
}

func TestNetworkPredict(t *testing.T) {
	t.Run("Should compute a forward pass through conv, pooling and dense", func(t *testing.T) {
		net := tinyNetwork(t)
		_, err := net.LoadWeights(WeightTable{
			"conv": {
				"kernel": {Shape: []int64{1, 1, 1, 1}, Data: []float32{2}},
				"bias":   {Shape: []int64{1}, Data: []float32{1}},
			},
			"out": {
				"kernel": {Shape: []int64{1, 2}, Data: []float32{1, -1}},
				"bias":   {Shape: []int64{2}, Data: []float32{0, 0}},
			},
		}, true)
		require.NoError(t, err)

		out, err := net.Predict([]float32{1, 2, 3, 4})
		require.NoError(t, err)
		require.Len(t, out, 2)

		// conv gives 3,5,7,9; pooling gives 6; logits are 6 and -6.
		want := 1 / (1 + math.Exp(-12))
		assert.InDelta(t, want, out[0], 1e-6)
		assert.InDelta(t, 1-want, out[1], 1e-6)
	})

	t.Run("Should pad symmetrically for same padding", func(t *testing.T) {
		net, err := BuildNetwork([]int64{1, 2, 2, 1}, []LayerConfig{
			{Name: "conv", Kind: LayerConv2D, Filters: 1, KernelSize: 3, Padding: PaddingSame},
			{Name: "pool", Kind: LayerGlobalAveragePooling2D},
		})
		require.NoError(t, err)

		ones := make([]float32, 9)
		for i := range ones {
			ones[i] = 1
		}
		_, err = net.LoadWeights(WeightTable{
			"conv": {
				"kernel": {Shape: []int64{3, 3, 1, 1}, Data: ones},
				"bias":   {Shape: []int64{1}, Data: []float32{0}},
			},
		}, true)
		require.NoError(t, err)

		out, err := net.Predict([]float32{1, 1, 1, 1})
		require.NoError(t, err)
		assert.InDelta(t, 4, out[0], 1e-6)
	})

	t.Run("Should put the odd padding row after the data for strided same padding", func(t *testing.T) {
		net, err := BuildNetwork([]int64{1, 4, 4, 1}, []LayerConfig{
			{Name: "conv", Kind: LayerConv2D, Filters: 1, KernelSize: 3, Strides: 2, Padding: PaddingSame},
			{Name: "pool", Kind: LayerGlobalAveragePooling2D},
		})
		require.NoError(t, err)

		ones := make([]float32, 9)
		for i := range ones {
			ones[i] = 1
		}
		_, err = net.LoadWeights(WeightTable{
			"conv": {
				"kernel": {Shape: []int64{3, 3, 1, 1}, Data: ones},
				"bias":   {Shape: []int64{1}, Data: []float32{0}},
			},
		}, true)
		require.NoError(t, err)

		input := make([]float32, 16)
		for i := range input {
			input[i] = float32(i)
		}

		// Windows start at rows and columns 0 and 2, giving 45, 39, 66 and 50.
		out, err := net.Predict(input)
		require.NoError(t, err)
		assert.InDelta(t, 50, out[0], 1e-4)
	})

	t.Run("Should use weights loaded after the first prediction", func(t *testing.T) {
		net := tinyNetwork(t)
		table := WeightTable{
			"conv": {
				"kernel": {Shape: []int64{1, 1, 1, 1}, Data: []float32{1}},
				"bias":   {Shape: []int64{1}, Data: []float32{0}},
			},
			"out": {
				"kernel": {Shape: []int64{1, 2}, Data: []float32{0, 0}},
				"bias":   {Shape: []int64{2}, Data: []float32{0, 0}},
			},
		}
		_, err := net.LoadWeights(table, true)
		require.NoError(t, err)

		out, err := net.Predict([]float32{1, 2, 3, 4})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, out[0], 1e-6)

		table["out"]["kernel"] = Tensor{Shape: []int64{1, 2}, Data: []float32{1, -1}}
		_, err = net.LoadWeights(table, true)
		require.NoError(t, err)

		// pooling gives 2.5; logits are 2.5 and -2.5.
		out, err = net.Predict([]float32{1, 2, 3, 4})
		require.NoError(t, err)
		assert.InDelta(t, 1/(1+math.Exp(-5)), out[0], 1e-6)
	})

	t.Run("Should return a probability vector from the expected architecture", func(t *testing.T) {
		net, err := BuildExpected([]int64{1, 32, 32, 3}, 9, 42)
		require.NoError(t, err)

		input := make([]float32, 32*32*3)
		for i := range input {
			input[i] = float32(i%7) / 7
		}

		out, err := net.Predict(input)
		require.NoError(t, err)
		require.Len(t, out, 9)

		var sum float64
		for _, v := range out {
			assert.GreaterOrEqual(t, v, float32(0))
			sum += float64(v)
		}
		assert.InDelta(t, 1, sum, 1e-5)
	})

	t.Run("Should fail with a shape mismatch for a wrongly sized input", func(t *testing.T) {
		net := tinyNetwork(t)
		_, err := net.Predict([]float32{1, 2, 3})
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestNetworkLoadWeights(t *testing.T) {
	t.Run("Should fail in strict mode when a weight is missing", func(t *testing.T) {
		net := tinyNetwork(t)
		_, err := net.LoadWeights(WeightTable{}, true)
		require.Error(t, err)
	})

	t.Run("Should report skipped weights in lenient mode", func(t *testing.T) {
		net := tinyNetwork(t)
		report, err := net.LoadWeights(WeightTable{
			"conv":  {"kernel": {Shape: []int64{1, 1, 1, 1}, Data: []float32{1}}},
			"out":   {"kernel": {Shape: []int64{3, 2}, Data: make([]float32, 6)}},
			"extra": {"kernel": {Shape: []int64{1}, Data: []float32{1}}},
		}, false)
		require.NoError(t, err)

		assert.Equal(t, []string{"conv/kernel"}, report.Loaded)
		assert.ElementsMatch(t, []string{"conv/bias", "out/bias", "out/kernel", "extra/kernel"}, report.Skipped)
	})

	t.Run("Should skip tensors whose data does not match their shape", func(t *testing.T) {
		net := tinyNetwork(t)
		report, err := net.LoadWeights(WeightTable{
			"conv": {"kernel": {Shape: []int64{1, 1, 1, 1}, Data: []float32{1, 2}}},
		}, false)
		require.NoError(t, err)
		assert.Empty(t, report.Loaded)
	})
}

func TestNetworkInitialize(t *testing.T) {
	t.Run("Should be deterministic for a given seed", func(t *testing.T) {
		a, err := BuildExpected([]int64{1, 16, 16, 3}, 9, 7)
		require.NoError(t, err)
		b, err := BuildExpected([]int64{1, 16, 16, 3}, 9, 7)
		require.NoError(t, err)
		c, err := BuildExpected([]int64{1, 16, 16, 3}, 9, 8)
		require.NoError(t, err)

		assert.Equal(t, a.WeightTable(), b.WeightTable())
		assert.NotEqual(t, a.WeightTable()["conv1"]["kernel"].Data, c.WeightTable()["conv1"]["kernel"].Data)
	})

	t.Run("Should zero biases", func(t *testing.T) {
		net, err := BuildExpected([]int64{1, 16, 16, 3}, 9, 7)
		require.NoError(t, err)

		for _, v := range net.WeightTable()["fc1"]["bias"].Data {
			assert.Zero(t, v)
		}
	})
}
