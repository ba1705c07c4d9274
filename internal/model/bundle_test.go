package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDecodeBundle(t *testing.T) {
	net, err := BuildExpected([]int64{1, 16, 16, 3}, 9, 1)
	require.NoError(t, err)

	t.Run("Should read back a saved bundle in strict mode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.msgpack")
		require.NoError(t, SaveBundle(path, net, nil))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		b, err := DecodeBundle(data, true)
		require.NoError(t, err)
		assert.Equal(t, BundleVersion, b.Version)
		assert.Equal(t, net.Architecture(), b.Architecture)
		assert.Equal(t, net.WeightTable(), b.Weights)
		require.NotNil(t, b.Training)
		assert.Equal(t, "adam", b.Training.Optimizer)
	})

	t.Run("Should reject unknown fields only in strict mode", func(t *testing.T) {
		doc := map[string]any{
			"format":          BundleFormat,
			"version":         BundleVersion,
			"input_shape":     net.InputShape(),
			"architecture":    net.Architecture(),
			"weights":         net.WeightTable(),
			"optimizer_state": []int{1, 2, 3},
		}
		data, err := msgpack.Marshal(doc)
		require.NoError(t, err)

		_, err = DecodeBundle(data, true)
		require.Error(t, err)

		b, err := DecodeBundle(data, false)
		require.NoError(t, err)
		assert.Nil(t, b.Training)
	})

	t.Run("Should accept older versions only in lenient mode", func(t *testing.T) {
		old := NewBundle(net, nil)
		old.Version = 1
		data, err := EncodeBundle(old)
		require.NoError(t, err)

		_, err = DecodeBundle(data, true)
		require.ErrorIs(t, err, ErrUnsupportedVersion)

		_, err = DecodeBundle(data, false)
		require.NoError(t, err)
	})

	t.Run("Should reject newer versions in every mode", func(t *testing.T) {
		future := NewBundle(net, nil)
		future.Version = BundleVersion + 1
		data, err := EncodeBundle(future)
		require.NoError(t, err)

		_, err = DecodeBundle(data, false)
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("Should refuse a weights-only document", func(t *testing.T) {
		data, err := msgpack.Marshal(&weightsDocument{Format: WeightsFormat, Weights: net.WeightTable()})
		require.NoError(t, err)

		_, err = DecodeBundle(data, false)
		require.ErrorIs(t, err, ErrNotBundle)
	})

	t.Run("Should fail on bytes that are not msgpack", func(t *testing.T) {
		_, err := DecodeBundle([]byte("definitely not a model"), false)
		require.Error(t, err)
	})
}

func TestDecodeWeightTable(t *testing.T) {
	net, err := BuildExpected([]int64{1, 16, 16, 3}, 9, 1)
	require.NoError(t, err)

	t.Run("Should read the weights section of a full bundle", func(t *testing.T) {
		data, err := EncodeBundle(NewBundle(net, nil))
		require.NoError(t, err)

		table, err := DecodeWeightTable(data)
		require.NoError(t, err)
		assert.Equal(t, net.WeightTable(), table)
	})

	t.Run("Should read a weights-only artifact", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "weights.msgpack")
		require.NoError(t, SaveWeights(path, BackboneOnly(net.WeightTable())))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		table, err := DecodeWeightTable(data)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"conv1", "conv2"}, sortedKeys(table))
	})

	t.Run("Should reject an empty weight table", func(t *testing.T) {
		data, err := msgpack.Marshal(&weightsDocument{Format: WeightsFormat})
		require.NoError(t, err)

		_, err = DecodeWeightTable(data)
		require.Error(t, err)
	})
}

func TestTrainingConfigValidate(t *testing.T) {
	t.Run("Should accept the default configuration", func(t *testing.T) {
		require.NoError(t, DefaultTrainingConfig().Validate())
	})

	t.Run("Should reject an unknown optimizer", func(t *testing.T) {
		cfg := DefaultTrainingConfig()
		cfg.Optimizer = "lamb"
		require.Error(t, cfg.Validate())
	})
}
