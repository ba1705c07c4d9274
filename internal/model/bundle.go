package model

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	BundleFormat  = "lesion-model"
	WeightsFormat = "lesion-weights"

	// BundleVersion is the only version the native strategy accepts. Version 1
	// bundles were written without training metadata.
	BundleVersion = 2
)

var (
	ErrNotBundle          = errors.New("artifact is not a full model bundle")
	ErrMissingTraining    = errors.New("bundle has no training metadata")
	ErrUnsupportedVersion = errors.New("unsupported bundle version")
)

var (
	knownOptimizers = []string{"adam", "adamw", "rmsprop", "sgd"}
	knownLosses     = []string{"categorical_crossentropy", "sparse_categorical_crossentropy", "focal"}
)

// TrainingConfig records how the artifact was compiled for training. It is
// validated but never used to build an optimizer at serving time.
type TrainingConfig struct {
	Optimizer string   `msgpack:"optimizer"`
	Loss      string   `msgpack:"loss"`
	Metrics   []string `msgpack:"metrics,omitempty"`
}

func DefaultTrainingConfig() *TrainingConfig {
	return &TrainingConfig{
		Optimizer: "adam",
		Loss:      "categorical_crossentropy",
		Metrics:   []string{"accuracy"},
	}
}

func (t *TrainingConfig) Validate() error {
	if !slices.Contains(knownOptimizers, t.Optimizer) {
		return fmt.Errorf("unknown optimizer %q", t.Optimizer)
	}
	if !slices.Contains(knownLosses, t.Loss) {
		return fmt.Errorf("unknown loss %q", t.Loss)
	}

	return nil
}

// Bundle is the on-disk layout of a full model: architecture, weights and
// training metadata in one msgpack document.
type Bundle struct {
	Format       string          `msgpack:"format"`
	Version      int             `msgpack:"version"`
	InputShape   []int64         `msgpack:"input_shape"`
	Architecture []LayerConfig   `msgpack:"architecture"`
	Weights      WeightTable     `msgpack:"weights"`
	Training     *TrainingConfig `msgpack:"training,omitempty"`
}

// weightsDocument matches both weight-only artifacts and the weights section
// of a full bundle.
type weightsDocument struct {
	Format  string      `msgpack:"format"`
	Weights WeightTable `msgpack:"weights"`
}

// DecodeBundle parses a full bundle. Strict decoding rejects unknown fields
// and any version other than BundleVersion.
func DecodeBundle(data []byte, strict bool) (*Bundle, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields(strict)

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}

	if b.Format != BundleFormat || len(b.Architecture) == 0 {
		return nil, fmt.Errorf("%w: format %q", ErrNotBundle, b.Format)
	}
	if strict && b.Version != BundleVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b.Version)
	}
	if b.Version > BundleVersion {
		return nil, fmt.Errorf("%w: %d is newer than %d", ErrUnsupportedVersion, b.Version, BundleVersion)
	}

	return &b, nil
}

// DecodeWeightTable extracts a weight table from either a weights artifact or
// a full bundle.
func DecodeWeightTable(data []byte) (WeightTable, error) {
	var doc weightsDocument
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode weight table: %w", err)
	}

	if doc.Format != WeightsFormat && doc.Format != BundleFormat {
		return nil, fmt.Errorf("unrecognized artifact format %q", doc.Format)
	}
	if len(doc.Weights) == 0 {
		return nil, errors.New("artifact contains no weights")
	}

	return doc.Weights, nil
}

func EncodeBundle(b *Bundle) ([]byte, error) {
	return msgpack.Marshal(b)
}

// NewBundle snapshots net into a bundle at the current version.
func NewBundle(net *Network, training *TrainingConfig) *Bundle {
	if training == nil {
		training = DefaultTrainingConfig()
	}

	return &Bundle{
		Format:       BundleFormat,
		Version:      BundleVersion,
		InputShape:   net.InputShape(),
		Architecture: net.Architecture(),
		Weights:      net.WeightTable(),
		Training:     training,
	}
}

// SaveBundle writes net as a native bundle at path.
func SaveBundle(path string, net *Network, training *TrainingConfig) error {
	data, err := EncodeBundle(NewBundle(net, training))
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	return writeFile(path, data)
}

// SaveWeights writes a weight-only artifact.
func SaveWeights(path string, table WeightTable) error {
	data, err := msgpack.Marshal(&weightsDocument{Format: WeightsFormat, Weights: table})
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
