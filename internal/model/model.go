// Package model loads classifier artifacts and runs inference on them.
//
// A LoadedModel is produced once per process by a Loader, which tries a fixed
// chain of strategies against an artifact whose layout is not known in
// advance. Downstream code only inspects LoadedModel.Ready; it never sees a
// nil model.
package model

import (
	"errors"
	"slices"
)

var (
	ErrShapeMismatch    = errors.New("input shape mismatch")
	ErrInference        = errors.New("inference failed")
	ErrModelUnavailable = errors.New("model unavailable")
)

// Provenance names the loading strategy that produced a model.
type Provenance string

const (
	ProvenanceNative            Provenance = "native"
	ProvenanceRecompiled        Provenance = "recompiled"
	ProvenanceWeightsTransplant Provenance = "weights-transplant"
	ProvenanceArchitectureOnly  Provenance = "architecture-only-fallback"
	ProvenanceUnavailable       Provenance = "unavailable"
)

// Degraded reports whether predictions from this provenance come from
// weights that were never trained on the task.
func (p Provenance) Degraded() bool {
	return p == ProvenanceArchitectureOnly
}

// Model maps one flattened input tensor to a flat score vector.
// Implementations must be safe for concurrent use.
type Model interface {
	Predict(input []float32) ([]float32, error)
	Close() error
}

type LoadedModel struct {
	model Model

	Ready      bool
	Provenance Provenance
	InputShape []int64
	NumClasses int
	// Digest is the blake3 digest of the artifact the model was read from.
	Digest string
}

func NewLoadedModel(m Model, provenance Provenance, inputShape []int64, numClasses int) *LoadedModel {
	if m == nil {
		return Unavailable()
	}

	return &LoadedModel{
		model:      m,
		Ready:      true,
		Provenance: provenance,
		InputShape: slices.Clone(inputShape),
		NumClasses: numClasses,
	}
}

func Unavailable() *LoadedModel {
	return &LoadedModel{Provenance: ProvenanceUnavailable}
}

func (m *LoadedModel) Degraded() bool {
	return m.Ready && m.Provenance.Degraded()
}

func (m *LoadedModel) Close() error {
	if m.model == nil {
		return nil
	}

	return m.model.Close()
}

// Network returns the pure-Go network behind m, if it has one. ONNX models
// and unavailable models return false.
func (m *LoadedModel) Network() (*Network, bool) {
	net, ok := m.model.(*Network)
	return net, ok && m.Ready
}
