// Package predictor turns uploaded image bytes into a ranked, localized
// diagnosis using a model loaded once per process.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/cozy-creator/lesion-server/internal/model"
	"github.com/cozy-creator/lesion-server/internal/utils/hashutil"
	"go.uber.org/zap"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateUnavailable   State = "unavailable"
)

const (
	ModelStatusLoaded   = "loaded"
	ModelStatusDegraded = "degraded"
)

// Loader produces the process model. model.Loader satisfies it.
type Loader interface {
	Load(ctx context.Context) *model.LoadedModel
}

type LoaderFunc func(ctx context.Context) *model.LoadedModel

func (f LoaderFunc) Load(ctx context.Context) *model.LoadedModel {
	return f(ctx)
}

type Details struct {
	AbnormalCells    float64 `json:"abnormalCells"`
	IrregularBorders float64 `json:"irregularBorders"`
	Pigmentation     float64 `json:"pigmentation"`
}

type TopResult struct {
	Diagnosis          string  `json:"diagnosis"`
	DiagnosisID        string  `json:"diagnosisId"`
	LocalizedDiagnosis string  `json:"localizedDiagnosis"`
	Confidence         float64 `json:"confidence"`
	Details            Details `json:"details"`
}

type Result struct {
	TopResult      TopResult        `json:"topResult"`
	AllPredictions []Prediction     `json:"allPredictions"`
	ModelStatus    string           `json:"modelStatus"`
	Provenance     model.Provenance `json:"provenance"`
	SoftmaxApplied bool             `json:"softmaxApplied"`
}

// Status is a snapshot of the predictor lifecycle.
type Status struct {
	State      State            `json:"state"`
	Ready      bool             `json:"ready"`
	Degraded   bool             `json:"degraded"`
	Provenance model.Provenance `json:"provenance"`
	Digest     string           `json:"digest,omitempty"`
	Classes    int              `json:"classes"`
	InputShape []int64          `json:"inputShape"`
}

type Option func(*Predictor)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Predictor) {
		p.logger = logger
	}
}

func WithLocale(locale string) Option {
	return func(p *Predictor) {
		p.locale = locale
	}
}

func WithImageSize(height, width int) Option {
	return func(p *Predictor) {
		p.normalizer = NewNormalizer(height, width)
	}
}

func WithTopK(k int) Option {
	return func(p *Predictor) {
		p.topK = k
	}
}

// Predictor owns the single LoadedModel of the process. Load runs once;
// Predict may be called concurrently afterwards.
type Predictor struct {
	mu    sync.RWMutex
	state State
	model *model.LoadedModel

	catalogue  Catalogue
	normalizer *Normalizer
	locale     string
	topK       int
	logger     *zap.Logger
}

func New(catalogue Catalogue, opts ...Option) (*Predictor, error) {
	if err := catalogue.Validate(); err != nil {
		return nil, err
	}

	p := &Predictor{
		state:      StateUninitialized,
		model:      model.Unavailable(),
		catalogue:  catalogue,
		normalizer: NewNormalizer(DefaultImageSize, DefaultImageSize),
		locale:     DefaultLocale,
		topK:       DefaultTopK,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if !SupportedLocale(p.locale) {
		return nil, fmt.Errorf("unsupported locale %q", p.locale)
	}

	return p, nil
}

// Load materializes the model. It may be called once; an unavailable
// outcome is terminal and reported as an ArtifactUnavailable error.
func (p *Predictor) Load(ctx context.Context, loader Loader) error {
	p.mu.Lock()
	if p.state != StateUninitialized {
		p.mu.Unlock()
		return ErrAlreadyLoaded
	}
	p.state = StateLoading
	p.mu.Unlock()

	m := p.runLoader(ctx, loader)
	if m == nil {
		m = model.Unavailable()
	}
	if m.Ready && m.NumClasses != len(p.catalogue) {
		p.logger.Error("model output does not match the class catalogue",
			zap.Int("model_classes", m.NumClasses),
			zap.Int("catalogue_classes", len(p.catalogue)),
		)
		m.Close()
		m = model.Unavailable()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.model = m
	if !m.Ready {
		p.state = StateUnavailable
		p.logger.Error("predictor unavailable")
		return p.fail(KindArtifactUnavailable, model.ErrModelUnavailable)
	}

	p.state = StateReady
	p.logger.Info("predictor ready",
		zap.String("provenance", string(m.Provenance)),
		zap.Bool("degraded", m.Degraded()),
	)
	return nil
}

// runLoader turns a loader panic into an unavailable model so Load always
// leaves the loading state.
func (p *Predictor) runLoader(ctx context.Context, loader Loader) (m *model.LoadedModel) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("model loader panicked", zap.Any("panic", r))
			m = model.Unavailable()
		}
	}()

	return loader.Load(ctx)
}

func (p *Predictor) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Status{
		State:      p.state,
		Ready:      p.state == StateReady,
		Degraded:   p.model.Degraded(),
		Provenance: p.model.Provenance,
		Digest:     p.model.Digest,
		Classes:    len(p.catalogue),
		InputShape: p.normalizer.Shape(),
	}
}

func (p *Predictor) Catalogue() Catalogue {
	return append(Catalogue(nil), p.catalogue...)
}

func (p *Predictor) Locale() string {
	return p.locale
}

// Predict classifies one encoded image. Every error is an *Error with a
// localized Message.
func (p *Predictor) Predict(ctx context.Context, data []byte) (*Result, error) {
	p.mu.RLock()
	state, m := p.state, p.model
	p.mu.RUnlock()

	if state != StateReady {
		return nil, p.fail(KindArtifactUnavailable, fmt.Errorf("predictor is %s", state))
	}

	tensor, err := p.normalizer.Normalize(data)
	if err != nil {
		return nil, p.localize(err)
	}
	if !model.ShapeEqual(tensor.Shape, m.InputShape) {
		return nil, p.fail(KindShapeMismatch, fmt.Errorf("tensor %v, model expects %v", tensor.Shape, m.InputShape))
	}

	raw, err := m.Infer(ctx, tensor)
	if err != nil {
		if errors.Is(err, model.ErrShapeMismatch) {
			return nil, p.fail(KindShapeMismatch, err)
		}
		return nil, p.fail(KindInferenceFailure, err)
	}

	calibrated, applied, err := Calibrate(raw)
	if err != nil {
		return nil, p.localize(err)
	}
	if applied {
		p.logger.Debug("applied softmax to raw scores")
	}

	ranking, err := Rank(calibrated, p.catalogue)
	if err != nil {
		return nil, p.localize(err)
	}

	top := ranking.Top()
	status := ModelStatusLoaded
	if m.Degraded() {
		status = ModelStatusDegraded
	}

	return &Result{
		TopResult: TopResult{
			Diagnosis:          top.Class,
			DiagnosisID:        top.ClassID,
			LocalizedDiagnosis: top.Localized,
			Confidence:         top.Confidence,
			Details:            subscores(top.Probability*100, calibrated),
		},
		AllPredictions: ranking.TopK(p.topK),
		ModelStatus:    status,
		Provenance:     m.Provenance,
		SoftmaxApplied: applied,
	}, nil
}

func (p *Predictor) fail(kind Kind, err error) *Error {
	return newError(kind, err).Localize(p.locale)
}

func (p *Predictor) localize(err error) error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Localize(p.locale)
	}
	return p.fail(KindInferenceFailure, err)
}

// subscores derives the presentation-only detail indicators from the top
// confidence. The jitter is seeded from the calibrated scores, so the same
// image always yields the same values.
func subscores(confidence float64, calibrated []float64) Details {
	seed := hashutil.Blake3Floats(calibrated)
	rng := rand.New(rand.NewChaCha8(seed))

	jitter := func(lo, hi float64) float64 {
		v := round1(confidence + lo + rng.Float64()*(hi-lo))
		return min(100, max(0, v))
	}

	return Details{
		AbnormalCells:    jitter(-10, 10),
		IrregularBorders: jitter(-15, 5),
		Pigmentation:     jitter(-5, 15),
	}
}
