package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cozy-creator/lesion-server/internal/utils/hashutil"
	"github.com/cozy-creator/lesion-server/internal/utils/pathutil"
	"go.uber.org/zap"
)

var (
	ErrNotApplicable      = errors.New("strategy does not apply to this artifact")
	ErrNoWeightsCopied    = errors.New("no weights matched the expected architecture")
	ErrNoBackboneWeights  = errors.New("no backbone weights configured")
	ErrSmokeTestFailed    = errors.New("smoke test failed")
	ErrArtifactNotPresent = errors.New("artifact not present")
)

type LoaderConfig struct {
	ArtifactPath        string
	BackboneWeightsPath string
	InputShape          []int64
	NumClasses          int
	OnnxRuntimeLib      string
	Seed                uint64
}

// Artifact is the raw artifact handed to every strategy. Data is read once
// up front; ONNX artifacts are opened again by path.
type Artifact struct {
	Path string
	Data []byte
}

func (a *Artifact) IsONNX() bool {
	return strings.EqualFold(filepath.Ext(a.Path), ".onnx")
}

// Strategy is one way of turning an artifact into a runnable model.
type Strategy struct {
	Provenance Provenance
	Load       func(ctx context.Context, a *Artifact) (Model, error)
}

// Outcome records what a single strategy attempt produced. Index is 1-based.
type Outcome struct {
	Index      int
	Provenance Provenance
	Model      Model
	Err        error
}

type Loader struct {
	cfg        LoaderConfig
	logger     *zap.Logger
	strategies []Strategy
}

func NewLoader(cfg LoaderConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Loader{cfg: cfg, logger: logger}
	l.strategies = []Strategy{
		{Provenance: ProvenanceNative, Load: l.loadNative},
		{Provenance: ProvenanceRecompiled, Load: l.loadRecompiled},
		{Provenance: ProvenanceWeightsTransplant, Load: l.loadTransplant},
		{Provenance: ProvenanceArchitectureOnly, Load: l.loadArchitectureOnly},
	}

	return l
}

// Strategies returns the chain in the order Load tries it.
func (l *Loader) Strategies() []Strategy {
	return slices.Clone(l.strategies)
}

// Load walks the strategy chain and returns the first model that passes the
// smoke test. It never returns nil; when every strategy fails the result is
// not Ready.
func (l *Loader) Load(ctx context.Context) *LoadedModel {
	artifact, err := l.preflight()
	if err != nil {
		l.logger.Error("model artifact unavailable", zap.String("path", l.cfg.ArtifactPath), zap.Error(err))
		return Unavailable()
	}

	digest := hashutil.Blake3Hash(artifact.Data)
	for i, strategy := range l.strategies {
		if err := ctx.Err(); err != nil {
			l.logger.Warn("model loading cancelled", zap.Error(err))
			break
		}

		outcome := l.attempt(ctx, i+1, strategy, artifact)
		if outcome.Err != nil {
			l.logger.Warn("model loading strategy failed",
				zap.Int("strategy", outcome.Index),
				zap.String("provenance", string(outcome.Provenance)),
				zap.Error(outcome.Err),
			)
			continue
		}

		loaded := NewLoadedModel(outcome.Model, outcome.Provenance, l.cfg.InputShape, l.cfg.NumClasses)
		loaded.Digest = digest
		l.logger.Info("model loaded",
			zap.Int("strategy", outcome.Index),
			zap.String("provenance", string(outcome.Provenance)),
			zap.Bool("degraded", loaded.Degraded()),
			zap.String("digest", digest),
		)
		return loaded
	}

	l.logger.Error("all model loading strategies failed", zap.String("path", artifact.Path))
	unavailable := Unavailable()
	unavailable.Digest = digest
	return unavailable
}

func (l *Loader) preflight() (*Artifact, error) {
	if l.cfg.ArtifactPath == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrArtifactNotPresent)
	}
	if NumElements(l.cfg.InputShape) == 0 || l.cfg.NumClasses <= 0 {
		return nil, fmt.Errorf("invalid loader configuration: input shape %v, %d classes", l.cfg.InputShape, l.cfg.NumClasses)
	}

	path, err := pathutil.ExpandPath(l.cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}
	if !pathutil.FileExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotPresent, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	return &Artifact{Path: path, Data: data}, nil
}

func (l *Loader) attempt(ctx context.Context, index int, strategy Strategy, artifact *Artifact) (outcome Outcome) {
	outcome = Outcome{Index: index, Provenance: strategy.Provenance}

	defer func() {
		if r := recover(); r != nil {
			outcome.Model = nil
			outcome.Err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()

	m, err := strategy.Load(ctx, artifact)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	if err := l.smokeTest(m); err != nil {
		m.Close()
		outcome.Err = err
		return outcome
	}

	outcome.Model = m
	return outcome
}

// smokeTest runs one forward pass on a fixed ramp input and checks the output
// is a finite vector of the expected length.
func (l *Loader) smokeTest(m Model) error {
	input := make([]float32, NumElements(l.cfg.InputShape))
	for i := range input {
		input[i] = float32(i%256) / 255
	}

	out, err := m.Predict(input)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSmokeTestFailed, err)
	}

	want := int(l.cfg.InputShape[0]) * l.cfg.NumClasses
	if len(out) != want {
		return fmt.Errorf("%w: expected %d scores, got %d", ErrSmokeTestFailed, want, len(out))
	}
	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: score %d is not finite", ErrSmokeTestFailed, i)
		}
	}

	return nil
}

func (l *Loader) loadNative(_ context.Context, a *Artifact) (Model, error) {
	if a.IsONNX() {
		return newONNXModel(a.Path, l.cfg.OnnxRuntimeLib, l.cfg.InputShape, l.cfg.NumClasses)
	}

	b, err := DecodeBundle(a.Data, true)
	if err != nil {
		return nil, err
	}
	if b.Training == nil {
		return nil, ErrMissingTraining
	}
	if err := b.Training.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training metadata: %w", err)
	}

	return l.buildFromBundle(b)
}

func (l *Loader) loadRecompiled(_ context.Context, a *Artifact) (Model, error) {
	if a.IsONNX() {
		return nil, ErrNotApplicable
	}

	b, err := DecodeBundle(a.Data, false)
	if err != nil {
		return nil, err
	}
	b.Training = DefaultTrainingConfig()

	return l.buildFromBundle(b)
}

func (l *Loader) buildFromBundle(b *Bundle) (*Network, error) {
	if !ShapeEqual(b.InputShape, l.cfg.InputShape) {
		return nil, fmt.Errorf("%w: artifact expects %v, serving %v", ErrShapeMismatch, b.InputShape, l.cfg.InputShape)
	}

	net, err := BuildNetwork(b.InputShape, b.Architecture)
	if err != nil {
		return nil, err
	}
	if _, err := net.LoadWeights(b.Weights, true); err != nil {
		return nil, err
	}

	return net, nil
}

func (l *Loader) loadTransplant(_ context.Context, a *Artifact) (Model, error) {
	if a.IsONNX() {
		return nil, ErrNotApplicable
	}

	table, err := DecodeWeightTable(a.Data)
	if err != nil {
		return nil, err
	}

	return l.transplant(table)
}

func (l *Loader) loadArchitectureOnly(_ context.Context, _ *Artifact) (Model, error) {
	if l.cfg.BackboneWeightsPath == "" {
		return nil, ErrNoBackboneWeights
	}

	path, err := pathutil.ExpandPath(l.cfg.BackboneWeightsPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backbone weights: %w", err)
	}

	table, err := DecodeWeightTable(data)
	if err != nil {
		return nil, err
	}

	return l.transplant(BackboneOnly(table))
}

func (l *Loader) transplant(table WeightTable) (*Network, error) {
	net, err := BuildExpected(l.cfg.InputShape, l.cfg.NumClasses, l.cfg.Seed)
	if err != nil {
		return nil, err
	}

	report, err := net.LoadWeights(table, false)
	if err != nil {
		return nil, err
	}
	for _, key := range report.Skipped {
		l.logger.Debug("weight not transplanted", zap.String("weight", key))
	}
	if len(report.Loaded) == 0 {
		return nil, ErrNoWeightsCopied
	}

	l.logger.Debug("weights transplanted", zap.Int("loaded", len(report.Loaded)), zap.Int("skipped", len(report.Skipped)))
	return net, nil
}
