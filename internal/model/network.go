package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

const (
	LayerConv2D                 = "conv2d"
	LayerGlobalAveragePooling2D = "global_average_pooling2d"
	LayerDense                  = "dense"
	LayerDropout                = "dropout"
)

const (
	PaddingSame  = "same"
	PaddingValid = "valid"
)

var ErrUnknownLayer = errors.New("unknown layer kind")

type LayerConfig struct {
	Name       string  `msgpack:"name"`
	Kind       string  `msgpack:"kind"`
	Filters    int     `msgpack:"filters,omitempty"`
	Units      int     `msgpack:"units,omitempty"`
	KernelSize int     `msgpack:"kernel_size,omitempty"`
	Strides    int     `msgpack:"strides,omitempty"`
	Padding    string  `msgpack:"padding,omitempty"`
	Activation string  `msgpack:"activation,omitempty"`
	Rate       float64 `msgpack:"rate,omitempty"`
}

// WeightTable holds parameter tensors keyed by layer name, then by
// parameter name ("kernel", "bias").
type WeightTable map[string]map[string]Tensor

// Shapes inside a layer exclude the batch axis. build receives the batched
// activation and the layer parameters keyed like params.
type layer interface {
	config() LayerConfig
	outputShape() []int
	params() map[string]*Tensor
	build(x *graph.Node, params map[string]*graph.Node) *graph.Node
}

// Network is a small feed-forward model compiled to a gomlx graph on the
// pure Go backend. Parameters are fed to the graph on every call, so a
// Network may serve concurrent callers and reloaded weights take effect
// without recompiling.
type Network struct {
	inputShape []int64
	layers     []layer
	outputLen  int

	backend backends.Backend
	exec    *graph.Exec

	mu      sync.Mutex
	weights []*tensors.Tensor
}

var _ Model = (*Network)(nil)

// BuildNetwork constructs a network with zeroed parameters for inputs of
// shape (batch, height, width, channels).
func BuildNetwork(inputShape []int64, configs []LayerConfig) (*Network, error) {
	if len(inputShape) != 4 || slices.Min(inputShape) < 1 {
		return nil, fmt.Errorf("input shape must be (batch, height, width, channels), got %v", inputShape)
	}
	if len(configs) == 0 {
		return nil, errors.New("architecture has no layers")
	}

	shape := []int{int(inputShape[1]), int(inputShape[2]), int(inputShape[3])}
	seen := make(map[string]bool, len(configs))
	layers := make([]layer, 0, len(configs))

	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("layer of kind %q has no name", cfg.Kind)
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate layer name %q", cfg.Name)
		}
		seen[cfg.Name] = true

		if !validActivation(cfg.Activation) {
			return nil, fmt.Errorf("layer %q: unsupported activation %q", cfg.Name, cfg.Activation)
		}

		var (
			l   layer
			err error
		)
		switch cfg.Kind {
		case LayerConv2D:
			l, err = newConv2D(cfg, shape)
		case LayerGlobalAveragePooling2D:
			l, err = newGlobalAveragePooling(cfg, shape)
		case LayerDense:
			l, err = newDense(cfg, shape)
		case LayerDropout:
			l = &dropout{cfg: cfg, shape: slices.Clone(shape)}
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownLayer, cfg.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", cfg.Name, err)
		}

		layers = append(layers, l)
		shape = l.outputShape()
	}

	if len(shape) != 1 {
		return nil, fmt.Errorf("network output must be a vector, got shape %v", shape)
	}

	n := &Network{
		inputShape: slices.Clone(inputShape),
		layers:     layers,
		outputLen:  shape[0],
		backend:    simplego.GetBackend(),
	}

	exec, err := graph.NewExec(n.backend, n.forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create network executor: %w", err)
	}
	n.exec = exec.WithName("lesion_network")

	return n, nil
}

// forward wires the layers in order. inputs holds the image batch followed
// by every layer parameter in the order of parameterTensors.
func (n *Network) forward(inputs []*graph.Node) *graph.Node {
	x := inputs[0]
	next := 1
	for _, l := range n.layers {
		names := sortedKeys(l.params())
		params := make(map[string]*graph.Node, len(names))
		for _, name := range names {
			params[name] = inputs[next]
			next++
		}
		x = l.build(x, params)
	}

	return x
}

// parameterTensors returns the device-side copies of the parameters,
// rebuilding them after LoadWeights or Initialize.
func (n *Network) parameterTensors() []*tensors.Tensor {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.weights != nil {
		return n.weights
	}

	var weights []*tensors.Tensor
	for _, l := range n.layers {
		params := l.params()
		for _, name := range sortedKeys(params) {
			t := params[name]
			weights = append(weights, tensors.FromFlatDataAndDimensions(t.Data, dims(t.Shape)...))
		}
	}
	n.weights = weights

	return weights
}

// invalidate must be called with n.mu held.
func (n *Network) invalidate() {
	n.weights = nil
}

func dims(shape []int64) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}
	return out
}

func (n *Network) InputShape() []int64 {
	return slices.Clone(n.inputShape)
}

func (n *Network) OutputLen() int {
	return n.outputLen
}

func (n *Network) Architecture() []LayerConfig {
	configs := make([]LayerConfig, len(n.layers))
	for i, l := range n.layers {
		configs[i] = l.config()
	}

	return configs
}

func (n *Network) Predict(input []float32) ([]float32, error) {
	if want := NumElements(n.inputShape); len(input) != want {
		return nil, fmt.Errorf("%w: expected %d values for shape %v, got %d", ErrShapeMismatch, want, n.inputShape, len(input))
	}

	weights := n.parameterTensors()
	x := tensors.FromFlatDataAndDimensions(input, dims(n.inputShape)...)
	defer x.FinalizeAll()

	args := make([]any, 0, len(weights)+1)
	args = append(args, x)
	for _, w := range weights {
		args = append(args, w)
	}

	y, err := n.exec.Exec1(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run network: %w", err)
	}
	defer y.FinalizeAll()

	return tensors.CopyFlatData[float32](y)
}

func (n *Network) Close() error {
	n.exec.Finalize()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.invalidate()
	return nil
}

// WeightTable returns a copy of every parameter tensor in the network.
func (n *Network) WeightTable() WeightTable {
	table := make(WeightTable)
	for _, l := range n.layers {
		params := l.params()
		if len(params) == 0 {
			continue
		}

		entry := make(map[string]Tensor, len(params))
		for name, t := range params {
			entry[name] = t.Clone()
		}
		table[l.config().Name] = entry
	}

	return table
}

// TransplantReport lists the "layer/param" keys copied into or skipped by
// LoadWeights.
type TransplantReport struct {
	Loaded  []string
	Skipped []string
}

// LoadWeights copies tensors from table into parameters with the same layer
// name, parameter name and shape. In strict mode any missing or mismatched
// parameter is an error; otherwise it is recorded as skipped.
func (n *Network) LoadWeights(table WeightTable, strict bool) (TransplantReport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.invalidate()

	var report TransplantReport
	known := make(map[string]bool)

	for _, l := range n.layers {
		layerName := l.config().Name
		params := l.params()
		for _, paramName := range sortedKeys(params) {
			key := layerName + "/" + paramName
			known[key] = true
			dst := params[paramName]

			src, ok := table[layerName][paramName]
			switch {
			case !ok:
				if strict {
					return report, fmt.Errorf("missing weight %s", key)
				}
				report.Skipped = append(report.Skipped, key)
			case !ShapeEqual(src.Shape, dst.Shape) || src.Validate() != nil:
				if strict {
					return report, fmt.Errorf("%w: weight %s expects %v, artifact has %v", ErrShapeMismatch, key, dst.Shape, src.Shape)
				}
				report.Skipped = append(report.Skipped, key)
			default:
				copy(dst.Data, src.Data)
				report.Loaded = append(report.Loaded, key)
			}
		}
	}

	for _, layerName := range sortedKeys(table) {
		for _, paramName := range sortedKeys(table[layerName]) {
			if key := layerName + "/" + paramName; !known[key] {
				report.Skipped = append(report.Skipped, key)
			}
		}
	}

	return report, nil
}

// Initialize fills kernels with He-normal values drawn from a generator
// seeded with seed and zeroes biases.
func (n *Network) Initialize(seed uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.invalidate()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, l := range n.layers {
		params := l.params()
		for _, name := range sortedKeys(params) {
			t := params[name]
			if name != "kernel" {
				clear(t.Data)
				continue
			}

			fanIn := NumElements(t.Shape[:len(t.Shape)-1])
			std := math.Sqrt(2 / float64(fanIn))
			for i := range t.Data {
				t.Data[i] = float32(rng.NormFloat64() * std)
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type conv2d struct {
	cfg               LayerConfig
	inH, inW, inC     int
	outH, outW        int
	size, stride      int
	padTop, padBottom int
	padLeft, padRight int
	kernel, bias      Tensor
}

func newConv2D(cfg LayerConfig, shape []int) (*conv2d, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("conv2d needs a (height, width, channels) input, got %v", shape)
	}
	if cfg.Filters <= 0 || cfg.KernelSize <= 0 {
		return nil, errors.New("conv2d needs positive filters and kernel_size")
	}
	if cfg.Strides == 0 {
		cfg.Strides = 1
	}
	if cfg.Padding == "" {
		cfg.Padding = PaddingValid
	}

	c := &conv2d{
		cfg:    cfg,
		inH:    shape[0],
		inW:    shape[1],
		inC:    shape[2],
		size:   cfg.KernelSize,
		stride: cfg.Strides,
	}

	switch cfg.Padding {
	case PaddingSame:
		// Odd padding goes after the data, as in Keras and TensorFlow.
		c.outH = (c.inH + c.stride - 1) / c.stride
		c.outW = (c.inW + c.stride - 1) / c.stride
		padH := max((c.outH-1)*c.stride+c.size-c.inH, 0)
		padW := max((c.outW-1)*c.stride+c.size-c.inW, 0)
		c.padTop, c.padBottom = padH/2, padH-padH/2
		c.padLeft, c.padRight = padW/2, padW-padW/2
	case PaddingValid:
		if c.inH < c.size || c.inW < c.size {
			return nil, fmt.Errorf("kernel %d larger than input %dx%d", c.size, c.inH, c.inW)
		}
		c.outH = (c.inH-c.size)/c.stride + 1
		c.outW = (c.inW-c.size)/c.stride + 1
	default:
		return nil, fmt.Errorf("unsupported padding %q", cfg.Padding)
	}

	c.kernel = NewTensor(int64(c.size), int64(c.size), int64(c.inC), int64(cfg.Filters))
	c.bias = NewTensor(int64(cfg.Filters))
	return c, nil
}

func (c *conv2d) config() LayerConfig { return c.cfg }

func (c *conv2d) outputShape() []int { return []int{c.outH, c.outW, c.cfg.Filters} }

func (c *conv2d) params() map[string]*Tensor {
	return map[string]*Tensor{"kernel": &c.kernel, "bias": &c.bias}
}

func (c *conv2d) build(x *graph.Node, params map[string]*graph.Node) *graph.Node {
	y := graph.Convolve(x, params["kernel"]).
		Strides(c.stride).
		PaddingPerDim([][2]int{{c.padTop, c.padBottom}, {c.padLeft, c.padRight}}).
		Done()
	y = graph.Add(y, graph.Reshape(params["bias"], 1, 1, 1, c.cfg.Filters))
	return activate(y, c.cfg.Activation)
}

type globalAveragePooling struct {
	cfg LayerConfig
	ch  int
}

func newGlobalAveragePooling(cfg LayerConfig, shape []int) (*globalAveragePooling, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("global average pooling needs a (height, width, channels) input, got %v", shape)
	}

	return &globalAveragePooling{cfg: cfg, ch: shape[2]}, nil
}

func (g *globalAveragePooling) config() LayerConfig { return g.cfg }

func (g *globalAveragePooling) outputShape() []int { return []int{g.ch} }

func (g *globalAveragePooling) params() map[string]*Tensor { return nil }

func (g *globalAveragePooling) build(x *graph.Node, _ map[string]*graph.Node) *graph.Node {
	return activate(graph.ReduceMean(x, 1, 2), g.cfg.Activation)
}

type dense struct {
	cfg          LayerConfig
	in, units    int
	kernel, bias Tensor
}

func newDense(cfg LayerConfig, shape []int) (*dense, error) {
	if len(shape) != 1 {
		return nil, fmt.Errorf("dense needs a vector input, got %v", shape)
	}
	if cfg.Units <= 0 {
		return nil, errors.New("dense needs positive units")
	}

	return &dense{
		cfg:    cfg,
		in:     shape[0],
		units:  cfg.Units,
		kernel: NewTensor(int64(shape[0]), int64(cfg.Units)),
		bias:   NewTensor(int64(cfg.Units)),
	}, nil
}

func (d *dense) config() LayerConfig { return d.cfg }

func (d *dense) outputShape() []int { return []int{d.units} }

func (d *dense) params() map[string]*Tensor {
	return map[string]*Tensor{"kernel": &d.kernel, "bias": &d.bias}
}

func (d *dense) build(x *graph.Node, params map[string]*graph.Node) *graph.Node {
	y := graph.Add(graph.Dot(x, params["kernel"]), graph.Reshape(params["bias"], 1, d.units))
	return activate(y, d.cfg.Activation)
}

// dropout is the identity at inference time.
type dropout struct {
	cfg   LayerConfig
	shape []int
}

func (d *dropout) config() LayerConfig { return d.cfg }

func (d *dropout) outputShape() []int { return slices.Clone(d.shape) }

func (d *dropout) params() map[string]*Tensor { return nil }

func (d *dropout) build(x *graph.Node, _ map[string]*graph.Node) *graph.Node { return x }

func validActivation(name string) bool {
	switch name {
	case "", "linear", "relu", "sigmoid", "softmax":
		return true
	}
	return false
}

// activate applies name over the last axis.
func activate(x *graph.Node, name string) *graph.Node {
	switch name {
	case "relu":
		return graph.Max(x, graph.ZerosLike(x))
	case "sigmoid":
		return graph.Sigmoid(x)
	case "softmax":
		return graph.Softmax(x, -1)
	}
	return x
}
