package model

// BackboneLayers are the feature-extraction layers that generic
// (non-task-specific) weights may populate.
var BackboneLayers = []string{"conv1", "conv2"}

// ExpectedArchitecture is the convolutional backbone plus classification
// head the serving process was built against.
func ExpectedArchitecture(numClasses int) []LayerConfig {
	return []LayerConfig{
		{Name: "conv1", Kind: LayerConv2D, Filters: 16, KernelSize: 3, Strides: 2, Padding: PaddingSame, Activation: "relu"},
		{Name: "conv2", Kind: LayerConv2D, Filters: 32, KernelSize: 3, Strides: 2, Padding: PaddingSame, Activation: "relu"},
		{Name: "global_avg_pool", Kind: LayerGlobalAveragePooling2D},
		{Name: "fc1", Kind: LayerDense, Units: 64, Activation: "relu"},
		{Name: "dropout", Kind: LayerDropout, Rate: 0.5},
		{Name: "predictions", Kind: LayerDense, Units: numClasses, Activation: "softmax"},
	}
}

// BuildExpected builds ExpectedArchitecture with seeded initial weights.
func BuildExpected(inputShape []int64, numClasses int, seed uint64) (*Network, error) {
	net, err := BuildNetwork(inputShape, ExpectedArchitecture(numClasses))
	if err != nil {
		return nil, err
	}

	net.Initialize(seed)
	return net, nil
}

// BackboneOnly keeps the entries of table that belong to BackboneLayers.
func BackboneOnly(table WeightTable) WeightTable {
	out := make(WeightTable)
	for _, name := range BackboneLayers {
		if params, ok := table[name]; ok {
			out[name] = params
		}
	}

	return out
}
