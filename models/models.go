// Package models builds the sequential architectures used by the CLI.
package models

import (
	"fmt"
	"strings"

	"tcav_lib/nn"
	"tcav_lib/nn/layers"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

const (
	ArchCNN = "cnn"
	ArchMLP = "mlp"

	PoolMax = "max"
	PoolAvg = "avg"
)

// CIFARSplitLayer is the stage index of the Flatten layer in the default CNN,
// where the feature extractor ends and the dense head begins.
const CIFARSplitLayer = 12

// Config describes an architecture.
type Config struct {
	Name       string `yaml:"name" json:"name"`
	InputShape []int  `yaml:"input_shape" json:"input_shape"`
	Outputs    int    `yaml:"outputs" json:"outputs"`
	// Filters lists the channel count of each convolution block (cnn only).
	Filters []int `yaml:"filters,omitempty" json:"filters,omitempty"`
	// Hidden lists the widths of the dense layers before the output layer.
	Hidden  []int `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Dropout bool  `yaml:"dropout" json:"dropout"`
	// Output is the output activation: sigmoid or linear.
	Output string `yaml:"output" json:"output"`
	// Pool selects the pooling layer closing each conv block: max or avg.
	Pool string `yaml:"pool,omitempty" json:"pool,omitempty"`
	// Init names the kernel initialiser: glorot_uniform or he_normal.
	Init string `yaml:"init,omitempty" json:"init,omitempty"`
}

// DefaultCNN is the two-block CIFAR network with a 512-unit dense head and
// two sigmoid outputs.
func DefaultCNN() Config {
	return Config{
		Name:       ArchCNN,
		InputShape: []int{3, 32, 32},
		Outputs:    2,
		Filters:    []int{32, 64},
		Hidden:     []int{512},
		Dropout:    true,
		Output:     "sigmoid",
	}
}

func DefaultMLP(inputDim, outputs int) Config {
	return Config{
		Name:       ArchMLP,
		InputShape: []int{inputDim},
		Outputs:    outputs,
		Hidden:     []int{32},
		Output:     "sigmoid",
	}
}

func (c Config) Validate() error {
	switch c.Name {
	case ArchCNN:
		if len(c.InputShape) != 3 {
			return errors.Errorf("cnn input shape must be [C,H,W], got %v", c.InputShape)
		}
		if len(c.Filters) == 0 {
			return errors.New("cnn needs at least one filter block")
		}
	case ArchMLP:
		if len(c.InputShape) == 0 {
			return errors.New("mlp input shape is empty")
		}
	default:
		return errors.Errorf("unknown architecture %q (want %s or %s)", c.Name, ArchCNN, ArchMLP)
	}
	for _, d := range c.InputShape {
		if d <= 0 {
			return errors.Errorf("invalid input shape %v", c.InputShape)
		}
	}
	for _, w := range append(append([]int(nil), c.Filters...), c.Hidden...) {
		if w <= 0 {
			return errors.Errorf("layer widths must be positive, got filters %v hidden %v", c.Filters, c.Hidden)
		}
	}
	if c.Outputs <= 0 {
		return errors.New("outputs must be positive")
	}
	switch c.Pool {
	case "", PoolMax, PoolAvg:
	default:
		return errors.Errorf("unknown pooling %q (want %s or %s)", c.Pool, PoolMax, PoolAvg)
	}
	if err := layers.ValidateInit(c.Init); err != nil {
		return err
	}
	if _, err := layers.NewActivation(c.outputActivation()); err != nil {
		return err
	}
	return nil
}

func (c Config) pool() nn.Module {
	if c.Pool == PoolAvg {
		return layers.NewAvgPool2D(2)
	}
	return layers.NewMaxPool2D(2)
}

func (c Config) outputActivation() string {
	if c.Output == "" {
		return "sigmoid"
	}
	return c.Output
}

// Loss returns the training loss matching the output activation. Sigmoid
// outputs train with categorical cross-entropy over rescaled outputs, as the
// Keras CIFAR network does.
func (c Config) Loss() nn.Loss {
	if strings.EqualFold(c.outputActivation(), "sigmoid") {
		return nn.CategoricalCrossEntropy{}
	}
	return nn.SoftmaxCrossEntropy{}
}

// String is a compact description, e.g. cnn[3x32x32 f32,64 h512 ->2].
func (c Config) String() string {
	dims := make([]string, len(c.InputShape))
	for i, d := range c.InputShape {
		dims[i] = fmt.Sprint(d)
	}
	s := fmt.Sprintf("%s[%s", c.Name, strings.Join(dims, "x"))
	if len(c.Filters) > 0 {
		s += " f" + joinInts(c.Filters)
	}
	if len(c.Hidden) > 0 {
		s += " h" + joinInts(c.Hidden)
	}
	return fmt.Sprintf("%s ->%d]", s, c.Outputs)
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}

// Build constructs the architecture and initialises its weights from seed.
func Build(c Config, seed int64) (*nn.Sequential, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var (
		mods []nn.Module
		err  error
	)
	switch c.Name {
	case ArchCNN:
		mods, err = cnnStages(c)
	case ArchMLP:
		mods, err = denseStages(c, tensor.Size(c.InputShape))
	}
	if err != nil {
		return nil, err
	}
	model := nn.NewSequential(c.InputShape, mods...)
	if err := model.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "building %s", c)
	}
	init := make([]interface{}, len(mods))
	for i, m := range mods {
		init[i] = m
	}
	layers.InitAll(seed, init...)
	return model, nil
}

// cnnStages follows each block of Conv(same), ReLU, Conv(valid), ReLU,
// Pool(2) and optional Dropout(0.25) with a Flatten and the dense head.
func cnnStages(c Config) ([]nn.Module, error) {
	var mods []nn.Module
	shape := append([]int(nil), c.InputShape...)
	in := shape[0]
	for _, f := range c.Filters {
		same, err := layers.NewConv2D(in, f, 3, 3, layers.PaddingSame)
		if err != nil {
			return nil, err
		}
		valid, err := layers.NewConv2D(f, f, 3, 3, layers.PaddingValid)
		if err != nil {
			return nil, err
		}
		same.Init, valid.Init = c.Init, c.Init
		block := []nn.Module{same, layers.ReLU(), valid, layers.ReLU(), c.pool()}
		if c.Dropout {
			block = append(block, mustDropout(0.25))
		}
		for _, m := range block {
			if shape, err = m.OutputShape(shape); err != nil {
				return nil, errors.WithMessagef(err, "input %v too small for %d blocks", c.InputShape, len(c.Filters))
			}
		}
		mods = append(mods, block...)
		in = f
	}
	mods = append(mods, layers.NewFlatten())
	head, err := denseStages(c, tensor.Size(shape))
	if err != nil {
		return nil, err
	}
	return append(mods, head...), nil
}

func denseStages(c Config, in int) ([]nn.Module, error) {
	var mods []nn.Module
	for _, w := range c.Hidden {
		dense := layers.NewLinear(in, w, true)
		dense.Init = c.Init
		mods = append(mods, dense, layers.ReLU())
		if c.Dropout {
			mods = append(mods, mustDropout(0.5))
		}
		in = w
	}
	out, err := layers.NewActivation(c.outputActivation())
	if err != nil {
		return nil, err
	}
	last := layers.NewLinear(in, c.Outputs, true)
	last.Init = c.Init
	return append(mods, last, out), nil
}

func mustDropout(rate float64) *layers.Dropout {
	d, err := layers.NewDropout(rate)
	if err != nil {
		panic(err)
	}
	return d
}
