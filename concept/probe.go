// Package concept trains linear concept probes on feature-extractor
// activations and exposes the resulting concept activation vectors.
package concept

import (
	"log/slog"
	"sort"

	"tcav_lib/nn"
	"tcav_lib/nn/layers"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrLabelCardinality is returned when concept labels do not take exactly
// two distinct values.
var ErrLabelCardinality = errors.New("concept labels must take exactly two values")

// ProbeConfig holds the probe's training hyperparameters.
type ProbeConfig struct {
	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Shuffle      bool    `yaml:"shuffle" json:"shuffle"`
	Seed         int64   `yaml:"seed" json:"seed"`

	// ConceptLabel is the raw label meaning "concept present". When nil the
	// larger of the two labels is used.
	ConceptLabel *int `yaml:"concept_label,omitempty" json:"concept_label,omitempty"`
	// Concept names the CAV; informational only.
	Concept string `yaml:"concept,omitempty" json:"concept,omitempty"`
	// Layer is recorded on the CAV; informational only.
	Layer int `yaml:"-" json:"-"`
}

// DefaultProbeConfig returns batch 32, 20 epochs, learning rate 0.001.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{BatchSize: 32, Epochs: 20, LearningRate: 0.001, Shuffle: true, Seed: 1}
}

func (c ProbeConfig) Validate() error { return c.trainConfig().Validate() }

func (c ProbeConfig) trainConfig() nn.TrainConfig {
	return nn.TrainConfig{
		BatchSize:    c.BatchSize,
		Epochs:       c.Epochs,
		LearningRate: c.LearningRate,
		Shuffle:      c.Shuffle,
		Seed:         c.Seed,
	}
}

// CAV is a concept activation vector: the probe weight row of the
// "concept present" unit, one entry per feature.
type CAV struct {
	Concept  string    `json:"concept"`
	Layer    int       `json:"layer"`
	Vector   []float64 `json:"vector"`
	Accuracy float64   `json:"accuracy"`
}

// Dim returns the feature dimension.
func (c *CAV) Dim() int { return len(c.Vector) }

// Dot returns Vector·x.
func (c *CAV) Dot(x []float64) (float64, error) {
	if len(x) != len(c.Vector) {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "cav has %d dims, vector has %d", len(c.Vector), len(x))
	}
	return floats.Dot(c.Vector, x), nil
}

// Classify reports whether the feature lies on the concept side of the CAV.
func (c *CAV) Classify(feature *tensor.Tensor) (bool, error) {
	v, err := c.Dot(feature.Data)
	return v > 0, err
}

// binarize maps the two raw labels to {0,1}.
func binarize(labels []int, conceptLabel *int) ([]int, error) {
	seen := map[int]bool{}
	for _, l := range labels {
		seen[l] = true
	}
	if len(seen) != 2 {
		return nil, errors.Wrapf(ErrLabelCardinality, "got %d distinct labels", len(seen))
	}
	distinct := make([]int, 0, 2)
	for l := range seen {
		distinct = append(distinct, l)
	}
	sort.Ints(distinct)
	present := distinct[1]
	if conceptLabel != nil {
		if !seen[*conceptLabel] {
			return nil, errors.Wrapf(ErrLabelCardinality, "concept label %d not among %v", *conceptLabel, distinct)
		}
		present = *conceptLabel
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		if l == present {
			out[i] = 1
		}
	}
	return out, nil
}

// Features runs f over examples and returns the flattened activations as the
// rows of a matrix.
func Features(f *nn.Sequential, examples []*tensor.Tensor) (*mat.Dense, error) {
	if len(examples) == 0 {
		return nil, errors.Wrap(tensor.ErrShapeMismatch, "no examples")
	}
	acts, err := f.Predict(examples)
	if err != nil {
		return nil, err
	}
	d := len(acts[0].Data)
	feats := mat.NewDense(len(acts), d, nil)
	for i, a := range acts {
		if len(a.Data) != d {
			return nil, errors.Wrapf(tensor.ErrShapeMismatch, "example %d has %d features, want %d", i, len(a.Data), d)
		}
		feats.SetRow(i, a.Data)
	}
	return feats, nil
}

// Train fits a bias-free sigmoid probe with two outputs on f's activations
// and returns the weight row of the "concept present" output as the CAV.
func Train(f *nn.Sequential, examples []*tensor.Tensor, labels []int, cfg ProbeConfig) (*CAV, error) {
	if len(examples) != len(labels) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%d concept examples for %d labels", len(examples), len(labels))
	}
	bin, err := binarize(labels, cfg.ConceptLabel)
	if err != nil {
		return nil, err
	}
	feats, err := Features(f, examples)
	if err != nil {
		return nil, errors.WithMessage(err, "concept features")
	}
	return TrainOnFeatures(feats, bin, cfg)
}

// TrainOnFeatures trains the probe on precomputed feature rows with labels
// already in {0,1}.
func TrainOnFeatures(feats *mat.Dense, labels []int, cfg ProbeConfig) (*CAV, error) {
	n, d := feats.Dims()
	if n != len(labels) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%d feature rows for %d labels", n, len(labels))
	}
	var seen [2]bool
	for i, l := range labels {
		if l != 0 && l != 1 {
			return nil, errors.Wrapf(ErrLabelCardinality, "label %d at row %d is not 0 or 1", l, i)
		}
		seen[l] = true
	}
	if !seen[0] || !seen[1] {
		return nil, errors.Wrap(ErrLabelCardinality, "labels must contain both 0 and 1")
	}
	xs := make([]*tensor.Tensor, n)
	ys := make([]*tensor.Tensor, n)
	for i := 0; i < n; i++ {
		xs[i] = tensor.NewWithData(feats.RawRowView(i))
		ys[i] = tensor.New(2)
		ys[i].Data[labels[i]] = 1
	}

	dense := layers.NewLinear(d, 2, false)
	probe := nn.NewSequential([]int{d}, dense, layers.Sigmoid())
	history, err := nn.Fit(probe, xs, ys, nn.BinaryCrossEntropy{}, nn.NewAdam(cfg.LearningRate), cfg.trainConfig())
	if err != nil {
		return nil, errors.WithMessage(err, "training concept probe")
	}

	cav := &CAV{
		Concept: cfg.Concept,
		Layer:   cfg.Layer,
		Vector:  append([]float64(nil), dense.W.Data[d:2*d]...),
	}
	if cav.Accuracy, err = Accuracy(probe, xs, labels); err != nil {
		return nil, err
	}
	last := history[len(history)-1]
	slog.Debug("trained concept probe", "concept", cfg.Concept, "examples", n, "features", d,
		"loss", last.Loss, "accuracy", cav.Accuracy)
	return cav, nil
}

// Accuracy is the fraction of xs whose argmax prediction equals labels[i].
func Accuracy(model *nn.Sequential, xs []*tensor.Tensor, labels []int) (float64, error) {
	if len(xs) == 0 || len(xs) != len(labels) {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "%d examples for %d labels", len(xs), len(labels))
	}
	preds, err := model.Predict(xs)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i, p := range preds {
		if p.Argmax() == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(xs)), nil
}
