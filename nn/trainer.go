package nn

import (
	"log/slog"
	"math/rand"
	"time"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// TrainConfig holds the hyperparameters of a supervised training run.
type TrainConfig struct {
	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Shuffle      bool    `yaml:"shuffle" json:"shuffle"`
	Seed         int64   `yaml:"seed" json:"seed"`

	// Progress, when set, is called after every batch with the number of
	// examples processed so far across all epochs.
	Progress func(done, total int) `yaml:"-" json:"-"`
}

// DefaultTrainConfig mirrors the concept-probe defaults: batch 32, 20 epochs,
// learning rate 0.001, shuffled.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{BatchSize: 32, Epochs: 20, LearningRate: 0.001, Shuffle: true, Seed: 1}
}

// Validate rejects non-positive sizes and rates.
func (c TrainConfig) Validate() error {
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if c.Epochs <= 0 {
		return errors.New("epochs must be positive")
	}
	if c.LearningRate <= 0 {
		return errors.New("learning rate must be positive")
	}
	return nil
}

// EpochStats summarises one pass over the training data.
type EpochStats struct {
	Epoch    int           `json:"epoch" yaml:"epoch"`
	Loss     float64       `json:"loss" yaml:"loss"`
	Accuracy float64       `json:"accuracy" yaml:"accuracy"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Fit trains model in place with mini-batch gradient descent. targets are
// one-hot (or probability) tensors matching the model's output. Gradients are
// averaged over each mini-batch before opt.Step.
func Fit(model *Sequential, xs, targets []*tensor.Tensor, loss Loss, opt Optimizer, cfg TrainConfig) ([]EpochStats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(xs) != len(targets) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%d examples for %d targets", len(xs), len(targets))
	}
	if len(xs) == 0 {
		return nil, errors.New("no training examples")
	}
	if opt == nil {
		opt = NewAdam(cfg.LearningRate)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	params := model.Params()

	history := make([]EpochStats, 0, cfg.Epochs)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		start := time.Now()
		order := make([]int, len(xs))
		for i := range order {
			order[i] = i
		}
		if cfg.Shuffle {
			order = rng.Perm(len(xs))
		}

		epochLoss, correct := 0.0, 0
		for b := 0; b < len(order); b += cfg.BatchSize {
			end := b + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			sums := zerosLike(params)
			for _, idx := range order[b:end] {
				out, grads, err := step(model, xs[idx], targets[idx], loss, rng)
				if err != nil {
					return history, errors.WithMessagef(err, "epoch %d, example %d", epoch+1, idx)
				}
				l, err := loss.Loss(out, targets[idx])
				if err != nil {
					return history, err
				}
				epochLoss += l
				if out.Argmax() == targets[idx].Argmax() {
					correct++
				}
				for i, g := range grads {
					if err := tensor.AddInPlace(sums[i], g); err != nil {
						return history, err
					}
				}
			}
			n := float64(end - b)
			for i, s := range sums {
				sums[i] = tensor.Scale(1/n, s)
			}
			if err := opt.Step(params, sums); err != nil {
				return history, err
			}
			if cfg.Progress != nil {
				cfg.Progress(epoch*len(xs)+end, cfg.Epochs*len(xs))
			}
		}

		stats := EpochStats{
			Epoch:    epoch + 1,
			Loss:     epochLoss / float64(len(xs)),
			Accuracy: float64(correct) / float64(len(xs)),
			Duration: time.Since(start),
		}
		history = append(history, stats)
		slog.Debug("epoch done", "epoch", stats.Epoch, "loss", stats.Loss, "accuracy", stats.Accuracy, "time", stats.Duration)
	}
	return history, nil
}

// step runs one training-mode forward/backward pass for a single example.
func step(model *Sequential, x, target *tensor.Tensor, loss Loss, rng Rand) (*tensor.Tensor, []*tensor.Tensor, error) {
	acts := make([]*tensor.Tensor, 0, len(model.Layers)+1)
	masks := make([]*tensor.Tensor, len(model.Layers))
	acts = append(acts, x)
	out := x
	for i, layer := range model.Layers {
		var err error
		out, err = layer.Forward(out)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "stage %d (%s)", i, layer.Tag())
		}
		if s, ok := layer.(Stochastic); ok {
			masks[i] = s.Mask(out.Shape, rng)
			if out, err = tensor.Mul(out, masks[i]); err != nil {
				return nil, nil, err
			}
		}
		acts = append(acts, out)
	}

	g, err := loss.Backward(out, target)
	if err != nil {
		return nil, nil, err
	}
	perLayer := make([][]*tensor.Tensor, len(model.Layers))
	for i := len(model.Layers) - 1; i >= 0; i-- {
		if masks[i] != nil {
			if g, err = tensor.Mul(g, masks[i]); err != nil {
				return nil, nil, err
			}
		}
		g, perLayer[i], err = model.Layers[i].Backward(acts[i], g)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "backward stage %d (%s)", i, model.Layers[i].Tag())
		}
	}
	var grads []*tensor.Tensor
	for _, lg := range perLayer {
		grads = append(grads, lg...)
	}
	return out, grads, nil
}

func zerosLike(ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = tensor.New(t.Shape...)
	}
	return out
}
