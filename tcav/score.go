// Package tcav scores how strongly a model's class predictions depend on a
// human-named concept, using concept activation vectors.
package tcav

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"tcav_lib/concept"
	"tcav_lib/core/ckkswrapper"
	"tcav_lib/dataset"
	"tcav_lib/nn"
	"tcav_lib/split"
	"tcav_lib/utils"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Options tune a scoring run. The zero value scores every label present in
// the training set with the summed head output on GOMAXPROCS workers.
type Options struct {
	// Classes restricts scoring to these labels; each must have examples.
	Classes []int
	// Workers bounds concurrent sensitivity evaluations.
	Workers int
	// Target reduces the head output before differentiation; nil means sum.
	Target nn.Target
	// LabelTarget differentiates the output unit named by each example's
	// label instead of Target.
	LabelTarget bool
	// Probe configures concept probe training in Score and ScoreMany.
	Probe concept.ProbeConfig
	// HE, when set, keeps the CAV encrypted while scoring.
	HE *ckkswrapper.HeContext
	// Progress is called after each example with the number done so far.
	// Calls are serialised.
	Progress func(done, total int)
}

// DefaultOptions uses the default probe hyperparameters.
func DefaultOptions() Options {
	return Options{Probe: concept.DefaultProbeConfig()}
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Result holds per-label TCAV scores and the CAV they were computed with.
type Result struct {
	Layer  int             `json:"layer" yaml:"layer"`
	Scores map[int]float64 `json:"scores" yaml:"scores"`
	// Counts is the number of examples with positive sensitivity per label.
	Counts map[int]int `json:"positive" yaml:"positive"`
	// Sizes is the number of examples scored per label.
	Sizes  map[int]int       `json:"sizes" yaml:"sizes"`
	CAV    *concept.CAV      `json:"cav" yaml:"-"`
	Timing utils.TimingStats `json:"timing" yaml:"timing"`
}

// Classes returns the scored labels in ascending order.
func (r *Result) Classes() []int {
	out := make([]int, 0, len(r.Scores))
	for l := range r.Scores {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// classIndices groups training example indices by label, restricted to
// classes when given. Every scored label must have at least one example.
func classIndices(train *dataset.Dataset, classes []int) (map[int][]int, error) {
	if train == nil || train.Len() == 0 {
		return nil, errors.Wrap(ErrEmptyClassSubset, "no training examples")
	}
	if err := train.Validate(); err != nil {
		return nil, err
	}
	byLabel := map[int][]int{}
	for i, l := range train.Labels {
		byLabel[l] = append(byLabel[l], i)
	}
	if len(classes) == 0 {
		return byLabel, nil
	}
	out := make(map[int][]int, len(classes))
	for _, c := range classes {
		if len(byLabel[c]) == 0 {
			return nil, errors.Wrapf(ErrEmptyClassSubset, "class %d", c)
		}
		out[c] = byLabel[c]
	}
	return out, nil
}

// checkInputs verifies every example to be scored matches f's input shape.
func checkInputs(f *nn.Sequential, train *dataset.Dataset, classes map[int][]int) error {
	for _, idx := range classes {
		for _, i := range idx {
			if err := f.CheckInput(train.Examples[i]); err != nil {
				return errors.WithMessagef(err, "example %d (label %d)", i, train.Labels[i])
			}
		}
	}
	return nil
}

// Score splits model after stage layerIndex, trains a CAV on the concept
// set and returns, for each class, the fraction of its training examples
// whose sensitivity to the concept is strictly positive.
func Score(train *dataset.Dataset, model *nn.Sequential, layerIndex int, concepts *dataset.Dataset, opts Options) (*Result, error) {
	results, err := scoreConcepts(train, model, layerIndex, []*dataset.Dataset{concepts}, []string{opts.Probe.Concept}, opts)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// ScoreMany scores several concepts against one split of model, reusing the
// feature extractor and head. Results are keyed by concept name.
func ScoreMany(train *dataset.Dataset, model *nn.Sequential, layerIndex int, concepts map[string]*dataset.Dataset, opts Options) (map[string]*Result, error) {
	names := make([]string, 0, len(concepts))
	for name := range concepts {
		names = append(names, name)
	}
	sort.Strings(names)
	sets := make([]*dataset.Dataset, len(names))
	for i, name := range names {
		sets[i] = concepts[name]
	}
	results, err := scoreConcepts(train, model, layerIndex, sets, names, opts)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Result, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out, nil
}

func scoreConcepts(train *dataset.Dataset, model *nn.Sequential, layerIndex int, sets []*dataset.Dataset, names []string, opts Options) ([]*Result, error) {
	start := time.Now()
	f, h, err := split.Split(model, layerIndex)
	if err != nil {
		return nil, err
	}
	splitTime := time.Since(start)
	classes, err := classIndices(train, opts.Classes)
	if err != nil {
		return nil, err
	}
	if err := checkInputs(f, train, classes); err != nil {
		return nil, err
	}

	results := make([]*Result, len(sets))
	for i, concepts := range sets {
		conceptStart := time.Now()
		if concepts == nil {
			return nil, errors.Wrapf(ErrLabelCardinality, "concept %q has no examples", names[i])
		}
		cfg := opts.Probe
		if cfg.BatchSize == 0 && cfg.Epochs == 0 && cfg.LearningRate == 0 {
			cfg = concept.DefaultProbeConfig()
			cfg.ConceptLabel = opts.Probe.ConceptLabel
		}
		cfg.Concept = names[i]
		cfg.Layer = layerIndex
		cav, err := concept.Train(f, concepts.Examples, concepts.Labels, cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "concept %q", names[i])
		}
		probeTime := time.Since(conceptStart)

		res, err := ScoreWithCAV(f, h, cav, train, opts)
		if err != nil {
			return nil, errors.WithMessagef(err, "concept %q", names[i])
		}
		res.Layer = layerIndex
		res.Timing.SplitTime = splitTime
		res.Timing.ProbeTime = probeTime
		res.Timing.TotalTime = time.Since(conceptStart) + splitTime
		results[i] = res
	}
	return results, nil
}

// ScoreWithCAV scores train against an existing CAV on an already split model.
func ScoreWithCAV(f, h *nn.Sequential, cav *concept.CAV, train *dataset.Dataset, opts Options) (*Result, error) {
	if cav == nil || cav.Dim() == 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "empty cav")
	}
	classes, err := classIndices(train, opts.Classes)
	if err != nil {
		return nil, err
	}
	if err := checkInputs(f, train, classes); err != nil {
		return nil, err
	}
	res := &Result{
		Layer:  cav.Layer,
		Scores: map[int]float64{},
		Counts: map[int]int{},
		Sizes:  map[int]int{},
		CAV:    cav,
	}

	var proj Projector = NewPlainProjector(cav)
	if opts.HE != nil {
		encStart := time.Now()
		if proj, err = NewEncryptedProjector(opts.HE, cav); err != nil {
			return nil, err
		}
		res.Timing.EncryptionTime = time.Since(encStart)
	}
	eval := NewEvaluator(f, h, proj)
	if opts.Target != nil {
		eval.Target = opts.Target
	}
	if err := eval.Check(); err != nil {
		return nil, err
	}

	var indices []int
	for _, idx := range classes {
		indices = append(indices, idx...)
	}
	positive := make([]bool, len(train.Labels))

	scoreStart := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(opts.workers())
	var (
		mu   sync.Mutex
		done int
	)
	for _, idx := range indices {
		idx := idx
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			target := eval.Target
			if opts.LabelTarget {
				target = nn.OutputIndex(train.Labels[idx])
			}
			s, err := eval.SensitivityFor(train.Examples[idx], target)
			if err != nil {
				return errors.WithMessagef(err, "example %d (label %d)", idx, train.Labels[idx])
			}
			positive[idx] = s > 0
			if opts.Progress != nil {
				mu.Lock()
				done++
				opts.Progress(done, len(indices))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for label, idx := range classes {
		count := 0
		for _, i := range idx {
			if positive[i] {
				count++
			}
		}
		res.Counts[label] = count
		res.Sizes[label] = len(idx)
		res.Scores[label] = float64(count) / float64(len(idx))
	}
	res.Timing.ScoringTime = time.Since(scoreStart)
	res.Timing.Examples = len(indices)
	res.Timing.TotalTime = res.Timing.EncryptionTime + res.Timing.ScoringTime
	slog.Debug("tcav scores", "concept", cav.Concept, "layer", cav.Layer, "scores", res.Scores, "examples", len(indices), "time", res.Timing.ScoringTime)
	return res, nil
}
