package utils

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tcav_lib/concept"
	"tcav_lib/core/ckkswrapper"
	"tcav_lib/dataset"
	"tcav_lib/models"
	"tcav_lib/nn"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	dirMode  = 0700
	fileMode = 0600
)

// Gradient targets accepted in Config.Target.
const (
	TargetSum   = "sum"
	TargetMean  = "mean"
	TargetLabel = "label"
)

// LabelPair names a negative and a positive label. The positive one maps
// to 1 (class) or means "concept present" (concept).
type LabelPair struct {
	Negative string `yaml:"negative"`
	Positive string `yaml:"positive"`
}

// Config holds a TCAV run: the model to train, where to split it, which
// CIFAR-10 classes to score and which CIFAR-100 classes form the concept.
type Config struct {
	Model      models.Config `yaml:"model"`
	SplitLayer int           `yaml:"split_layer"`
	DataDir    string        `yaml:"data_dir"`
	// Classes are CIFAR-10 label names.
	Classes LabelPair `yaml:"classes"`
	// Concept are CIFAR-100 fine label names.
	Concept LabelPair `yaml:"concept"`
	// PerLabel caps the examples kept per label; 0 keeps all.
	PerLabel int `yaml:"per_label"`

	Train nn.TrainConfig      `yaml:"train"`
	Probe concept.ProbeConfig `yaml:"probe"`

	// Target is sum, mean or label.
	Target    string `yaml:"target"`
	Workers   int    `yaml:"workers"`
	Encrypted bool   `yaml:"encrypted"`
	LogN      int    `yaml:"log_n"`
	Seed      int64  `yaml:"seed"`
}

// DefaultConfig scores airplane vs ship against a sea vs cloud concept at the
// flatten layer of the CIFAR CNN.
func DefaultConfig() *Config {
	train := nn.DefaultTrainConfig()
	train.Epochs = 5
	return &Config{
		Model:      models.DefaultCNN(),
		SplitLayer: models.CIFARSplitLayer,
		DataDir:    "data",
		Classes:    LabelPair{Negative: "airplane", Positive: "ship"},
		Concept:    LabelPair{Negative: "cloud", Positive: "sea"},
		Train:      train,
		Probe:      concept.DefaultProbeConfig(),
		Target:     TargetSum,
		LogN:       ckkswrapper.DefaultLogN,
		Seed:       1,
	}
}

// ValidateConfig validates a run configuration.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config required")
	}
	if err := c.Model.Validate(); err != nil {
		return errors.WithMessage(err, "model")
	}
	if c.SplitLayer < 0 {
		return errors.New("split layer must not be negative")
	}
	if _, _, err := c.ClassLabels(); err != nil {
		return err
	}
	if _, _, err := c.ConceptLabels(); err != nil {
		return err
	}
	if c.PerLabel < 0 {
		return errors.New("per_label must not be negative")
	}
	if err := c.Train.Validate(); err != nil {
		return errors.WithMessage(err, "train")
	}
	if err := c.Probe.Validate(); err != nil {
		return errors.WithMessage(err, "probe")
	}
	if _, _, err := ParseTarget(c.Target); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if c.Encrypted && (c.LogN < 10 || c.LogN > 16) {
		return errors.Errorf("log_n must be between 10 and 16, got %d", c.LogN)
	}
	return nil
}

func resolvePair(kind string, names []string, p LabelPair) (neg, pos int, err error) {
	neg = dataset.LabelIndex(names, p.Negative)
	pos = dataset.LabelIndex(names, p.Positive)
	if neg < 0 {
		return 0, 0, errors.Errorf("unknown %s label %q", kind, p.Negative)
	}
	if pos < 0 {
		return 0, 0, errors.Errorf("unknown %s label %q", kind, p.Positive)
	}
	if neg == pos {
		return 0, 0, errors.Errorf("%s labels must differ, both are %q", kind, p.Positive)
	}
	return neg, pos, nil
}

// ClassLabels returns the raw CIFAR-10 label values of Classes.
func (c *Config) ClassLabels() (neg, pos int, err error) {
	return resolvePair("CIFAR-10", dataset.C10Labels, c.Classes)
}

// ConceptLabels returns the raw CIFAR-100 fine label values of Concept.
func (c *Config) ConceptLabels() (neg, pos int, err error) {
	return resolvePair("CIFAR-100", dataset.C100FineLabels, c.Concept)
}

// ParseTarget maps a target name to an nn.Target. label reports true when
// the example's class label selects the output unit.
func ParseTarget(name string) (target nn.Target, label bool, err error) {
	switch strings.ToLower(name) {
	case "", TargetSum:
		return nn.SumOutputs, false, nil
	case TargetMean:
		return nn.MeanOutputs, false, nil
	case TargetLabel:
		return nn.SumOutputs, true, nil
	}
	return nil, false, errors.Errorf("unknown gradient target %q (want %s, %s or %s)", name, TargetSum, TargetMean, TargetLabel)
}

// ParseArchitecture parses a space or comma separated list of layer widths.
func ParseArchitecture(archStr string) ([]int, error) {
	archParts := strings.FieldsFunc(archStr, func(r rune) bool { return r == ' ' || r == ',' })
	arch := make([]int, len(archParts))
	for i, s := range archParts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid layer width %q", s)
		}
		if n <= 0 {
			return nil, errors.Errorf("layer width must be positive, got %d", n)
		}
		arch[i] = n
	}
	return arch, nil
}

// LoadConfig reads a YAML config. Fields missing from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}
	if err := ValidateConfig(c); err != nil {
		return nil, errors.WithMessagef(err, "invalid config %s", path)
	}
	return c, nil
}

// SaveConfig writes c as YAML, creating the parent directory if needed.
func SaveConfig(path string, c *Config) error {
	if path == "" {
		return errors.New("config path required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return errors.Wrapf(err, "failed to create dir: %s", dir)
		}
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}
	return nil
}
