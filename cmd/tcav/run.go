package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"tcav_lib/concept"
	"tcav_lib/dataset"
	"tcav_lib/utils"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var (
	modelFlag = &cli.StringFlag{
		Name:    "model",
		Aliases: []string{"m"},
		Usage:   "Path to the trained model weights",
		Value:   "model.json",
	}

	layerFlag = &cli.IntFlag{
		Name:    "layer",
		Aliases: []string{"l"},
		Usage:   "Stage index where the model is split (overrides config split_layer)",
	}
)

// output is where command results are encoded; tests replace it.
var output io.Writer = os.Stdout

// loadRunConfig reads --config (or the defaults) and applies the global
// flag overrides.
func loadRunConfig(cmd *cli.Command) (*utils.Config, error) {
	cfg := utils.DefaultConfig()
	if path := cmd.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = utils.LoadConfig(path); err != nil {
			return nil, err
		}
		slog.Debug("config loaded", "path", path)
	}
	if d := cmd.String(dataFlag.Name); d != "" {
		cfg.DataDir = d
	}
	if cmd.IsSet(workersFlag.Name) {
		cfg.Workers = int(cmd.Int(workersFlag.Name))
	}
	if cmd.IsSet(layerFlag.Name) {
		cfg.SplitLayer = int(cmd.Int(layerFlag.Name))
	}
	if err := utils.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadClasses returns the configured CIFAR-10 classes with the negative class
// relabelled 0 and the positive class 1.
func loadClasses(cfg *utils.Config, split dataset.Split) (*dataset.Dataset, error) {
	neg, pos, err := cfg.ClassLabels()
	if err != nil {
		return nil, err
	}
	ds, err := dataset.LoadCIFAR10(cfg.DataDir, split, neg, pos)
	if err != nil {
		return nil, err
	}
	ds = ds.Remap(map[int]int{neg: 0, pos: 1})
	if cfg.PerLabel > 0 {
		ds = ds.Shuffle(cfg.Seed).TakePerLabel(cfg.PerLabel)
	}
	slog.Info("classes loaded", "split", split, "negative", cfg.Classes.Negative,
		"positive", cfg.Classes.Positive, "examples", ds.Len())
	return ds, nil
}

// loadConcept returns the CIFAR-100 training images of the two concept
// labels, keeping their raw label values.
func loadConcept(cfg *utils.Config) (*dataset.Dataset, error) {
	neg, pos, err := cfg.ConceptLabels()
	if err != nil {
		return nil, err
	}
	ds, err := dataset.LoadCIFAR100(cfg.DataDir, dataset.Train, neg, pos)
	if err != nil {
		return nil, err
	}
	if cfg.PerLabel > 0 {
		ds = ds.Shuffle(cfg.Seed).TakePerLabel(cfg.PerLabel)
	}
	slog.Info("concept loaded", "concept", cfg.Concept.Positive, "other", cfg.Concept.Negative, "examples", ds.Len())
	return ds, nil
}

// probeConfig fills the probe settings that follow from the run config.
func probeConfig(cfg *utils.Config) (probeCfg concept.ProbeConfig, err error) {
	_, pos, err := cfg.ConceptLabels()
	if err != nil {
		return probeCfg, err
	}
	probeCfg = cfg.Probe
	probeCfg.ConceptLabel = &pos
	probeCfg.Concept = cfg.Concept.Positive
	probeCfg.Layer = cfg.SplitLayer
	return probeCfg, nil
}

// progress returns a callback that drives a progress bar on stderr, or nil
// when --quiet is set.
func progress(cmd *cli.Command, desc string) func(done, total int) {
	if cmd.Bool(quietFlag.Name) {
		return nil
	}
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(desc),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionUseANSICodes(true),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetTheme(progressbar.ThemeUnicode),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	}
}

func encode(cmd *cli.Command, v any) error {
	switch cmd.String(formatFlag.Name) {
	case formatYAML, "yml":
		e := yaml.NewEncoder(output)
		defer e.Close()
		return errors.Wrap(e.Encode(v), "encoding yaml")
	default:
		e := json.NewEncoder(output)
		e.SetIndent("", "  ")
		return errors.Wrap(e.Encode(v), "encoding json")
	}
}
