package main

import (
	"context"
	"log/slog"
	"time"

	"tcav_lib/concept"
	"tcav_lib/core/ckkswrapper"
	"tcav_lib/dataset"
	"tcav_lib/split"
	"tcav_lib/tcav"
	"tcav_lib/utils"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

var (
	cavFlag = &cli.StringFlag{
		Name:  "cav",
		Usage: "Score with a saved CAV instead of training one (its layer is used unless --layer is set)",
	}

	splitFlag = &cli.StringFlag{
		Name:  "split",
		Usage: "CIFAR-10 split to score [train, test]",
		Value: string(dataset.Train),
	}

	encryptedFlag = &cli.BoolFlag{
		Name:  "encrypted",
		Usage: "Keep the CAV CKKS-encrypted while scoring (overrides config)",
	}

	scoreCmd = &cli.Command{
		Name:   "score",
		Usage:  "Compute per-class TCAV scores for the configured concept",
		Action: cmdScore,
		Flags: []cli.Flag{
			modelFlag,
			layerFlag,
			cavFlag,
			splitFlag,
			encryptedFlag,
		},
	}
)

type classScore struct {
	Class    string  `json:"class" yaml:"class"`
	Label    int     `json:"label" yaml:"label"`
	Score    float64 `json:"score" yaml:"score"`
	Positive int     `json:"positive" yaml:"positive"`
	Examples int     `json:"examples" yaml:"examples"`
}

type scoreReport struct {
	Concept     string            `json:"concept" yaml:"concept"`
	Layer       int               `json:"layer" yaml:"layer"`
	Target      string            `json:"target" yaml:"target"`
	Encrypted   bool              `json:"encrypted" yaml:"encrypted"`
	CAVAccuracy float64           `json:"cav_accuracy" yaml:"cav_accuracy"`
	Scores      []classScore      `json:"scores" yaml:"scores"`
	Timing      utils.TimingStats `json:"timing" yaml:"timing"`
	// HEOps counts homomorphic operations when the CAV was encrypted.
	HEOps *ckkswrapper.OpCounts `json:"he_ops,omitempty" yaml:"he_ops,omitempty"`
}

func newScoreReport(cfg *utils.Config, opts tcav.Options, res *tcav.Result) scoreReport {
	names := []string{cfg.Classes.Negative, cfg.Classes.Positive}
	target := cfg.Target
	if target == "" {
		target = utils.TargetSum
	}
	r := scoreReport{
		Concept:     res.CAV.Concept,
		Layer:       res.Layer,
		Target:      target,
		Encrypted:   opts.HE != nil,
		CAVAccuracy: res.CAV.Accuracy,
		Timing:      res.Timing,
	}
	if opts.HE != nil {
		ops := opts.HE.Counts()
		r.HEOps = &ops
	}
	for _, label := range res.Classes() {
		cs := classScore{
			Label:    label,
			Score:    res.Scores[label],
			Positive: res.Counts[label],
			Examples: res.Sizes[label],
		}
		if label >= 0 && label < len(names) {
			cs.Class = names[label]
		}
		r.Scores = append(r.Scores, cs)
	}
	return r
}

func cmdScore(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet(encryptedFlag.Name) {
		cfg.Encrypted = cmd.Bool(encryptedFlag.Name)
	}
	start := time.Now()
	var stats utils.TimingStats

	model, _, err := utils.LoadModel(cmd.String(modelFlag.Name))
	if err != nil {
		return err
	}
	splitName := dataset.Split(cmd.String(splitFlag.Name))
	if splitName != dataset.Train && splitName != dataset.Test {
		return errors.Errorf("unknown split %q", splitName)
	}
	train, err := loadClasses(cfg, splitName)
	if err != nil {
		return err
	}

	opts := tcav.DefaultOptions()
	opts.Workers = cfg.Workers
	if opts.Target, opts.LabelTarget, err = utils.ParseTarget(cfg.Target); err != nil {
		return err
	}
	if opts.Probe, err = probeConfig(cfg); err != nil {
		return err
	}
	opts.Progress = progress(cmd, "scoring")

	var cav *concept.CAV
	if path := cmd.String(cavFlag.Name); path != "" {
		if cav, err = utils.LoadCAV(path); err != nil {
			return err
		}
		if !cmd.IsSet(layerFlag.Name) {
			cfg.SplitLayer = cav.Layer
		}
	}
	stats.DataLoadingTime = time.Since(start)

	if cfg.Encrypted {
		heStart := time.Now()
		if opts.HE, err = ckkswrapper.NewHeContextWithLogN(cfg.LogN); err != nil {
			return err
		}
		stats.HEInitTime = time.Since(heStart)
		slog.Info("ckks context ready", "log_n", cfg.LogN, "slots", opts.HE.Slots(), "time", stats.HEInitTime)
	}

	var res *tcav.Result
	if cav != nil {
		f, h, err := split.Split(model, cfg.SplitLayer)
		if err != nil {
			return err
		}
		if res, err = tcav.ScoreWithCAV(f, h, cav, train, opts); err != nil {
			return err
		}
		res.Layer = cfg.SplitLayer
	} else {
		conceptStart := time.Now()
		concepts, err := loadConcept(cfg)
		if err != nil {
			return err
		}
		stats.DataLoadingTime += time.Since(conceptStart)
		if res, err = tcav.Score(train, model, cfg.SplitLayer, concepts, opts); err != nil {
			return err
		}
	}

	stats.Add(res.Timing)
	stats.TotalTime = time.Since(start)
	res.Timing = stats
	utils.PrintTimingStats(&res.Timing)
	return encode(cmd, newScoreReport(cfg, opts, res))
}
