package main

import (
	"context"
	"log/slog"
	"time"

	"tcav_lib/concept"
	"tcav_lib/dataset"
	"tcav_lib/models"
	"tcav_lib/nn"
	"tcav_lib/utils"

	"github.com/urfave/cli/v3"
)

var (
	modelOutFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Where to write the trained weights",
		Value:   "model.json",
	}

	trainCmd = &cli.Command{
		Name:   "train",
		Usage:  "Train the classifier on the configured CIFAR-10 classes",
		Action: cmdTrain,
		Flags: []cli.Flag{
			modelOutFlag,
		},
	}
)

type trainReport struct {
	Model        string          `json:"model" yaml:"model"`
	Path         string          `json:"path" yaml:"path"`
	Examples     int             `json:"examples" yaml:"examples"`
	History      []nn.EpochStats `json:"history" yaml:"history"`
	TestAccuracy *float64        `json:"test_accuracy,omitempty" yaml:"test_accuracy,omitempty"`
	Duration     time.Duration   `json:"duration" yaml:"duration"`
}

func cmdTrain(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	start := time.Now()

	train, err := loadClasses(cfg, dataset.Train)
	if err != nil {
		return err
	}
	targets, err := train.OneHot(cfg.Model.Outputs)
	if err != nil {
		return err
	}
	model, err := models.Build(cfg.Model, cfg.Seed)
	if err != nil {
		return err
	}
	slog.Info("training", "model", cfg.Model.String(), "stages", model.Len(), "epochs", cfg.Train.Epochs)

	tc := cfg.Train
	tc.Progress = progress(cmd, "training")
	history, err := nn.Fit(model, train.Examples, targets, cfg.Model.Loss(), nil, tc)
	if err != nil {
		return err
	}

	report := trainReport{
		Model:    cfg.Model.String(),
		Path:     cmd.String(modelOutFlag.Name),
		Examples: train.Len(),
		History:  history,
	}
	if test, err := loadClasses(cfg, dataset.Test); err != nil {
		slog.Warn("skipping evaluation", "error", err)
	} else {
		acc, err := concept.Accuracy(model, test.Examples, test.Labels)
		if err != nil {
			return err
		}
		report.TestAccuracy = &acc
	}

	if err := utils.SaveModel(report.Path, cfg.Model, model); err != nil {
		return err
	}
	report.Duration = time.Since(start)
	slog.Info("model saved", "path", report.Path, "time", report.Duration)
	return encode(cmd, report)
}
