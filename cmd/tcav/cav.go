package main

import (
	"context"
	"log/slog"

	"tcav_lib/concept"
	"tcav_lib/split"
	"tcav_lib/utils"

	"github.com/urfave/cli/v3"
)

var (
	cavOutFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Where to write the CAV",
		Value:   "cav.json",
	}

	cavCmd = &cli.Command{
		Name:   "cav",
		Usage:  "Learn a concept activation vector at the split layer",
		Action: cmdCAV,
		Flags: []cli.Flag{
			modelFlag,
			layerFlag,
			cavOutFlag,
		},
	}
)

type cavReport struct {
	Concept  string  `json:"concept" yaml:"concept"`
	Other    string  `json:"other" yaml:"other"`
	Layer    int     `json:"layer" yaml:"layer"`
	Stage    string  `json:"stage" yaml:"stage"`
	Dim      int     `json:"dim" yaml:"dim"`
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
	Examples int     `json:"examples" yaml:"examples"`
	Path     string  `json:"path" yaml:"path"`
}

func cmdCAV(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	model, _, err := utils.LoadModel(cmd.String(modelFlag.Name))
	if err != nil {
		return err
	}
	f, _, err := split.Split(model, cfg.SplitLayer)
	if err != nil {
		return err
	}
	concepts, err := loadConcept(cfg)
	if err != nil {
		return err
	}
	probeCfg, err := probeConfig(cfg)
	if err != nil {
		return err
	}
	cav, err := concept.Train(f, concepts.Examples, concepts.Labels, probeCfg)
	if err != nil {
		return err
	}

	path := cmd.String(cavOutFlag.Name)
	if err := utils.SaveCAV(path, cav); err != nil {
		return err
	}
	slog.Info("cav saved", "path", path, "concept", cav.Concept, "accuracy", cav.Accuracy)
	return encode(cmd, cavReport{
		Concept:  cav.Concept,
		Other:    cfg.Concept.Negative,
		Layer:    cav.Layer,
		Stage:    model.Layers[cav.Layer].Tag(),
		Dim:      cav.Dim(),
		Accuracy: cav.Accuracy,
		Examples: concepts.Len(),
		Path:     path,
	})
}
