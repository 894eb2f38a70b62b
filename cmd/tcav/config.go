package main

import (
	"context"
	"log/slog"

	"tcav_lib/utils"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

var (
	configOutFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Where to write the config",
		Value:   "tcav.yaml",
	}

	filtersFlag = &cli.StringFlag{
		Name:  "filters",
		Usage: "Conv block widths, e.g. \"32,64\"",
	}

	hiddenFlag = &cli.StringFlag{
		Name:  "hidden",
		Usage: "Dense layer widths before the output, e.g. \"512\"",
	}

	poolFlag = &cli.StringFlag{
		Name:  "pool",
		Usage: "Pooling closing each conv block [max, avg]",
	}

	initFlag = &cli.StringFlag{
		Name:  "init",
		Usage: "Kernel initializer [glorot_uniform, he_normal]",
	}

	configCmd = &cli.Command{
		Name:  "config",
		Usage: "Run config operations",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default config to a file",
				Action: cmdConfigInit,
				Flags: []cli.Flag{
					configOutFlag,
					filtersFlag,
					hiddenFlag,
					poolFlag,
					initFlag,
				},
			},
			{
				Name:   "show",
				Usage:  "Print the effective config after flag overrides",
				Action: cmdConfigShow,
			},
		},
	}
)

func cmdConfigInit(_ context.Context, cmd *cli.Command) error {
	cfg := utils.DefaultConfig()
	var err error
	if cmd.IsSet(filtersFlag.Name) {
		if cfg.Model.Filters, err = utils.ParseArchitecture(cmd.String(filtersFlag.Name)); err != nil {
			return errors.WithMessage(err, "--filters")
		}
	}
	if cmd.IsSet(hiddenFlag.Name) {
		if cfg.Model.Hidden, err = utils.ParseArchitecture(cmd.String(hiddenFlag.Name)); err != nil {
			return errors.WithMessage(err, "--hidden")
		}
	}
	if cmd.IsSet(poolFlag.Name) {
		cfg.Model.Pool = cmd.String(poolFlag.Name)
	}
	if cmd.IsSet(initFlag.Name) {
		cfg.Model.Init = cmd.String(initFlag.Name)
	}
	if err := utils.ValidateConfig(cfg); err != nil {
		return err
	}

	path := cmd.String(configOutFlag.Name)
	if err := utils.SaveConfig(path, cfg); err != nil {
		return err
	}
	slog.Info("config written", "path", path, "model", cfg.Model.String())
	return nil
}

func cmdConfigShow(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	return encode(cmd, cfg)
}
