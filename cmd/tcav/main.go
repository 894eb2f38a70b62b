// Command tcav trains a CIFAR classifier, learns concept activation vectors
// at a chosen layer and scores how much each class depends on a concept.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tcav_lib/logging"
	"tcav_lib/utils"

	"github.com/urfave/cli/v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.1.0-default"
	commit  = ""

	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML run config (optional, built-in defaults otherwise)",
	}

	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level [debug, info, warn, error]",
		Value: "info",
	}

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (same as --log-level debug)",
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	dataFlag = &cli.StringFlag{
		Name:  "data",
		Usage: "Directory holding cifar-10-batches-bin and cifar-100-binary (overrides config)",
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Concurrent sensitivity evaluations, 0 uses every CPU (overrides config)",
	}

	quietFlag = &cli.BoolFlag{
		Name:  "quiet",
		Usage: "Disables progress bars and timing statistics",
	}
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            "tcav",
		Version:         fmt.Sprintf("%s (commit: %s)", version, commit),
		Usage:           "Concept activation vectors and TCAV scores for CIFAR models",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			configFlag,
			logLevelFlag,
			debugFlag,
			formatFlag,
			dataFlag,
			workersFlag,
			quietFlag,
		},
		Commands: []*cli.Command{
			configCmd,
			trainCmd,
			cavCmd,
			scoreCmd,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := cmd.String(logLevelFlag.Name)
			if cmd.Bool(debugFlag.Name) {
				level = "debug"
			}
			logging.SetDefaultCLILogger(level)

			utils.Verbose = !cmd.Bool(quietFlag.Name)
			utils.Output = os.Stderr

			switch f := cmd.String(formatFlag.Name); f {
			case formatJSON, formatYAML, "yml":
			default:
				return ctx, fmt.Errorf("unsupported output format %q", f)
			}
			return ctx, nil
		},
	}
}
