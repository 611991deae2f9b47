package main

import (
	"fmt"
	"os"

	"github.com/accelmark/opcheck/internal/config"
	_ "github.com/accelmark/opcheck/internal/executor/operators"
	"github.com/accelmark/opcheck/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// appState carries what the Before hook prepares for every command.
type appState struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	var configPath string
	state := &appState{}

	app := &cli.App{
		Name:  "opcheck",
		Usage: "Conformance-test harness for accelerator operator kernels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Value:       "",
				Usage:       "Path to the harness config file",
				EnvVars:     []string{"OPCHECK_CONFIG"},
				Destination: &configPath,
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			if configPath == "" {
				state.cfg = config.Default()
			} else if state.cfg, err = config.LoadConfig(configPath); err != nil {
				return err
			}
			zapLogger, err := logger.New(state.cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			state.log = zapLogger.Named("opcheck")
			return nil
		},
		Commands: []*cli.Command{
			runCommand(state),
			listCommand(),
			serveCommand(state),
			keygenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		if state.log != nil {
			state.log.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
