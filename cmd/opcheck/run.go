package main

import (
	"fmt"
	"os"

	"github.com/accelmark/opcheck/internal/attest"
	"github.com/accelmark/opcheck/internal/cases"
	"github.com/accelmark/opcheck/internal/device"
	"github.com/accelmark/opcheck/internal/executor"
	"github.com/accelmark/opcheck/internal/harness"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func runCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run conformance cases from case files",
		ArgsUsage: "[case files...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cases", Usage: "Directory of case files (overrides config)"},
			&cli.IntFlag{Name: "workers", Usage: "Parallel case workers (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			cfg, log := state.cfg, state.log

			batch, err := loadBatch(c, cfg.Cases.Dir)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return fmt.Errorf("no case files found")
			}

			manager, err := device.NewManager(cfg.Device.Backend, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := manager.Cleanup(); err != nil {
					log.Error("device cleanup failed", zap.Error(err))
				}
			}()

			runner := harness.NewRunner(manager.Backend(), cfg.Tolerance, loadSigner(cfg.Attest.KeyfilePath, log), log)

			workers := cfg.Harness.Workers
			if c.IsSet("workers") {
				workers = c.Int("workers")
			}
			summary := runner.RunAll(c.Context, batch, workers)
			printSummary(summary)
			if !summary.Ok() {
				return cli.Exit(fmt.Sprintf("%d of %d cases did not pass", summary.Total-summary.Passed, summary.Total), 1)
			}
			return nil
		},
	}
}

func loadBatch(c *cli.Context, defaultDir string) ([]*cases.Case, error) {
	if c.Args().Len() > 0 {
		batch := make([]*cases.Case, 0, c.Args().Len())
		for _, path := range c.Args().Slice() {
			loaded, err := cases.Load(path)
			if err != nil {
				return nil, err
			}
			batch = append(batch, loaded)
		}
		return batch, nil
	}
	dir := defaultDir
	if c.IsSet("cases") {
		dir = c.String("cases")
	}
	return cases.LoadDir(dir)
}

func loadSigner(keyfile string, log *zap.Logger) *attest.Signer {
	if keyfile == "" {
		return nil
	}
	privateKey, address, err := attest.LoadPrivateKey(keyfile)
	if err != nil {
		log.Warn("attestation disabled: could not load keyfile", zap.String("keyfile", keyfile), zap.Error(err))
		return nil
	}
	log.Info("attestation enabled", zap.String("address", address.Hex()))
	return attest.NewSigner(privateKey)
}

func printSummary(s *harness.Summary) {
	for _, rep := range s.Reports {
		line := fmt.Sprintf("%-10s %s/%s", rep.Status, rep.Operator, rep.Name)
		if rep.Status == harness.StatusPassed {
			line += fmt.Sprintf("  theory_ops=%d device=%.3fms host=%.3fms gflops=%.3f",
				rep.TheoryOps, rep.DeviceMs, rep.HostMs, rep.GFLOPS)
		} else {
			line += "  " + rep.Error
		}
		fmt.Fprintln(os.Stdout, line)
	}
	fmt.Fprintf(os.Stdout, "\n%d cases: %d passed, %d mismatched, %d invalid, %d device errors, %d errors\n",
		s.Total, s.Passed, s.Mismatched, s.Invalid, s.DeviceErrors, s.Errors)
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered operators",
		Action: func(c *cli.Context) error {
			for _, name := range executor.Names() {
				fmt.Fprintln(os.Stdout, name)
			}
			return nil
		},
	}
}
