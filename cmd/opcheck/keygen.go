package main

import (
	"fmt"
	"os"

	"github.com/accelmark/opcheck/internal/attest"
	"github.com/urfave/cli/v2"
)

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate an attestation key file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Value: "opcheck_key.json",
				Usage: "Output path for the key file",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("out")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("refusing to overwrite existing key file %s", path)
			}
			if err := attest.GenerateKeyFile(path); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "wrote %s\n", path)
			return nil
		},
	}
}
