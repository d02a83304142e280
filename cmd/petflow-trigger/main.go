// Package main provides the Petflow trigger service. It enrolls records into workflows on record
// changes and on the scheduled minute pass.
package main

import (
	"context"
	"os"

	"github.com/dukex/petflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("petflow-trigger")

	cmd := &cli.Command{
		Name:                  "petflow-trigger",
		Usage:                 "Evaluate workflow triggers",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("petflow-trigger failed", "error", err)
		os.Exit(1)
	}
}
