// Package main provides the Petflow worker, which consumes step messages and drives executions.
package main

import (
	"context"
	"os"

	"github.com/dukex/petflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("petflow-worker")

	cmd := &cli.Command{
		Name:                  "petflow-worker",
		Usage:                 "Process workflow steps",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("petflow-worker failed", "error", err)
		os.Exit(1)
	}
}
