// Package main provides the Petflow scheduler, which enqueues step messages whose waits or retry
// delays have elapsed.
package main

import (
	"context"
	"os"

	"github.com/dukex/petflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("petflow-scheduler")

	cmd := &cli.Command{
		Name:                  "petflow-scheduler",
		Usage:                 "Resume waiting executions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("petflow-scheduler failed", "error", err)
		os.Exit(1)
	}
}
