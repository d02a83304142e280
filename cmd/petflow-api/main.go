package main

import (
	"context"
	"os"

	"github.com/dukex/petflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("petflow-api")

	cmd := &cli.Command{
		Name:                  "petflow-api",
		Usage:                 "Manage workflows, enrollments and record events",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunAPICommand(),
			NewValidateCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("petflow-api failed", "error", err)
		os.Exit(1)
	}
}
