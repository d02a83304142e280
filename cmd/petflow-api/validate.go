package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/petflow/pkg/cmd"
	"github.com/dukex/petflow/pkg/log"
	"github.com/dukex/petflow/pkg/services"
	"github.com/urfave/cli/v3"
)

// ErrInvalidWorkflows is returned when at least one stored workflow fails validation.
var ErrInvalidWorkflows = errors.New("invalid workflows found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the entry conditions and step graphs of every stored workflow",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("petflow-api").With("action", "validate")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			registry, err := cmd.NewRegistry(logger, cmd.ActionDependencies{Records: persistence.RecordRepository()})
			if err != nil {
				return err
			}

			results, err := services.NewWorkflow(persistence, registry, nil).ValidateAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to validate workflows: %w", err)
			}

			logger.Info("Validated workflows", "workflows", len(results))

			return report(os.Stdout, results)
		},
	}
}

func report(w io.Writer, results []services.WorkflowValidation) error {
	_, _ = fmt.Fprintln(w, "Workflow Validation Results:")
	_, _ = fmt.Fprintln(w, "============================")

	invalid := 0

	for _, result := range results {
		if result.Err != nil {
			invalid++

			_, _ = fmt.Fprintf(w, "  ✗ %s (%s, tenant %s, %s): %v\n", result.Name, result.WorkflowID, result.TenantID, result.Status, result.Err)

			continue
		}

		_, _ = fmt.Fprintf(w, "  ✓ %s (%s, tenant %s, %s)\n", result.Name, result.WorkflowID, result.TenantID, result.Status)
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d valid, %d invalid\n", len(results)-invalid, invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkflows, invalid)
	}

	return nil
}
