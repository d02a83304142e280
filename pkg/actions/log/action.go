// Package log provides the action that writes a templated message to the worker log.
package log

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/template"
)

// Config is the step config of a log action.
type Config struct {
	Message string `json:"message" validate:"required"`
	Level   string `json:"level"   validate:"omitempty,oneof=debug info warn warning error"`
}

// Action writes a message to the log.
type Action struct {
	message string
	level   slog.Level
}

// NewAction creates a log action.
func NewAction(cfg Config) *Action {
	return &Action{message: cfg.Message, level: parseLevel(cfg.Level)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Execute renders the message and logs it with the execution identifiers.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext) (map[string]any, error) {
	message, err := template.RenderString(a.message, actionCtx.TemplateData())
	if err != nil {
		return nil, err
	}

	logger := actionCtx.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Log(ctx, a.level, message,
		"execution_id", actionCtx.ExecutionID,
		"workflow_id", actionCtx.WorkflowID,
		"step_id", actionCtx.StepID,
	)

	return map[string]any{"message": message, "level": a.level.String()}, nil
}
