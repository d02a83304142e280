package log

import (
	"context"
	"encoding/json"

	"github.com/dukex/petflow/pkg/actions"
	"github.com/dukex/petflow/pkg/protocol"
)

// ActionType is the step action_type handled by this package.
const ActionType = "log"

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return ActionType
}

func (*ActionFactory) Name() string {
	return "Log"
}

func (*ActionFactory) Description() string {
	return "Writes a templated note about the record to the worker log."
}

// Create validates the config, including its templates, before any execution reaches the step.
func (f *ActionFactory) Create(_ context.Context, config json.RawMessage) (protocol.Action, error) {
	var cfg Config

	err := actions.DecodeConfig(config, &cfg)
	if err != nil {
		return nil, err
	}

	err = actions.CheckTemplates(map[string]string{"message": cfg.Message})
	if err != nil {
		return nil, err
	}

	return NewAction(cfg), nil
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating for dynamic content.",
				"examples": []string{
					"Enrolled {{ .record.name }} into the vaccination reminder",
					"Booking {{ .record_id }} reached step {{ .execution.step_id }}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []string{"message"},
	}
}
