package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukex/petflow/pkg/actions"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/protocol"
)

type ActionFactory struct {
	records persistence.RecordWriter
	now     func() time.Time
}

func NewActionFactory(records persistence.RecordWriter) *ActionFactory {
	return &ActionFactory{records: records, now: time.Now}
}

func (*ActionFactory) ID() string {
	return "create_task"
}

func (*ActionFactory) Name() string {
	return "Create Task"
}

func (*ActionFactory) Description() string {
	return "Creates a staff task linked to the enrolled record."
}

func (f *ActionFactory) Create(_ context.Context, config json.RawMessage) (protocol.Action, error) {
	var cfg Config

	err := actions.DecodeConfig(config, &cfg)
	if err != nil {
		return nil, err
	}

	err = actions.CheckTemplates(map[string]string{
		"title":       cfg.Title,
		"description": cfg.Description,
		"assigneeId":  cfg.AssigneeID,
	})
	if err != nil {
		return nil, err
	}

	return &Action{config: cfg, records: f.records, now: f.now}, nil
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Task title. Supports templating.",
				"examples":    []string{"Call {{ .record.name }}'s owner about the overdue invoice"},
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Task details. Supports templating.",
			},
			"assigneeId": map[string]any{
				"type":        "string",
				"description": "Staff member the task is assigned to.",
			},
			"priority": map[string]any{
				"type":    "string",
				"default": "normal",
				"enum":    []string{"low", "normal", "high", "urgent"},
			},
			"dueInDays": map[string]any{
				"type":        "integer",
				"description": "Days from now until the task is due. Omit for no due date.",
				"minimum":     0,
			},
		},
		"required": []string{"title"},
	}
}
