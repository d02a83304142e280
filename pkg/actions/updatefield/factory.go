package updatefield

import (
	"context"
	"encoding/json"

	"github.com/dukex/petflow/pkg/actions"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/protocol"
)

type ActionFactory struct {
	records persistence.RecordWriter
}

func NewActionFactory(records persistence.RecordWriter) *ActionFactory {
	return &ActionFactory{records: records}
}

func (*ActionFactory) ID() string {
	return "update_field"
}

func (*ActionFactory) Name() string {
	return "Update Field"
}

func (*ActionFactory) Description() string {
	return "Sets one attribute of the enrolled record. String values support templating."
}

func (f *ActionFactory) Create(_ context.Context, config json.RawMessage) (protocol.Action, error) {
	var cfg Config

	err := actions.DecodeConfig(config, &cfg)
	if err != nil {
		return nil, err
	}

	if text, ok := cfg.Value.(string); ok {
		err = actions.CheckTemplates(map[string]string{"value": text})
		if err != nil {
			return nil, err
		}
	}

	return NewAction(cfg, f.records), nil
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"description": "Attribute to set. Dot paths address nested attributes.",
				"examples":    []string{"status", "preferences.reminders"},
			},
			"value": map[string]any{
				"description": "Value to store. Strings are rendered as templates; rendered JSON, numbers and booleans keep their type.",
				"examples":    []any{"lapsed", 0, true, "{{ now }}"},
			},
		},
		"required": []string{"field"},
	}
}
