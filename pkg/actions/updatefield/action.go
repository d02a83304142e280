// Package updatefield provides the update_field action.
package updatefield

import (
	"context"
	"fmt"

	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/template"
)

type Config struct {
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

type Action struct {
	config  Config
	records persistence.RecordWriter
}

func NewAction(cfg Config, records persistence.RecordWriter) *Action {
	return &Action{config: cfg, records: records}
}

func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext) (map[string]any, error) {
	value, err := template.RenderValue(a.config.Value, actionCtx.TemplateData())
	if err != nil {
		return nil, fmt.Errorf("failed to render value: %w", err)
	}

	err = a.records.UpdateField(ctx, actionCtx.TenantID, actionCtx.RecordType, actionCtx.RecordID, a.config.Field, value)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s.%s: %w", actionCtx.RecordType, a.config.Field, err)
	}

	return map[string]any{
		"field": a.config.Field,
		"value": value,
	}, nil
}
