// Package protocol defines the contracts between the step processor and pluggable actions.
package protocol

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dukex/petflow/pkg/models"
)

// ActionContext identifies the execution an action runs for.
type ActionContext struct {
	TenantID    string
	WorkflowID  string
	ExecutionID string
	StepID      string
	RecordType  models.RecordType
	RecordID    string
	Record      models.Record
	Logger      *slog.Logger
}

// TemplateData is the data config templates are rendered against.
func (c ActionContext) TemplateData() map[string]any {
	return map[string]any{
		"record":      map[string]any(c.Record),
		"record_type": string(c.RecordType),
		"record_id":   c.RecordID,
		"execution": map[string]any{
			"id":          c.ExecutionID,
			"workflow_id": c.WorkflowID,
			"step_id":     c.StepID,
			"tenant_id":   c.TenantID,
		},
	}
}

// ActionResult is the outcome of one action invocation.
type ActionResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Action performs one side effect.
type Action interface {
	Execute(ctx context.Context, actionCtx ActionContext) (map[string]any, error)
}

// ActionFactory builds actions from a step config and describes that config.
type ActionFactory interface {
	// Create decodes and validates config. It is called at workflow-save time and before each run.
	Create(ctx context.Context, config json.RawMessage) (Action, error)

	// ID returns the action_type this factory handles.
	ID() string

	Name() string
	Description() string

	// Schema returns the JSON schema of the config.
	Schema() map[string]any
}

// ActionExecutor runs actions by type.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, actionType string, config json.RawMessage, actionCtx ActionContext) ActionResult
}
