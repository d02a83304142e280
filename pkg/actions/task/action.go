// Package task provides the create_task action.
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/persistence"
	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/template"
)

type Config struct {
	Title       string `json:"title"       validate:"required"`
	Description string `json:"description"`
	AssigneeID  string `json:"assigneeId"`
	Priority    string `json:"priority"    validate:"omitempty,oneof=low normal high urgent"`
	DueInDays   *int   `json:"dueInDays"   validate:"omitempty,min=0"`
}

type Action struct {
	config  Config
	records persistence.RecordWriter
	now     func() time.Time
}

// Execute stores an open task that points back at the enrolled record.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext) (map[string]any, error) {
	data := actionCtx.TemplateData()

	title, err := template.RenderString(a.config.Title, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render title template: %w", err)
	}

	description, err := template.RenderString(a.config.Description, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render description template: %w", err)
	}

	assignee, err := template.RenderString(a.config.AssigneeID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render assigneeId template: %w", err)
	}

	priority := a.config.Priority
	if priority == "" {
		priority = "normal"
	}

	task := models.Record{
		"title":               strings.TrimSpace(title),
		"description":         description,
		"status":              "open",
		"priority":            priority,
		"related_record_type": string(actionCtx.RecordType),
		"related_record_id":   actionCtx.RecordID,
		"source_workflow_id":  actionCtx.WorkflowID,
		"source_execution_id": actionCtx.ExecutionID,
	}

	if assignee = strings.TrimSpace(assignee); assignee != "" {
		task["assignee_id"] = assignee
	}

	if a.config.DueInDays != nil {
		task["due_date"] = a.now().UTC().AddDate(0, 0, *a.config.DueInDays).Format(time.DateOnly)
	}

	stored, err := a.records.CreateRecord(ctx, actionCtx.TenantID, models.RecordTypeTask, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return map[string]any{
		"task_id": stored.ID(),
		"title":   task["title"],
	}, nil
}
