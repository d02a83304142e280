// Package enrollment provides the enroll_in_workflow and unenroll_from_workflow actions.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/petflow/pkg/models"
	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/template"
	"github.com/dukex/petflow/pkg/trigger"
)

// ErrSelfUnenroll is returned when a step tries to cancel its own execution.
var ErrSelfUnenroll = errors.New("a workflow cannot unenroll the record it is running for; use a terminus step")

// Enroller enrolls a record into a workflow outside of record events.
type Enroller interface {
	EnrollManually(ctx context.Context, tenantID, workflowID, recordID, enrolledBy string) (trigger.EnrollmentResult, error)
}

// Unenroller cancels a record's live execution in a workflow.
type Unenroller interface {
	Unenroll(ctx context.Context, tenantID, workflowID, recordID, cancelledBy string) (bool, error)
}

type Config struct {
	WorkflowID string `json:"workflowId" validate:"required"`
	RecordID   string `json:"recordId"`
}

func (c Config) recordID(actionCtx protocol.ActionContext) (string, error) {
	if c.RecordID == "" {
		return actionCtx.RecordID, nil
	}

	id, err := template.RenderString(c.RecordID, actionCtx.TemplateData())
	if err != nil {
		return "", fmt.Errorf("failed to render recordId template: %w", err)
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("rendered recordId is empty")
	}

	return id, nil
}

func initiator(actionCtx protocol.ActionContext) string {
	return "workflow:" + actionCtx.WorkflowID
}

type EnrollAction struct {
	config   Config
	enroller Enroller
}

// Execute enrolls the record. A gate skip is a successful outcome reported in the result.
func (a *EnrollAction) Execute(ctx context.Context, actionCtx protocol.ActionContext) (map[string]any, error) {
	recordID, err := a.config.recordID(actionCtx)
	if err != nil {
		return nil, err
	}

	result, err := a.enroller.EnrollManually(ctx, actionCtx.TenantID, a.config.WorkflowID, recordID, initiator(actionCtx))
	if err != nil {
		return nil, fmt.Errorf("failed to enroll %s into workflow %s: %w", recordID, a.config.WorkflowID, err)
	}

	return map[string]any{
		"workflow_id":  a.config.WorkflowID,
		"record_id":    recordID,
		"enrolled":     result.Enrolled,
		"execution_id": result.ExecutionID,
		"reason":       result.Reason,
	}, nil
}

type UnenrollAction struct {
	config     Config
	unenroller Unenroller
}

func (a *UnenrollAction) Execute(ctx context.Context, actionCtx protocol.ActionContext) (map[string]any, error) {
	recordID, err := a.config.recordID(actionCtx)
	if err != nil {
		return nil, err
	}

	if a.config.WorkflowID == actionCtx.WorkflowID && recordID == actionCtx.RecordID {
		return nil, ErrSelfUnenroll
	}

	cancelled, err := a.unenroller.Unenroll(ctx, actionCtx.TenantID, a.config.WorkflowID, recordID, initiator(actionCtx))
	if err != nil {
		return nil, fmt.Errorf("failed to unenroll %s from workflow %s: %w", recordID, a.config.WorkflowID, err)
	}

	return map[string]any{
		"workflow_id": a.config.WorkflowID,
		"record_id":   recordID,
		"cancelled":   cancelled,
		"reason":      models.ReasonUnenrolled,
	}, nil
}
