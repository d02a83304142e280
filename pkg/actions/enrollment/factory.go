package enrollment

import (
	"context"
	"encoding/json"

	"github.com/dukex/petflow/pkg/actions"
	"github.com/dukex/petflow/pkg/protocol"
)

// EnrollFactory builds enroll_in_workflow actions.
type EnrollFactory struct {
	enroller Enroller
}

func NewEnrollFactory(enroller Enroller) *EnrollFactory {
	return &EnrollFactory{enroller: enroller}
}

func (*EnrollFactory) ID() string {
	return "enroll_in_workflow"
}

func (*EnrollFactory) Name() string {
	return "Enroll in Workflow"
}

func (*EnrollFactory) Description() string {
	return "Enrolls the record, or a related record, into another active workflow."
}

func (f *EnrollFactory) Create(_ context.Context, config json.RawMessage) (protocol.Action, error) {
	var cfg Config

	err := actions.DecodeConfig(config, &cfg)
	if err != nil {
		return nil, err
	}

	err = actions.CheckTemplates(map[string]string{"recordId": cfg.RecordID})
	if err != nil {
		return nil, err
	}

	return &EnrollAction{config: cfg, enroller: f.enroller}, nil
}

func (*EnrollFactory) Schema() map[string]any {
	return schema("Workflow to enroll into. It must be active and target the record's type.")
}

// UnenrollFactory builds unenroll_from_workflow actions.
type UnenrollFactory struct {
	unenroller Unenroller
}

func NewUnenrollFactory(unenroller Unenroller) *UnenrollFactory {
	return &UnenrollFactory{unenroller: unenroller}
}

func (*UnenrollFactory) ID() string {
	return "unenroll_from_workflow"
}

func (*UnenrollFactory) Name() string {
	return "Unenroll from Workflow"
}

func (*UnenrollFactory) Description() string {
	return "Cancels the record's live execution in another workflow."
}

func (f *UnenrollFactory) Create(_ context.Context, config json.RawMessage) (protocol.Action, error) {
	var cfg Config

	err := actions.DecodeConfig(config, &cfg)
	if err != nil {
		return nil, err
	}

	err = actions.CheckTemplates(map[string]string{"recordId": cfg.RecordID})
	if err != nil {
		return nil, err
	}

	return &UnenrollAction{config: cfg, unenroller: f.unenroller}, nil
}

func (*UnenrollFactory) Schema() map[string]any {
	return schema("Workflow whose live execution for the record is cancelled.")
}

func schema(workflowDescription string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workflowId": map[string]any{
				"type":        "string",
				"description": workflowDescription,
			},
			"recordId": map[string]any{
				"type":        "string",
				"description": "Record to act on. Defaults to the enrolled record. Supports templating.",
				"examples":    []string{"{{ .record.owner_id }}"},
			},
		},
		"required": []string{"workflowId"},
	}
}
