package webhook

import (
	"context"
	"encoding/json"

	"github.com/dukex/petflow/pkg/actions"
	"github.com/dukex/petflow/pkg/protocol"
)

// ActionFactory creates webhook actions.
type ActionFactory struct {
	client Doer
}

// NewActionFactory creates a webhook factory. A nil client uses a client with the default timeout.
func NewActionFactory(client Doer) *ActionFactory {
	return &ActionFactory{client: client}
}

// ID returns the unique identifier for the action.
func (f *ActionFactory) ID() string {
	return "webhook"
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Webhook"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Sends an HTTP request to an external endpoint. Non-2xx responses fail the step."
}

// Create decodes the config and checks its templates.
func (f *ActionFactory) Create(_ context.Context, config json.RawMessage) (protocol.Action, error) {
	var cfg Config

	err := actions.DecodeConfig(config, &cfg)
	if err != nil {
		return nil, err
	}

	templates := map[string]string{"url": cfg.URL, "body": cfg.Body}
	for key, value := range cfg.Headers {
		templates["header "+key] = value
	}

	err = actions.CheckTemplates(templates)
	if err != nil {
		return nil, err
	}

	return NewAction(cfg, f.client), nil
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to send the request to. Supports templating with record fields.",
				"examples": []string{
					"https://crm.example.com/hooks/pets",
					"https://crm.example.com/pets/{{ .record_id }}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. When empty, the record and execution identifiers are sent as JSON.",
				"examples": []string{
					`{"pet": "{{ .record.name }}", "owner": "{{ .record.owner_id }}"}`,
				},
			},
			"timeoutSeconds": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
				"maximum":     120, //nolint:mnd // schema bound
			},
		},
		"required": []string{"url"},
	}
}
