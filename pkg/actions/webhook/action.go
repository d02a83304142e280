// Package webhook provides the action that calls an external HTTP endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/petflow/pkg/protocol"
	"github.com/dukex/petflow/pkg/template"
)

const (
	defaultTimeoutSeconds = 30
	maxResponseBytes      = 1 << 20
)

// ErrUnexpectedStatus is returned for responses outside the 2xx range.
var ErrUnexpectedStatus = errors.New("webhook returned a non-2xx status")

// Doer sends HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config is the step config of a webhook action.
type Config struct {
	URL            string            `json:"url"            validate:"required"`
	Method         string            `json:"method"         validate:"omitempty,oneof=GET POST PUT DELETE PATCH"`
	Headers        map[string]string `json:"headers"`
	Body           string            `json:"body"`
	TimeoutSeconds int               `json:"timeoutSeconds" validate:"omitempty,min=1,max=120"`
}

// Action performs one HTTP request.
type Action struct {
	config Config
	client Doer
}

// NewAction creates a webhook action. A nil client gets one with the configured timeout.
func NewAction(cfg Config, client Doer) *Action {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}

	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}

	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}

	return &Action{config: cfg, client: client}
}

// Execute sends the request and returns the status code and decoded body.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext) (map[string]any, error) {
	data := actionCtx.TemplateData()

	req, err := a.buildRequest(ctx, actionCtx, data)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return result, nil
}

func (a *Action) buildRequest(ctx context.Context, actionCtx protocol.ActionContext, data map[string]any) (*http.Request, error) {
	url, err := template.RenderString(a.config.URL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	body, err := a.buildBody(actionCtx, data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, a.config.Method, strings.TrimSpace(url), strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Petflow-Execution-ID", actionCtx.ExecutionID)

	for key, value := range a.config.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}

func (a *Action) buildBody(actionCtx protocol.ActionContext, data map[string]any) (string, error) {
	if a.config.Method == http.MethodGet {
		return "", nil
	}

	if a.config.Body != "" {
		body, err := template.RenderString(a.config.Body, data)
		if err != nil {
			return "", fmt.Errorf("failed to render body template: %w", err)
		}

		return body, nil
	}

	payload, err := json.Marshal(map[string]any{
		"tenant_id":    actionCtx.TenantID,
		"workflow_id":  actionCtx.WorkflowID,
		"execution_id": actionCtx.ExecutionID,
		"step_id":      actionCtx.StepID,
		"record_type":  actionCtx.RecordType,
		"record_id":    actionCtx.RecordID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal default body: %w", err)
	}

	return string(payload), nil
}
