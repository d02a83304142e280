// Package registry keeps the action factories available to workflows.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/petflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrActionNotRegistered is returned for an action_type without a factory.
	ErrActionNotRegistered = errors.New("action type not registered")
	// ErrInvalidActionConfig is returned when a step config does not satisfy its action's schema.
	ErrInvalidActionConfig = errors.New("invalid action config")
)

// MaxRetryCount bounds retryCount in every action config.
const MaxRetryCount = 20

// engineSettings are config keys read by the step processor for every action type.
var engineSettings = map[string]any{
	"retryCount": map[string]any{
		"type":        "integer",
		"description": "How many times a failed action is retried with exponential backoff",
		"minimum":     0,
		"maximum":     MaxRetryCount,
		"default":     0,
	},
	"continueOnError": map[string]any{
		"type":        "boolean",
		"description": "Advance to the next step once retries are exhausted instead of failing",
		"default":     false,
	},
}

type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	actionFactories map[string]protocol.ActionFactory
	schemas         map[string]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log.With("module", "registry"),
		actionFactories: make(map[string]protocol.ActionFactory),
		schemas:         make(map[string]*gojsonschema.Schema),
	}
}

// RegisterAction adds a factory. The factory schema is compiled once, with the engine settings added.
func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(withEngineSettings(actionFactory.Schema())))
	if err != nil {
		return fmt.Errorf("invalid schema for action %s: %w", actionFactory.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
	r.schemas[actionFactory.ID()] = schema

	return nil
}

// ActionTypes lists the registered action types in order.
func (r *Registry) ActionTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.actionFactories))
}

// Factory returns the factory of an action type.
func (r *Registry) Factory(actionType string) (protocol.ActionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.actionFactories[actionType]

	return factory, ok
}

// ValidateConfig checks config against the action schema and the factory's own validation.
func (r *Registry) ValidateConfig(ctx context.Context, actionType string, config json.RawMessage) error {
	_, err := r.CreateAction(ctx, actionType, config)

	return err
}

// CreateAction validates config and builds the action.
func (r *Registry) CreateAction(ctx context.Context, actionType string, config json.RawMessage) (protocol.Action, error) {
	r.mu.RLock()
	factory, ok := r.actionFactories[actionType]
	schema := r.schemas[actionType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotRegistered, actionType)
	}

	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(config))
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrInvalidActionConfig, actionType, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return nil, fmt.Errorf("%w for %s: %s", ErrInvalidActionConfig, actionType, strings.Join(problems, "; "))
	}

	action, err := factory.Create(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrInvalidActionConfig, actionType, err)
	}

	return action, nil
}

// ExecuteAction builds and runs an action. Failures are reported in the result, never as a panic.
func (r *Registry) ExecuteAction(
	ctx context.Context,
	actionType string,
	config json.RawMessage,
	actionCtx protocol.ActionContext,
) (result protocol.ActionResult) {
	if actionCtx.Logger == nil {
		actionCtx.Logger = r.logger
	}

	actionCtx.Logger = actionCtx.Logger.With("action_type", actionType)

	defer func() {
		if recovered := recover(); recovered != nil {
			actionCtx.Logger.ErrorContext(ctx, "Action panicked", "execution_id", actionCtx.ExecutionID, "step_id", actionCtx.StepID)

			result = protocol.ActionResult{Success: false, Error: fmt.Sprintf("action panicked: %v", recovered)}
		}
	}()

	action, err := r.CreateAction(ctx, actionType, config)
	if err != nil {
		return protocol.ActionResult{Success: false, Error: err.Error()}
	}

	output, err := action.Execute(ctx, actionCtx)
	if err != nil {
		return protocol.ActionResult{Success: false, Result: output, Error: err.Error()}
	}

	return protocol.ActionResult{Success: true, Result: output}
}

func withEngineSettings(schema map[string]any) map[string]any {
	merged := maps.Clone(schema)
	if merged == nil {
		merged = map[string]any{"type": "object"}
	}

	properties, _ := merged["properties"].(map[string]any)
	properties = maps.Clone(properties)

	if properties == nil {
		properties = map[string]any{}
	}

	for key, value := range engineSettings {
		if _, exists := properties[key]; !exists {
			properties[key] = value
		}
	}

	merged["properties"] = properties

	return merged
}
