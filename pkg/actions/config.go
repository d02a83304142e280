// Package actions holds the helpers shared by the native action implementations.
package actions

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dukex/petflow/pkg/template"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeConfig unmarshals a step config into target and runs its validate tags.
// Unknown keys are ignored so engine settings such as retryCount can share the object.
func DecodeConfig(config json.RawMessage, target any) error {
	if len(bytes.TrimSpace(config)) > 0 {
		err := json.Unmarshal(config, target)
		if err != nil {
			return fmt.Errorf("failed to decode config: %w", err)
		}
	}

	err := validate.Struct(target)
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// CheckTemplates parses every templated field so syntax errors surface at save time.
func CheckTemplates(fields map[string]string) error {
	for name, value := range fields {
		_, err := template.Parse(value)
		if err != nil {
			return fmt.Errorf("invalid %s template: %w", name, err)
		}
	}

	return nil
}
