// Package template renders Go text templates embedded in action configs.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/petflow/pkg/models"
)

const noValue = "<no value>"

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"default": func(fallback, value any) any {
		if value == nil || value == "" {
			return fallback
		}

		return value
	},
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"date": func(layout string, value any) string {
		t, ok := models.ParseTime(value)
		if !ok {
			return ""
		}

		return t.Format(layout)
	},
}

// Parse checks that input is a valid template.
func Parse(input string) (*template.Template, error) {
	tmpl, err := template.New("config").Funcs(funcs).Parse(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", input, err)
	}

	return tmpl, nil
}

// RenderString executes input against data. Missing keys render as empty strings.
func RenderString(input string, data any) (string, error) {
	if !strings.Contains(input, "{{") {
		return input, nil
	}

	tmpl, err := Parse(input)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", input, err)
	}

	return strings.ReplaceAll(buf.String(), noValue, ""), nil
}

// Render executes input and converts the output to JSON, a number or a boolean when it looks like one.
func Render(input string, data any) (any, error) {
	rendered, err := RenderString(input, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(rendered)

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", input, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderValue renders strings through Render and returns any other value unchanged.
func RenderValue(value any, data any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}

	return Render(s, data)
}
