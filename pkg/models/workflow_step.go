package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepType is the kind of node a workflow step is.
type StepType string

const (
	StepTypeAction       StepType = "action"
	StepTypeWait         StepType = "wait"
	StepTypeDeterminator StepType = "determinator"
	StepTypeGate         StepType = "gate"
	StepTypeTerminus     StepType = "terminus"
)

// WaitType selects how a wait step computes its resume time.
type WaitType string

const (
	WaitTypeDelay      WaitType = "delay"
	WaitTypeUntilDate  WaitType = "until_date"
	WaitTypeUntilEvent WaitType = "until_event"
)

// WorkflowStep is one typed node in a workflow's step graph.
type WorkflowStep struct {
	ID         string          `json:"id"                    validate:"required"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	Name       string          `json:"name"`
	StepType   StepType        `json:"step_type"             validate:"required,oneof=action wait determinator gate terminus"`
	ActionType string          `json:"action_type,omitempty" validate:"required_if=StepType action"`
	Config     json.RawMessage `json:"config,omitempty"`
	NextStepID string          `json:"next_step_id,omitempty"`
	Condition  *ConditionGroup `json:"condition,omitempty"`
	Branches   []Branch        `json:"branches,omitempty"`
}

// Branch is one outgoing path of a determinator.
type Branch struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Condition  ConditionGroup `json:"condition"`
	NextStepID string         `json:"next_step_id,omitempty"`
	IsElse     bool           `json:"isElse,omitempty"`
}

// ActionSettings are the engine-level knobs every action step config may carry.
type ActionSettings struct {
	RetryCount      int  `json:"retryCount"`
	ContinueOnError bool `json:"continueOnError"`
}

// MinWaitDelay is the shortest non-zero delay a wait may declare. It matches how early the step
// processor honours a scheduled resume.
const MinWaitDelay = time.Minute

// WaitConfig is the config of a wait step.
type WaitConfig struct {
	WaitType WaitType `json:"waitType"`
	Value    float64  `json:"value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Date     string   `json:"date,omitempty"`
	Event    string   `json:"event,omitempty"`
}

// DecodeConfig unmarshals the raw step config into target. An empty config leaves target untouched.
func (s *WorkflowStep) DecodeConfig(target any) error {
	if len(s.Config) == 0 {
		return nil
	}

	err := json.Unmarshal(s.Config, target)
	if err != nil {
		return fmt.Errorf("invalid config for step %s: %w", s.ID, err)
	}

	return nil
}

// ActionSettings returns the retry policy of an action step.
func (s *WorkflowStep) ActionSettings() ActionSettings {
	var settings ActionSettings

	// Malformed configs are rejected at save time; fall back to no retries here.
	_ = s.DecodeConfig(&settings)

	if settings.RetryCount < 0 {
		settings.RetryCount = 0
	}

	return settings
}

// WaitConfig returns the parsed config of a wait step.
func (s *WorkflowStep) WaitConfig() (WaitConfig, error) {
	var config WaitConfig

	err := s.DecodeConfig(&config)
	if err != nil {
		return config, err
	}

	if config.WaitType == "" {
		config.WaitType = WaitTypeDelay
	}

	return config, nil
}

// ResumeAt computes when a wait with this config ends. The boolean is false for event waits.
func (c WaitConfig) ResumeAt(now time.Time) (time.Time, bool, error) {
	switch c.WaitType {
	case WaitTypeDelay:
		if c.Value < 0 {
			return time.Time{}, false, fmt.Errorf("wait delay must not be negative: %v", c.Value)
		}

		resumeAt, err := AddUnits(now, c.Value, c.Unit)
		if err != nil {
			return time.Time{}, false, err
		}

		if delay := resumeAt.Sub(now); delay > 0 && delay < MinWaitDelay {
			return time.Time{}, false, fmt.Errorf("wait delay must be zero or at least %s, got %s", MinWaitDelay, delay)
		}

		return resumeAt, true, nil
	case WaitTypeUntilDate:
		date, ok := ParseTime(c.Date)
		if !ok {
			return time.Time{}, false, fmt.Errorf("until_date wait requires a valid date, got %q", c.Date)
		}

		return date, true, nil
	case WaitTypeUntilEvent:
		return time.Time{}, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown wait type %q", c.WaitType)
	}
}

// AddUnits adds value units to t. Months and years use calendar arithmetic for their whole part.
func AddUnits(t time.Time, value float64, unit string) (time.Time, error) {
	switch unit {
	case "minute", "minutes":
		return t.Add(time.Duration(value * float64(time.Minute))), nil
	case "hour", "hours":
		return t.Add(time.Duration(value * float64(time.Hour))), nil
	case "day", "days", "":
		return t.Add(time.Duration(value * 24 * float64(time.Hour))), nil
	case "week", "weeks":
		return t.Add(time.Duration(value * 7 * 24 * float64(time.Hour))), nil
	case "month", "months":
		return t.AddDate(0, int(value), 0), nil
	case "year", "years":
		return t.AddDate(int(value), 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown time unit %q", unit)
	}
}

// ElseBranch returns the fallback branch of a determinator, if any.
func (s *WorkflowStep) ElseBranch() *Branch {
	for i := range s.Branches {
		if s.Branches[i].IsElse {
			return &s.Branches[i]
		}
	}

	return nil
}
