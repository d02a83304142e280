package models

import "strings"

// Logic combines conditions within a group, or groups within a config.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Normalize returns LogicAnd or LogicOr, using fallback for anything unrecognised.
func (l Logic) Normalize(fallback Logic) Logic {
	switch strings.ToUpper(strings.TrimSpace(string(l))) {
	case "AND":
		return LogicAnd
	case "OR":
		return LogicOr
	default:
		return fallback
	}
}

// Condition is a single predicate against one record field.
type Condition struct {
	Field    string `json:"field"            validate:"required"`
	Operator string `json:"operator"         validate:"required"`
	Value    any    `json:"value,omitempty"`
	Values   []any  `json:"values,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// ConditionGroup combines conditions with Logic (AND when unset).
type ConditionGroup struct {
	Logic      Logic       `json:"logic,omitempty"`
	Conditions []Condition `json:"conditions"`
}

// ConditionConfig is the grouped predicate used for filters, goals, gates and branches.
// Groups combine with GroupLogic (OR when unset).
type ConditionConfig struct {
	Groups     []ConditionGroup `json:"groups,omitempty"`
	GroupLogic Logic            `json:"groupLogic,omitempty"`
}

// IsEmpty reports whether the config has no groups and therefore always passes.
func (c ConditionConfig) IsEmpty() bool {
	return len(c.Groups) == 0
}

// SingleGroup wraps a group into a config so it can be evaluated on its own.
func SingleGroup(group ConditionGroup) ConditionConfig {
	return ConditionConfig{Groups: []ConditionGroup{group}, GroupLogic: LogicAnd}
}
