// Package condition evaluates grouped record predicates used by workflow filters, goals, gates and branches.
package condition

import (
	"strings"
	"time"

	"github.com/dukex/petflow/pkg/models"
)

// Operators.
const (
	OpIsEqualToAny          = "is_equal_to_any"
	OpIsNotEqualToAny       = "is_not_equal_to_any"
	OpContainsExactly       = "contains_exactly"
	OpDoesNotContainExactly = "does_not_contain_exactly"
	OpContainsAny           = "contains_any"
	OpDoesNotContainAny     = "does_not_contain_any"
	OpStartsWith            = "starts_with"
	OpEndsWith              = "ends_with"
	OpIsKnown               = "is_known"
	OpIsUnknown             = "is_unknown"
	OpIsEqualTo             = "is_equal_to"
	OpIsNotEqualTo          = "is_not_equal_to"
	OpIsGreaterThan         = "is_greater_than"
	OpIsGreaterThanOrEqual  = "is_greater_than_or_equal"
	OpIsLessThan            = "is_less_than"
	OpIsLessThanOrEqual     = "is_less_than_or_equal"
	OpIsBetween             = "is_between"
	OpIsBefore              = "is_before"
	OpIsAfter               = "is_after"
	OpIsOn                  = "is_on"
	OpIsWithinLast          = "is_within_last"
	OpIsWithinNext          = "is_within_next"
	OpIsMoreThanAgo         = "is_more_than_ago"
	OpIsLessThanAgo         = "is_less_than_ago"
	OpIsTrue                = "is_true"
	OpIsFalse               = "is_false"
	OpIsAnyOf               = "is_any_of"
	OpIsNoneOf              = "is_none_of"
	OpHasAny                = "has_any"
	OpHasAll                = "has_all"
	OpHasNone               = "has_none"
)

type operatorFunc func(e *Evaluator, value any, found bool, cond models.Condition) bool

var operators = map[string]operatorFunc{
	OpIsEqualToAny:          equalToAny,
	OpIsNotEqualToAny:       not(equalToAny),
	OpIsAnyOf:               equalToAny,
	OpIsNoneOf:              not(equalToAny),
	OpContainsExactly:       containsExactly,
	OpDoesNotContainExactly: not(containsExactly),
	OpContainsAny:           containsAny,
	OpDoesNotContainAny:     not(containsAny),
	OpStartsWith:            startsWith,
	OpEndsWith:              endsWith,
	OpIsKnown:               func(_ *Evaluator, v any, found bool, _ models.Condition) bool { return found && !isUnknown(v) },
	OpIsUnknown:             func(_ *Evaluator, v any, found bool, _ models.Condition) bool { return !found || isUnknown(v) },
	OpIsEqualTo:             compare(func(a, b float64) bool { return a == b }),
	OpIsNotEqualTo:          compare(func(a, b float64) bool { return a != b }),
	OpIsGreaterThan:         compare(func(a, b float64) bool { return a > b }),
	OpIsGreaterThanOrEqual:  compare(func(a, b float64) bool { return a >= b }),
	OpIsLessThan:            compare(func(a, b float64) bool { return a < b }),
	OpIsLessThanOrEqual:     compare(func(a, b float64) bool { return a <= b }),
	OpIsBetween:             between,
	OpIsBefore:              dateCompare(func(a, b time.Time) bool { return a.Before(b) }),
	OpIsAfter:               dateCompare(func(a, b time.Time) bool { return a.After(b) }),
	OpIsOn:                  dateCompare(sameDate),
	OpIsWithinLast:          relative(-1, withinLast),
	OpIsWithinNext:          relative(1, withinNext),
	OpIsMoreThanAgo:         relative(-1, moreThanAgo),
	OpIsLessThanAgo:         relative(-1, lessThanAgo),
	OpIsTrue:                boolean(true),
	OpIsFalse:               boolean(false),
	OpHasAny:                arrays(hasAny),
	OpHasAll:                arrays(hasAll),
	OpHasNone:               arrays(hasNone),
}

// Known reports whether operator is part of the catalog.
func Known(operator string) bool {
	_, ok := operators[operator]

	return ok
}

// Observer is notified when a condition names an operator outside the catalog.
type Observer func(cond models.Condition)

// Evaluator evaluates condition configs against records. The zero value is ready to use.
type Evaluator struct {
	// Now is the clock for relative date operators; time.Now when nil.
	Now func() time.Time
	// OnUnknownOperator is called for every condition with an unknown operator.
	OnUnknownOperator Observer
}

var defaultEvaluator = &Evaluator{}

// Evaluate runs cfg against record with the default evaluator.
func Evaluate(cfg models.ConditionConfig, record map[string]any) bool {
	return defaultEvaluator.Evaluate(cfg, record)
}

// EvaluateGroup runs a single group against record with the default evaluator.
func EvaluateGroup(group models.ConditionGroup, record map[string]any) bool {
	return defaultEvaluator.EvaluateGroup(group, record)
}

// Evaluate returns true for an empty config; otherwise groups are combined with GroupLogic (OR by default).
func (e *Evaluator) Evaluate(cfg models.ConditionConfig, record map[string]any) bool {
	if cfg.IsEmpty() {
		return true
	}

	if cfg.GroupLogic.Normalize(models.LogicOr) == models.LogicAnd {
		for _, group := range cfg.Groups {
			if !e.EvaluateGroup(group, record) {
				return false
			}
		}

		return true
	}

	for _, group := range cfg.Groups {
		if e.EvaluateGroup(group, record) {
			return true
		}
	}

	return false
}

// EvaluateGroup combines the group's conditions with its Logic (AND by default).
func (e *Evaluator) EvaluateGroup(group models.ConditionGroup, record map[string]any) bool {
	if group.Logic.Normalize(models.LogicAnd) == models.LogicOr {
		for _, cond := range group.Conditions {
			if e.EvaluateCondition(cond, record) {
				return true
			}
		}

		return false
	}

	for _, cond := range group.Conditions {
		if !e.EvaluateCondition(cond, record) {
			return false
		}
	}

	return true
}

// EvaluateCondition evaluates one condition. Unknown operators evaluate to false.
func (e *Evaluator) EvaluateCondition(cond models.Condition, record map[string]any) bool {
	op, ok := operators[strings.TrimSpace(cond.Operator)]
	if !ok {
		if e.OnUnknownOperator != nil {
			e.OnUnknownOperator(cond)
		}

		return false
	}

	value, found := Lookup(record, cond.Field)

	return op(e, value, found, cond)
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}

	return time.Now()
}

// UnknownOperators lists the operators in cfg that are not part of the catalog.
func UnknownOperators(cfg models.ConditionConfig) []string {
	var unknown []string

	for _, group := range cfg.Groups {
		unknown = append(unknown, UnknownGroupOperators(group)...)
	}

	return unknown
}

// UnknownGroupOperators lists the operators in group that are not part of the catalog.
func UnknownGroupOperators(group models.ConditionGroup) []string {
	var unknown []string

	for _, cond := range group.Conditions {
		if !Known(strings.TrimSpace(cond.Operator)) {
			unknown = append(unknown, cond.Operator)
		}
	}

	return unknown
}

func not(op operatorFunc) operatorFunc {
	return func(e *Evaluator, value any, found bool, cond models.Condition) bool {
		return !op(e, value, found, cond)
	}
}

func equalToAny(_ *Evaluator, value any, found bool, cond models.Condition) bool {
	if !found || value == nil {
		return false
	}

	set := normalizedSet(targets(cond.Values, cond.Value))
	_, ok := set[normalize(value)]

	return ok
}

func containsExactly(_ *Evaluator, value any, found bool, cond models.Condition) bool {
	if !found || value == nil {
		return false
	}

	needle := normalize(cond.Value)
	if needle == "" && len(cond.Values) > 0 {
		needle = normalize(cond.Values[0])
	}

	return strings.Contains(normalize(value), needle)
}

func containsAny(_ *Evaluator, value any, found bool, cond models.Condition) bool {
	if !found || value == nil {
		return false
	}

	haystack := normalize(value)

	for _, target := range targets(cond.Values, cond.Value) {
		if needle := normalize(target); needle != "" && strings.Contains(haystack, needle) {
			return true
		}
	}

	return false
}

func startsWith(_ *Evaluator, value any, found bool, cond models.Condition) bool {
	if !found || value == nil {
		return false
	}

	return strings.HasPrefix(normalize(value), normalize(cond.Value))
}

func endsWith(_ *Evaluator, value any, found bool, cond models.Condition) bool {
	if !found || value == nil {
		return false
	}

	return strings.HasSuffix(normalize(value), normalize(cond.Value))
}

func compare(fn func(a, b float64) bool) operatorFunc {
	return func(_ *Evaluator, value any, found bool, cond models.Condition) bool {
		if !found {
			return false
		}

		a, ok := toFloat(value)
		if !ok {
			return false
		}

		b, ok := toFloat(cond.Value)
		if !ok {
			return false
		}

		return fn(a, b)
	}
}

func between(_ *Evaluator, value any, found bool, cond models.Condition) bool {
	if !found {
		return false
	}

	bounds := targets(cond.Values, cond.Value)
	if len(bounds) < 2 {
		return false
	}

	n, ok := toFloat(value)
	if !ok {
		return false
	}

	low, ok := toFloat(bounds[0])
	if !ok {
		return false
	}

	high, ok := toFloat(bounds[1])
	if !ok {
		return false
	}

	if low > high {
		low, high = high, low
	}

	return n >= low && n <= high
}

func dateCompare(fn func(a, b time.Time) bool) operatorFunc {
	return func(_ *Evaluator, value any, found bool, cond models.Condition) bool {
		if !found {
			return false
		}

		a, ok := models.ParseTime(value)
		if !ok {
			return false
		}

		b, ok := models.ParseTime(cond.Value)
		if !ok {
			return false
		}

		return fn(a, b)
	}
}

func sameDate(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()

	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// relative evaluates date operators of the form "N units from now". direction is -1 for the past.
func relative(direction float64, fn func(t, now, boundary time.Time) bool) operatorFunc {
	return func(e *Evaluator, value any, found bool, cond models.Condition) bool {
		if !found {
			return false
		}

		t, ok := models.ParseTime(value)
		if !ok {
			return false
		}

		amount, ok := toFloat(cond.Value)
		if !ok || amount < 0 {
			return false
		}

		unit := cond.Unit
		if unit == "" {
			unit = "days"
		}

		now := e.now()

		boundary, err := models.AddUnits(now, direction*amount, unit)
		if err != nil {
			return false
		}

		return fn(t, now, boundary)
	}
}

func withinLast(t, now, past time.Time) bool {
	return !t.Before(past) && !t.After(now)
}

func withinNext(t, now, future time.Time) bool {
	return !t.Before(now) && !t.After(future)
}

func moreThanAgo(t, _, past time.Time) bool {
	return t.Before(past)
}

func lessThanAgo(t, now, past time.Time) bool {
	return t.After(past) && !t.After(now)
}

func boolean(want bool) operatorFunc {
	return func(_ *Evaluator, value any, found bool, _ models.Condition) bool {
		if !found {
			return false
		}

		b, ok := toBool(value)

		return ok && b == want
	}
}

func arrays(fn func(have, want map[string]struct{}) bool) operatorFunc {
	return func(_ *Evaluator, value any, found bool, cond models.Condition) bool {
		if !found {
			return false
		}

		have, ok := toSlice(value)
		if !ok {
			return false
		}

		want := cond.Values
		if len(want) == 0 {
			want, ok = toSlice(cond.Value)
			if !ok {
				return false
			}
		}

		return fn(normalizedSet(have), normalizedSet(want))
	}
}

func hasAny(have, want map[string]struct{}) bool {
	for item := range want {
		if _, ok := have[item]; ok {
			return true
		}
	}

	return false
}

func hasAll(have, want map[string]struct{}) bool {
	for item := range want {
		if _, ok := have[item]; !ok {
			return false
		}
	}

	return true
}

func hasNone(have, want map[string]struct{}) bool {
	return !hasAny(have, want)
}
