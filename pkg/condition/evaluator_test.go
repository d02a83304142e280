package condition

import (
	"testing"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestEvaluator() *Evaluator {
	return &Evaluator{Now: func() time.Time { return fixedNow }}
}

func single(cond models.Condition) models.ConditionConfig {
	return models.SingleGroup(models.ConditionGroup{Conditions: []models.Condition{cond}})
}

func TestEvaluate_EmptyConfigAlwaysPasses(t *testing.T) {
	assert.True(t, Evaluate(models.ConditionConfig{}, nil))
	assert.True(t, Evaluate(models.ConditionConfig{Groups: []models.ConditionGroup{}}, map[string]any{"a": 1}))
}

func TestEvaluate_GroupLogic(t *testing.T) {
	record := map[string]any{"species": "dog", "age": 4.0}

	dog := models.Condition{Field: "species", Operator: OpIsEqualToAny, Values: []any{"dog"}}
	cat := models.Condition{Field: "species", Operator: OpIsEqualToAny, Values: []any{"cat"}}
	old := models.Condition{Field: "age", Operator: OpIsGreaterThan, Value: 10}

	tests := []struct {
		name     string
		cfg      models.ConditionConfig
		expected bool
	}{
		{
			name:     "group defaults to AND",
			cfg:      models.ConditionConfig{Groups: []models.ConditionGroup{{Conditions: []models.Condition{dog, old}}}},
			expected: false,
		},
		{
			name:     "group OR",
			cfg:      models.ConditionConfig{Groups: []models.ConditionGroup{{Logic: "or", Conditions: []models.Condition{cat, dog}}}},
			expected: true,
		},
		{
			name: "groups default to OR",
			cfg: models.ConditionConfig{Groups: []models.ConditionGroup{
				{Conditions: []models.Condition{cat}},
				{Conditions: []models.Condition{dog}},
			}},
			expected: true,
		},
		{
			name: "groups AND",
			cfg: models.ConditionConfig{GroupLogic: models.LogicAnd, Groups: []models.ConditionGroup{
				{Conditions: []models.Condition{cat}},
				{Conditions: []models.Condition{dog}},
			}},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.cfg, record))
		})
	}
}

func TestLookup_DotPathAndCaseConversion(t *testing.T) {
	record := map[string]any{
		"firstName": "Rex",
		"owner_info": map[string]any{
			"phone_number": "555",
		},
		"tags": []any{"a", "b"},
	}

	v, ok := Lookup(record, "first_name")
	require.True(t, ok)
	assert.Equal(t, "Rex", v)

	v, ok = Lookup(record, "ownerInfo.phoneNumber")
	require.True(t, ok)
	assert.Equal(t, "555", v)

	v, ok = Lookup(record, "tags.1")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = Lookup(record, "owner_info.email")
	assert.False(t, ok)
}

func TestIsKnown(t *testing.T) {
	tests := []struct {
		name  string
		value any
		known bool
	}{
		{name: "null", value: nil, known: false},
		{name: "empty string", value: "", known: false},
		{name: "empty array", value: []any{}, known: false},
		{name: "zero", value: 0.0, known: true},
		{name: "false", value: false, known: true},
		{name: "text", value: "x", known: true},
		{name: "array", value: []any{"x"}, known: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := map[string]any{"field": tt.value}

			assert.Equal(t, tt.known, Evaluate(single(models.Condition{Field: "field", Operator: OpIsKnown}), record))
			assert.Equal(t, !tt.known, Evaluate(single(models.Condition{Field: "field", Operator: OpIsUnknown}), record))
		})
	}

	t.Run("undefined", func(t *testing.T) {
		assert.False(t, Evaluate(single(models.Condition{Field: "missing", Operator: OpIsKnown}), map[string]any{}))
		assert.True(t, Evaluate(single(models.Condition{Field: "missing", Operator: OpIsUnknown}), map[string]any{}))
	})
}

func TestIsEqualToAny_CaseInsensitiveTrimmed(t *testing.T) {
	record := map[string]any{"status": " active "}

	assert.True(t, Evaluate(single(models.Condition{Field: "status", Operator: OpIsEqualToAny, Values: []any{"Active"}}), record))
	assert.True(t, Evaluate(single(models.Condition{Field: "status", Operator: OpIsAnyOf, Value: []any{"inactive", "ACTIVE"}}), record))
	assert.False(t, Evaluate(single(models.Condition{Field: "status", Operator: OpIsNotEqualToAny, Values: []any{"active"}}), record))
	assert.True(t, Evaluate(single(models.Condition{Field: "status", Operator: OpIsNoneOf, Values: []any{"archived"}}), record))
}

func TestStringOperators(t *testing.T) {
	record := map[string]any{"name": "Buddy the Beagle"}

	tests := []struct {
		operator string
		value    any
		values   []any
		expected bool
	}{
		{operator: OpContainsExactly, value: "the beagle", expected: true},
		{operator: OpContainsExactly, value: "poodle", expected: false},
		{operator: OpDoesNotContainExactly, value: "poodle", expected: true},
		{operator: OpContainsAny, values: []any{"poodle", "beagle"}, expected: true},
		{operator: OpDoesNotContainAny, values: []any{"poodle", "husky"}, expected: true},
		{operator: OpStartsWith, value: "buddy", expected: true},
		{operator: OpEndsWith, value: "Beagle", expected: true},
		{operator: OpEndsWith, value: "Buddy", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			cond := models.Condition{Field: "name", Operator: tt.operator, Value: tt.value, Values: tt.values}
			assert.Equal(t, tt.expected, Evaluate(single(cond), record))
		})
	}
}

func TestNumericOperators(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		field    any
		value    any
		expected bool
	}{
		{name: "equal", operator: OpIsEqualTo, field: 3.0, value: 3, expected: true},
		{name: "equal numeric string", operator: OpIsEqualTo, field: "3", value: 3.0, expected: true},
		{name: "not equal", operator: OpIsNotEqualTo, field: 3.0, value: 4, expected: true},
		{name: "greater", operator: OpIsGreaterThan, field: 5.0, value: 4, expected: true},
		{name: "greater or equal", operator: OpIsGreaterThanOrEqual, field: 4.0, value: 4, expected: true},
		{name: "less", operator: OpIsLessThan, field: 3.0, value: 4, expected: true},
		{name: "less or equal", operator: OpIsLessThanOrEqual, field: 5.0, value: 4, expected: false},
		{name: "non numeric field", operator: OpIsGreaterThan, field: "abc", value: 1, expected: false},
		{name: "non numeric target", operator: OpIsNotEqualTo, field: 1.0, value: "abc", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := models.Condition{Field: "n", Operator: tt.operator, Value: tt.value}
			assert.Equal(t, tt.expected, Evaluate(single(cond), map[string]any{"n": tt.field}))
		})
	}
}

func TestIsBetween_Inclusive(t *testing.T) {
	cond := models.Condition{Field: "weight", Operator: OpIsBetween, Values: []any{5, 10}}

	assert.True(t, Evaluate(single(cond), map[string]any{"weight": 5.0}))
	assert.True(t, Evaluate(single(cond), map[string]any{"weight": 10.0}))
	assert.True(t, Evaluate(single(cond), map[string]any{"weight": 7.5}))
	assert.False(t, Evaluate(single(cond), map[string]any{"weight": 11.0}))

	arrayValue := models.Condition{Field: "weight", Operator: OpIsBetween, Value: []any{5.0, 10.0}}
	assert.True(t, Evaluate(single(arrayValue), map[string]any{"weight": 10.0}))
}

func TestDateOperators(t *testing.T) {
	e := newTestEvaluator()

	daysAgo := func(n int) string { return fixedNow.AddDate(0, 0, -n).Format(time.RFC3339) }
	daysAhead := func(n int) string { return fixedNow.AddDate(0, 0, n).Format(time.RFC3339) }

	tests := []struct {
		name     string
		operator string
		field    any
		value    any
		unit     string
		expected bool
	}{
		{name: "within last 7 days, 3 days ago", operator: OpIsWithinLast, field: daysAgo(3), value: 7, unit: "days", expected: true},
		{name: "within last 7 days, 10 days ago", operator: OpIsWithinLast, field: daysAgo(10), value: 7, unit: "days", expected: false},
		{name: "within last, future date", operator: OpIsWithinLast, field: daysAhead(1), value: 7, unit: "days", expected: false},
		{name: "within next 2 weeks", operator: OpIsWithinNext, field: daysAhead(10), value: 2, unit: "weeks", expected: true},
		{name: "within next 1 week", operator: OpIsWithinNext, field: daysAhead(10), value: 1, unit: "weeks", expected: false},
		{name: "more than 1 month ago", operator: OpIsMoreThanAgo, field: daysAgo(45), value: 1, unit: "months", expected: true},
		{name: "less than 1 year ago", operator: OpIsLessThanAgo, field: daysAgo(45), value: 1, unit: "years", expected: true},
		{name: "hours", operator: OpIsWithinLast, field: fixedNow.Add(-90 * time.Minute).Format(time.RFC3339), value: 2, unit: "hours", expected: true},
		{name: "minutes", operator: OpIsWithinLast, field: fixedNow.Add(-90 * time.Minute).Format(time.RFC3339), value: 30, unit: "minutes", expected: false},
		{name: "before", operator: OpIsBefore, field: "2024-01-01", value: "2024-02-01", expected: true},
		{name: "after", operator: OpIsAfter, field: "2024-03-01", value: "2024-02-01", expected: true},
		{name: "on same day", operator: OpIsOn, field: "2024-02-01T18:30:00Z", value: "2024-02-01", expected: true},
		{name: "on other day", operator: OpIsOn, field: "2024-02-02T00:30:00Z", value: "2024-02-01", expected: false},
		{name: "unparsable", operator: OpIsBefore, field: "not a date", value: "2024-02-01", expected: false},
		{name: "unix seconds", operator: OpIsAfter, field: float64(fixedNow.Unix()), value: "2024-01-01", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := models.Condition{Field: "at", Operator: tt.operator, Value: tt.value, Unit: tt.unit}
			assert.Equal(t, tt.expected, e.Evaluate(single(cond), map[string]any{"at": tt.field}))
		})
	}
}

func TestBooleanOperators(t *testing.T) {
	tests := []struct {
		value   any
		isTrue  bool
		isFalse bool
	}{
		{value: true, isTrue: true},
		{value: false, isFalse: true},
		{value: "true", isTrue: true},
		{value: "FALSE", isFalse: true},
		{value: 1.0, isTrue: true},
		{value: 0, isFalse: true},
		{value: "maybe"},
		{value: nil},
	}

	for _, tt := range tests {
		record := map[string]any{"vaccinated": tt.value}

		assert.Equal(t, tt.isTrue, Evaluate(single(models.Condition{Field: "vaccinated", Operator: OpIsTrue}), record), "is_true(%v)", tt.value)
		assert.Equal(t, tt.isFalse, Evaluate(single(models.Condition{Field: "vaccinated", Operator: OpIsFalse}), record), "is_false(%v)", tt.value)
	}
}

func TestArrayOperators(t *testing.T) {
	record := map[string]any{"tags": []any{"VIP ", "senior"}, "name": "Rex"}

	assert.True(t, Evaluate(single(models.Condition{Field: "tags", Operator: OpHasAny, Values: []any{"vip", "puppy"}}), record))
	assert.False(t, Evaluate(single(models.Condition{Field: "tags", Operator: OpHasAll, Values: []any{"vip", "puppy"}}), record))
	assert.True(t, Evaluate(single(models.Condition{Field: "tags", Operator: OpHasAll, Value: []any{"vip", "Senior"}}), record))
	assert.True(t, Evaluate(single(models.Condition{Field: "tags", Operator: OpHasNone, Values: []any{"puppy"}}), record))

	// Both sides must be arrays.
	assert.False(t, Evaluate(single(models.Condition{Field: "name", Operator: OpHasAny, Values: []any{"rex"}}), record))
	assert.False(t, Evaluate(single(models.Condition{Field: "tags", Operator: OpHasNone, Value: "puppy"}), record))
}

func TestUnknownOperator(t *testing.T) {
	var seen []string

	e := &Evaluator{OnUnknownOperator: func(cond models.Condition) { seen = append(seen, cond.Operator) }}
	cfg := single(models.Condition{Field: "species", Operator: "looks_like", Value: "dog"})

	assert.False(t, e.Evaluate(cfg, map[string]any{"species": "dog"}))
	assert.Equal(t, []string{"looks_like"}, seen)
	assert.Equal(t, []string{"looks_like"}, UnknownOperators(cfg))
	assert.Empty(t, UnknownOperators(single(models.Condition{Field: "x", Operator: OpIsKnown})))
}

func TestEvaluate_RecordTypeTag(t *testing.T) {
	record := models.Record{"id": "p1", "species": "dog"}.WithType(models.RecordTypePet)

	cfg := single(models.Condition{Field: "record_type", Operator: OpIsEqualToAny, Values: []any{"pet"}})
	assert.True(t, Evaluate(cfg, record))
}
