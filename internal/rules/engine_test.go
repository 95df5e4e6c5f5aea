package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(4, nil)
	require.NoError(t, err)
	return e
}

func TestEngine_EmptyTableEvaluatesFalse(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Compile("question:always", NewDecisionTable(nil)))

	ok, err := e.Evaluate("question:always", map[string]any{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_SimpleEquality(t *testing.T) {
	e := newTestEngine(t)
	table := NewDecisionTable([]Rule{
		{Conditions: map[string]Condition{"citizenship_type": {Operator: OpEquals, Value: "US_CITIZEN"}}, Output: true},
	})
	require.NoError(t, e.Compile("question:citizenship", table))

	ok, err := e.Evaluate("question:citizenship", map[string]any{"citizenship_type": "US_CITIZEN"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate("question:citizenship", map[string]any{"citizenship_type": "FOREIGN_NATIONAL"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_MissingFieldTreatedAsNull(t *testing.T) {
	e := newTestEngine(t)
	table := NewDecisionTable([]Rule{
		{Conditions: map[string]Condition{"co_borrower_pid": {Operator: OpEquals, Value: nil}}, Output: true},
	})
	require.NoError(t, e.Compile("question:no-coborrower", table))

	ok, err := e.Evaluate("question:no-coborrower", map[string]any{})
	require.NoError(t, err)
	require.True(t, ok, "a field absent from the context must compare equal to null")
}

func TestEngine_AndRowRequiresAllConditions(t *testing.T) {
	e := newTestEngine(t)
	table := NewDecisionTable([]Rule{
		{Conditions: map[string]Condition{
			"citizenship_type": {Operator: OpEquals, Value: "US_CITIZEN"},
			"age":              {Operator: OpGreaterEq, Value: 18.0},
		}, Output: true},
	})
	require.NoError(t, e.Compile("question:and", table))

	ok, err := e.Evaluate("question:and", map[string]any{"citizenship_type": "US_CITIZEN", "age": 21.0})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate("question:and", map[string]any{"citizenship_type": "US_CITIZEN", "age": 10.0})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_FirstHitPolicy(t *testing.T) {
	e := newTestEngine(t)
	table := NewDecisionTable([]Rule{
		{Conditions: map[string]Condition{"loan_purpose": {Operator: OpEquals, Value: "PURCHASE"}}, Output: true},
		{Conditions: map[string]Condition{"loan_purpose": {Operator: OpEquals, Value: "REFINANCE"}}, Output: true},
	})
	require.NoError(t, e.Compile("question:any", table))

	ok, err := e.Evaluate("question:any", map[string]any{"loan_purpose": "REFINANCE"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEngine_NumericComparisonTypeMismatchDoesNotMatch(t *testing.T) {
	e := newTestEngine(t)
	table := NewDecisionTable([]Rule{
		{Conditions: map[string]Condition{"age": {Operator: OpGreaterEq, Value: 18.0}}, Output: true},
	})
	require.NoError(t, e.Compile("question:age", table))

	ok, err := e.Evaluate("question:age", map[string]any{"age": "not-a-number"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_EvaluateBatch(t *testing.T) {
	e := newTestEngine(t)
	table := NewDecisionTable([]Rule{
		{Conditions: map[string]Condition{"x": {Operator: OpEquals, Value: 1.0}}, Output: true},
	})
	require.NoError(t, e.Compile("question:batch", table))

	jobs := []EvalJob{
		{RuleID: "question:batch", Context: map[string]any{"x": 1.0}},
		{RuleID: "question:batch", Context: map[string]any{"x": 2.0}},
		{RuleID: "question:unknown", Context: map[string]any{}},
	}
	results := e.EvaluateBatch(context.Background(), jobs)
	require.Equal(t, []bool{true, false, false}, results)
}

func TestEngine_RulesCount(t *testing.T) {
	e := newTestEngine(t)
	require.Equal(t, 0, e.RulesCount())
	require.NoError(t, e.Compile("question:a", NewDecisionTable(nil)))
	require.Equal(t, 1, e.RulesCount())
}
