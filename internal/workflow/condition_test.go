package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionExpression_DecodeGroupedShape(t *testing.T) {
	raw := `{
		"groups": [
			{
				"conditions": [
					{"field": "status", "operator": "equals", "value": "new"},
					{"field": "email", "operator": "is_not_empty"}
				],
				"logicalOperator": "and"
			},
			{
				"conditions": [{"field": "tag:vip", "operator": "is_not_empty"}]
			}
		],
		"groupOperator": "or"
	}`

	var e ConditionExpression
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	require.Len(t, e.Groups, 2)
	require.Len(t, e.Groups[0].Conditions, 2)
	assert.Equal(t, LogicAnd, e.Groups[0].LogicalOperator, "lowercase and should normalize")
	assert.Equal(t, LogicAnd, e.Groups[1].LogicalOperator, "missing operator defaults to AND")
	assert.Equal(t, LogicOr, e.GroupOperator, "lowercase or should normalize")
	assert.Equal(t, OpEquals, e.Groups[0].Conditions[0].Operator)
}

func TestConditionExpression_MigratesLegacyFlatShape(t *testing.T) {
	raw := `{"field": "status", "operator": "equals", "value": "qualified"}`

	var e ConditionExpression
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	require.Len(t, e.Groups, 1, "flat payload should migrate into one group")
	require.Len(t, e.Groups[0].Conditions, 1)

	c := e.Groups[0].Conditions[0]
	assert.Equal(t, "status", c.Field)
	assert.Equal(t, OpEquals, c.Operator)
	assert.Equal(t, "qualified", c.Value)
	assert.Equal(t, LogicAnd, e.Groups[0].LogicalOperator)
	assert.Equal(t, LogicAnd, e.GroupOperator)
}

func TestConditionExpression_EmptyObjectDecodesEmpty(t *testing.T) {
	var e ConditionExpression
	require.NoError(t, json.Unmarshal([]byte(`{}`), &e))
	assert.True(t, e.IsEmpty())
	assert.Equal(t, LogicAnd, e.GroupOperator)
}

func TestConditionExpression_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		expr ConditionExpression
		want bool
	}{
		{"zero value", ConditionExpression{}, true},
		{"groups with no conditions", ConditionExpression{Groups: []ConditionGroup{{}, {}}}, true},
		{
			"one condition",
			ConditionExpression{Groups: []ConditionGroup{{
				Conditions: []Condition{{Field: "status", Operator: OpEquals}},
			}}},
			false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.expr.IsEmpty())
		})
	}
}

func TestConditionExpression_Validate(t *testing.T) {
	expr := ConditionExpression{Groups: []ConditionGroup{{
		Conditions: []Condition{{Field: "", Operator: OpEquals}},
	}}}
	err := expr.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field is required")

	expr.Groups[0].Conditions[0] = Condition{Field: "status", Operator: "sorta_matches"}
	err = expr.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestConditionOperator_IsValid(t *testing.T) {
	valid := []ConditionOperator{
		OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpStartsWith, OpEndsWith, OpIsEmpty, OpIsNotEmpty,
		OpGreaterThan, OpLessThan,
	}
	for _, op := range valid {
		assert.True(t, op.IsValid(), "%s should be valid", op)
	}
	assert.False(t, ConditionOperator("matches").IsValid())
	assert.False(t, ConditionOperator("").IsValid())
}
