package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LogicOperator joins conditions within a group and groups within an
// expression. Values are normalized to upper case on decode.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// normalized maps any-cased input to the canonical operator, defaulting
// to AND for the empty value.
func (o LogicOperator) normalized() LogicOperator {
	switch strings.ToUpper(string(o)) {
	case string(LogicOr):
		return LogicOr
	default:
		return LogicAnd
	}
}

// ConditionOperator compares a contact field against a literal value.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
	OpStartsWith  ConditionOperator = "starts_with"
	OpEndsWith    ConditionOperator = "ends_with"
	OpIsEmpty     ConditionOperator = "is_empty"
	OpIsNotEmpty  ConditionOperator = "is_not_empty"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
)

// IsValid returns true if this is a recognized ConditionOperator value.
func (o ConditionOperator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpStartsWith, OpEndsWith, OpIsEmpty, OpIsNotEmpty,
		OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Condition is a single field comparison. Field names resolve against
// standard contact fields first, then custom fields, then tags.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value,omitempty"`
}

// ConditionGroup joins its conditions with LogicalOperator.
type ConditionGroup struct {
	Conditions      []Condition   `json:"conditions"`
	LogicalOperator LogicOperator `json:"logicalOperator,omitempty"`
}

// ConditionExpression is a two-level boolean tree: groups of conditions
// joined by GroupOperator. An empty expression evaluates to true.
type ConditionExpression struct {
	Groups        []ConditionGroup `json:"groups"`
	GroupOperator LogicOperator    `json:"groupOperator,omitempty"`
}

// IsEmpty reports whether the expression has no conditions at all.
func (e ConditionExpression) IsEmpty() bool {
	for _, g := range e.Groups {
		if len(g.Conditions) > 0 {
			return false
		}
	}
	return true
}

// exprWire accepts both the grouped shape and the legacy flat shape
// where a single condition sat directly on the expression object.
type exprWire struct {
	Groups        []ConditionGroup `json:"groups"`
	GroupOperator LogicOperator    `json:"groupOperator"`

	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

// UnmarshalJSON decodes an expression, migrating legacy flat payloads
// {field, operator, value} into a single-condition group. Logic
// operators are normalized to upper case.
func (e *ConditionExpression) UnmarshalJSON(b []byte) error {
	var wire exprWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if len(wire.Groups) == 0 && wire.Field != "" {
		wire.Groups = []ConditionGroup{{
			Conditions: []Condition{{
				Field:    wire.Field,
				Operator: wire.Operator,
				Value:    wire.Value,
			}},
			LogicalOperator: LogicAnd,
		}}
	}
	for i := range wire.Groups {
		wire.Groups[i].LogicalOperator = wire.Groups[i].LogicalOperator.normalized()
	}
	e.Groups = wire.Groups
	e.GroupOperator = wire.GroupOperator.normalized()
	return nil
}

func (e ConditionExpression) validate() error {
	for gi, g := range e.Groups {
		for ci, c := range g.Conditions {
			if strings.TrimSpace(c.Field) == "" {
				return fmt.Errorf("condition %d.%d: field is required", gi, ci)
			}
			if !c.Operator.IsValid() {
				return fmt.Errorf("condition %d.%d: unknown operator %q", gi, ci, c.Operator)
			}
		}
	}
	return nil
}
