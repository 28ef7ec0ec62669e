// Package evaluator implements the pure boolean evaluation of condition
// expressions against a contact. It performs no I/O; the contact the
// caller passes in is the contact that gets judged.
package evaluator

import (
	"strconv"
	"strings"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/workflow"
)

// Evaluate walks the two-level expression tree. Groups join with the
// expression's group operator, conditions join with each group's
// logical operator, both with short-circuiting. An empty expression or
// group is vacuously true.
func Evaluate(expr workflow.ConditionExpression, c *contact.Contact) bool {
	if len(expr.Groups) == 0 {
		return true
	}
	or := expr.GroupOperator == workflow.LogicOr
	for _, g := range expr.Groups {
		v := evaluateGroup(g, c)
		if or && v {
			return true
		}
		if !or && !v {
			return false
		}
	}
	return !or
}

func evaluateGroup(g workflow.ConditionGroup, c *contact.Contact) bool {
	if len(g.Conditions) == 0 {
		return true
	}
	or := g.LogicalOperator == workflow.LogicOr
	for _, cond := range g.Conditions {
		v := evaluateCondition(cond, c)
		if or && v {
			return true
		}
		if !or && !v {
			return false
		}
	}
	return !or
}

func evaluateCondition(cond workflow.Condition, c *contact.Contact) bool {
	actual := ResolveField(c, cond.Field)
	return compare(cond.Operator, actual, cond.Value)
}

// ResolveField resolves a condition field against the contact: standard
// fields first, then custom fields by case-insensitive name, then tag
// membership ("true" when the contact has the tag). Anything else is
// the empty string.
func ResolveField(c *contact.Contact, field string) string {
	if v, ok := c.StandardField(field); ok {
		return v
	}
	if v, ok := c.CustomField(field); ok {
		return v
	}
	if c.HasTag(field) {
		return "true"
	}
	return ""
}

// compare applies one operator. String operators are case-insensitive;
// the numeric operators parse both sides as floats and yield false when
// either side is not a number.
func compare(op workflow.ConditionOperator, actual, expected string) bool {
	switch op {
	case workflow.OpEquals:
		return strings.EqualFold(actual, expected)
	case workflow.OpNotEquals:
		return !strings.EqualFold(actual, expected)
	case workflow.OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	case workflow.OpNotContains:
		return !strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	case workflow.OpStartsWith:
		return strings.HasPrefix(strings.ToLower(actual), strings.ToLower(expected))
	case workflow.OpEndsWith:
		return strings.HasSuffix(strings.ToLower(actual), strings.ToLower(expected))
	case workflow.OpIsEmpty:
		return strings.TrimSpace(actual) == ""
	case workflow.OpIsNotEmpty:
		return strings.TrimSpace(actual) != ""
	case workflow.OpGreaterThan:
		a, b, ok := parseBoth(actual, expected)
		return ok && a > b
	case workflow.OpLessThan:
		a, b, ok := parseBoth(actual, expected)
		return ok && a < b
	}
	return false
}

func parseBoth(actual, expected string) (float64, float64, bool) {
	a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	return a, b, errA == nil && errB == nil
}
