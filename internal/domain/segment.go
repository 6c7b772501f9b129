package domain

import (
	"fmt"
	"reflect"
	"strings"
)

// SegmentLogic combines the rules of a criteria
type SegmentLogic string

const (
	SegmentLogicAnd SegmentLogic = "AND"
	SegmentLogicOr  SegmentLogic = "OR"
)

// SegmentOperator is the comparison applied by a rule
type SegmentOperator string

const (
	OperatorEquals      SegmentOperator = "equals"
	OperatorNotEquals   SegmentOperator = "not_equals"
	OperatorContains    SegmentOperator = "contains"
	OperatorNotContains SegmentOperator = "not_contains"
	OperatorIn          SegmentOperator = "in"
	OperatorNotIn       SegmentOperator = "not_in"
	OperatorGreaterThan SegmentOperator = "greater_than"
	OperatorLessThan    SegmentOperator = "less_than"
	OperatorExists      SegmentOperator = "exists"
	OperatorNotExists   SegmentOperator = "not_exists"
)

// IsKnown reports whether the operator is one the matcher implements
func (o SegmentOperator) IsKnown() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorContains, OperatorNotContains,
		OperatorIn, OperatorNotIn, OperatorGreaterThan, OperatorLessThan,
		OperatorExists, OperatorNotExists:
		return true
	}
	return false
}

// SegmentRule compares the value at a dot path of a contact with Value
type SegmentRule struct {
	Field    string          `json:"field"`
	Operator SegmentOperator `json:"operator"`
	Value    interface{}     `json:"value,omitempty"`
}

// SegmentCriteria is an ordered list of rules joined by Logic
type SegmentCriteria struct {
	Logic SegmentLogic  `json:"logic"`
	Rules []SegmentRule `json:"rules"`
}

// Validate rejects malformed criteria before anything is evaluated or queued.
// Evaluation itself never fails: an unknown operator only yields a non-match.
func (c *SegmentCriteria) Validate() error {
	switch c.Logic {
	case SegmentLogicAnd, SegmentLogicOr:
	default:
		return NewValidationError(fmt.Sprintf("invalid segment logic: %q", c.Logic))
	}

	for i, rule := range c.Rules {
		if strings.TrimSpace(rule.Field) == "" {
			return NewValidationError(fmt.Sprintf("rule %d: field is required", i))
		}
		for _, segment := range strings.Split(rule.Field, ".") {
			if segment == "" {
				return NewValidationError(fmt.Sprintf("rule %d: field %q has an empty path segment", i, rule.Field))
			}
		}
		if !rule.Operator.IsKnown() {
			return NewValidationError(fmt.Sprintf("rule %d: unknown operator %q", i, rule.Operator))
		}
		if rule.Operator == OperatorIn || rule.Operator == OperatorNotIn {
			if _, ok := ListValue(rule.Value); !ok {
				return NewValidationError(fmt.Sprintf("rule %d: %s requires an array value", i, rule.Operator))
			}
		}
	}
	return nil
}

// ListValue returns the elements of an in/not_in rule value. Any slice or array
// type is accepted so rules built in Go code need not use []interface{}.
func ListValue(v interface{}) ([]interface{}, bool) {
	if list, ok := v.([]interface{}); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}
