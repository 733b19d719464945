// Package rules implements the dependency rule engine: "when field A equals
// value V, force field B to value W", applied on every direct field edit.
package rules

import (
	"fmt"
	"strconv"
)

// Rule forces a target field to a value when the trigger field is edited to
// the trigger value. Values are JSON scalars (string, number, bool).
type Rule struct {
	ID             string `json:"id"`
	TriggerFieldID string `json:"triggerFieldId"`
	TriggerValue   any    `json:"triggerValue"`
	TargetFieldID  string `json:"targetFieldId"`
	TargetValue    any    `json:"targetValue"`
}

// FormState is the dynamic portion of a record being edited, keyed by field
// id.
type FormState map[string]any

// Stringify coerces a scalar the way the UI compared trigger values, so a
// numeric 2 and the string "2" match. Floats render at minimal precision.
func Stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Apply sets the edited field, then applies every rule whose trigger matches
// the edit, in stored order. Matching is string-coerced, not type-strict.
// Later rules overwrite earlier ones silently. Only one hop is performed:
// forced target writes never trigger further rules. The input state is not
// mutated.
func Apply(fieldID string, value any, form FormState, ruleSet []Rule) FormState {
	next := make(FormState, len(form)+1)
	for k, v := range form {
		next[k] = v
	}
	next[fieldID] = value

	edited := Stringify(value)
	for _, rule := range ruleSet {
		if rule.TriggerFieldID != fieldID {
			continue
		}
		if Stringify(rule.TriggerValue) != edited {
			continue
		}
		next[rule.TargetFieldID] = rule.TargetValue
	}
	return next
}

// FieldSet is the set of known field ids used for validation.
type FieldSet map[string]struct{}

// Validate rejects malformed rule sets before they are saved: a rule may not
// target its own trigger field, and both ends must reference known fields.
func Validate(ruleSet []Rule, fields FieldSet) error {
	for i, rule := range ruleSet {
		if rule.TriggerFieldID == "" || rule.TargetFieldID == "" {
			return fmt.Errorf("rule %d: trigger and target fields are required", i)
		}
		if rule.TriggerFieldID == rule.TargetFieldID {
			return fmt.Errorf("rule %d: target field must differ from trigger field", i)
		}
		if _, ok := fields[rule.TriggerFieldID]; !ok {
			return fmt.Errorf("rule %d: unknown trigger field %q", i, rule.TriggerFieldID)
		}
		if _, ok := fields[rule.TargetFieldID]; !ok {
			return fmt.Errorf("rule %d: unknown target field %q", i, rule.TargetFieldID)
		}
	}
	return nil
}
