// Package rules evaluates ordered declarative rules against a typed field
// bag. The first rule whose conditions all match wins; no match yields the
// empty string, which callers treat as "unassigned".
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Operator spellings match the rule document format.
type Operator string

const (
	OpContains    Operator = "in"
	OpNotContains Operator = "not in"
	OpEquals      Operator = "=="
	OpIs          Operator = "is"
)

type kind int

const (
	kindString kind = iota
	kindBool
)

// Value is a field or expected value: a string or a bool. The two kinds
// never compare equal, which keeps the operator semantics well-defined
// without dynamic typing.
type Value struct {
	kind kind
	str  string
	b    bool
}

// String wraps a string value.
func String(s string) Value { return Value{kind: kindString, str: s} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: kindBool, b: b} }

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = String(s)
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = Bool(b)
		return nil
	}
	return fmt.Errorf("expect_value must be a string or bool, got %s", data)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == kindBool {
		return json.Marshal(v.b)
	}
	return json.Marshal(v.str)
}

// Condition is one field check inside a rule.
type Condition struct {
	Field    string   `json:"field_to_check"`
	Operator Operator `json:"operator"`
	Expect   Value    `json:"expect_value"`
}

// Rule maps a conjunction of conditions to an output id. Order is the
// evaluation priority; lower runs first, absent means 99.
type Rule struct {
	Conditions []Condition `json:"conditions"`
	OutputID   string      `json:"output_id"`
	Order      int         `json:"order"`
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias Rule
	a := alias{Order: 99}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Rule(a)
	return nil
}

// LoadFile reads a JSON rule document, drops exact duplicates and sorts by
// Order with the original document order as a stable tie-break.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var all []Rule
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	seen := map[string]struct{}{}
	unique := make([]Rule, 0, len(all))
	for _, rule := range all {
		key, err := json.Marshal(rule)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[string(key)]; ok {
			continue
		}
		seen[string(key)] = struct{}{}
		unique = append(unique, rule)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Order < unique[j].Order
	})
	return unique, nil
}

// Check evaluates rules in order against the field bag and returns the
// OutputID of the first rule whose conditions all hold. An empty string
// means no rule matched; that is a valid terminal outcome, not an error.
func Check(fields map[string]Value, ruleList []Rule) string {
	for _, rule := range ruleList {
		if matchAll(fields, rule.Conditions) {
			return rule.OutputID
		}
	}
	return ""
}

func matchAll(fields map[string]Value, conditions []Condition) bool {
	for _, c := range conditions {
		v, ok := fields[c.Field]
		if !ok || !matchCondition(v, c) {
			return false
		}
	}
	return true
}

func matchCondition(v Value, c Condition) bool {
	switch c.Operator {
	case OpContains:
		return bothStrings(v, c.Expect) &&
			strings.Contains(lower(v), lower(c.Expect))
	case OpNotContains:
		return bothStrings(v, c.Expect) &&
			!strings.Contains(lower(v), lower(c.Expect))
	case OpEquals:
		return bothStrings(v, c.Expect) &&
			strings.TrimSpace(lower(v)) == lower(c.Expect)
	case OpIs:
		if v.kind != c.Expect.kind {
			return false
		}
		if v.kind == kindBool {
			return v.b == c.Expect.b
		}
		return v.str == c.Expect.str
	}
	return false
}

func bothStrings(a, b Value) bool {
	return a.kind == kindString && b.kind == kindString
}

func lower(v Value) string {
	return strings.ToLower(v.str)
}
