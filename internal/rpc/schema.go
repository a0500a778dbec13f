// Package rpc implements the control-plane dispatch contract: every exposed
// operation declares a parameter schema, inbound requests are validated
// against it before any handler runs, and handler failures are converted to
// structured error responses so the transport connection survives.
package rpc

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FieldType is the declared type of one schema field.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeInt        FieldType = "int"
	TypeNumber     FieldType = "number"
	TypeBool       FieldType = "bool"
	TypeObject     FieldType = "object"
	TypeStringList FieldType = "string_list"
)

// Field declares constraints for one parameter.
type Field struct {
	Type     FieldType
	Required bool
	Enum     []string // string fields only
	Min      *float64 // numeric fields only
	Max      *float64
}

// Schema maps parameter names to their declared constraints.
type Schema map[string]Field

// Validate checks raw JSON-decoded params against the schema and returns the
// human-readable list of violated constraints, empty when valid. Unknown
// parameters are violations: callers get told exactly what the method takes.
func (s Schema) Validate(params map[string]any) []string {
	var violations []string

	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := s[name]
		value, present := params[name]
		if !present || value == nil {
			if field.Required {
				violations = append(violations, fmt.Sprintf("%s: required parameter missing", name))
			}
			continue
		}
		violations = append(violations, field.check(name, value)...)
	}

	unknown := make([]string, 0)
	for name := range params {
		if _, declared := s[name]; !declared {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		violations = append(violations, fmt.Sprintf("%s: unknown parameter", name))
	}

	return violations
}

func (f Field) check(name string, value any) []string {
	switch f.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("%s: expected string", name)}
		}
		if len(f.Enum) > 0 && !contains(f.Enum, str) {
			return []string{fmt.Sprintf("%s: must be one of [%s]", name, strings.Join(f.Enum, ", "))}
		}
	case TypeInt:
		num, ok := value.(float64)
		if !ok || num != math.Trunc(num) {
			return []string{fmt.Sprintf("%s: expected integer", name)}
		}
		return f.checkRange(name, num)
	case TypeNumber:
		num, ok := value.(float64)
		if !ok {
			return []string{fmt.Sprintf("%s: expected number", name)}
		}
		return f.checkRange(name, num)
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return []string{fmt.Sprintf("%s: expected boolean", name)}
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return []string{fmt.Sprintf("%s: expected object", name)}
		}
	case TypeStringList:
		list, ok := value.([]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected array of strings", name)}
		}
		for i, item := range list {
			if _, ok := item.(string); !ok {
				return []string{fmt.Sprintf("%s[%d]: expected string", name, i)}
			}
		}
	}
	return nil
}

func (f Field) checkRange(name string, num float64) []string {
	if f.Min != nil && num < *f.Min {
		return []string{fmt.Sprintf("%s: must be >= %g", name, *f.Min)}
	}
	if f.Max != nil && num > *f.Max {
		return []string{fmt.Sprintf("%s: must be <= %g", name, *f.Max)}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Typed accessors for validated params. Safe only after Validate passed.

func paramString(params map[string]any, name string) string {
	s, _ := params[name].(string)
	return s
}

func paramInt(params map[string]any, name string, fallback int) int {
	if n, ok := params[name].(float64); ok {
		return int(n)
	}
	return fallback
}

func paramStringList(params map[string]any, name string) []string {
	raw, ok := params[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func paramObject(params map[string]any, name string) map[string]any {
	obj, _ := params[name].(map[string]any)
	return obj
}
