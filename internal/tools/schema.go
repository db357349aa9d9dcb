package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// FieldType is the JSON type of an argument
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
)

// Context bindings a field may declare; missing arguments are filled from these
const (
	BindDestination = "destination"
	BindOrigin      = "origin"
	BindStartDate   = "dates.start"
	BindEndDate     = "dates.end"
	BindTravelers   = "travelers"
	BindInterests   = "interests"
	BindBudget      = "budget"
)

// Field describes one argument
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Default     interface{}
	ContextKey  string
	// Min is the smallest accepted value of an integer field
	Min *int
}

// maxExactInt bounds the float64 values that convert to int without loss
const maxExactInt = 1 << 53

func intPtr(n int) *int { return &n }

// Schema is a tool's named argument list
type Schema struct {
	Fields []Field
}

// Args are decoded tool arguments
type Args map[string]interface{}

// ParseArgs decodes a JSON object; empty input yields empty args
func ParseArgs(raw string) (Args, error) {
	args := Args{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	return args, nil
}

// String returns a string argument or ""
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns an integer argument or 0
func (a Args) Int(key string) int {
	n, _ := a[key].(int)
	return n
}

// Bool returns a boolean argument or false
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Strings returns a string list argument
func (a Args) Strings(key string) []string {
	list, _ := a[key].([]string)
	return list
}

// JSONSchema renders the schema as a JSON-schema object for model tool definitions
func (s Schema) JSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]interface{}{
			"type":        string(f.Type),
			"description": f.Description,
		}
		if f.Type == TypeArray {
			prop["items"] = map[string]interface{}{"type": "string"}
		}
		if f.Default != nil {
			prop["default"] = f.Default
		}
		if f.Min != nil {
			prop["minimum"] = *f.Min
		}
		properties[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// FillFromContext returns args with every missing context-bound field taken from tc
func (s Schema) FillFromContext(args Args, tc repository.TripContext) Args {
	filled := make(Args, len(args))
	for k, v := range args {
		filled[k] = v
	}
	for _, f := range s.Fields {
		if f.ContextKey == "" || !isMissing(filled[f.Name]) {
			continue
		}
		if v := contextValue(tc, f.ContextKey); v != nil {
			filled[f.Name] = v
		}
	}
	return filled
}

// Validate applies defaults, coerces JSON values to the declared types and checks
// required fields. Unknown arguments are dropped.
func (s Schema) Validate(args Args) (Args, error) {
	out := make(Args, len(s.Fields))
	var problems []string
	for _, f := range s.Fields {
		raw, present := args[f.Name]
		if !present || isMissing(raw) {
			if f.Default != nil {
				out[f.Name] = f.Default
				continue
			}
			if f.Required {
				problems = append(problems, fmt.Sprintf("missing required argument %q", f.Name))
			}
			continue
		}
		v, err := coerce(f.Type, raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("argument %q: %v", f.Name, err))
			continue
		}
		if n, ok := v.(int); ok && f.Min != nil && n < *f.Min {
			problems = append(problems, fmt.Sprintf("argument %q: must be at least %d, got %d", f.Name, *f.Min, n))
			continue
		}
		out[f.Name] = v
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
	}
	return out, nil
}

func contextValue(tc repository.TripContext, key string) interface{} {
	switch key {
	case BindDestination:
		if tc.Destination != "" {
			return tc.Destination
		}
	case BindOrigin:
		if tc.Origin != "" {
			return tc.Origin
		}
	case BindStartDate:
		if tc.Dates != nil && tc.Dates.Start != "" {
			return tc.Dates.Start
		}
	case BindEndDate:
		if tc.Dates != nil && tc.Dates.End != "" {
			return tc.Dates.End
		}
	case BindTravelers:
		if tc.Travelers > 0 {
			return tc.Travelers
		}
	case BindInterests:
		if len(tc.Interests) > 0 {
			return append([]string(nil), tc.Interests...)
		}
	case BindBudget:
		if tc.Budget != "" {
			return tc.Budget
		}
	}
	return nil
}

func isMissing(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

func coerce(t FieldType, v interface{}) (interface{}, error) {
	switch t {
	case TypeString:
		switch x := v.(type) {
		case string:
			return strings.TrimSpace(x), nil
		case float64, int, bool:
			return fmt.Sprint(x), nil
		}
	case TypeInteger:
		switch x := v.(type) {
		case int:
			return x, nil
		case float64:
			if x == math.Trunc(x) && math.Abs(x) <= maxExactInt {
				return int(x), nil
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
				return n, nil
			}
		}
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
				return b, nil
			}
		}
	case TypeArray:
		switch x := v.(type) {
		case []string:
			return x, nil
		case []interface{}:
			out := make([]string, 0, len(x))
			for _, item := range x {
				out = append(out, fmt.Sprint(item))
			}
			return out, nil
		case string:
			parts := strings.Split(x, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}
