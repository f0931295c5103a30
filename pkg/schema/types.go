package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type validates a single value.
type Type interface {
	Name() string
	Validate(value any) error
}

type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// JSON numbers decode as float64.
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got fractional number %v", v)
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// ObjectType accepts decoded JSON objects.
type ObjectType struct{}

func (t *ObjectType) Name() string { return "object" }

func (t *ObjectType) Validate(value any) error {
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("expected object, got %T", value)
	}
	return nil
}

// AnyType accepts every non-nil value.
type AnyType struct{}

func (t *AnyType) Name() string { return "any" }

func (t *AnyType) Validate(value any) error {
	if value == nil {
		return fmt.Errorf("expected a value, got null")
	}
	return nil
}

// SliceType validates every element against elem.
type SliceType struct {
	elem Type
}

func (t *SliceType) Name() string { return "[" + t.elem.Name() + "]" }

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected array, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func String() Type { return &StringType{} }
func Int() Type    { return &IntType{} }
func Float() Type  { return &FloatType{} }
func Bool() Type   { return &BoolType{} }
func Object() Type { return &ObjectType{} }
func Any() Type    { return &AnyType{} }

// Slice returns an array type of elem.
func Slice(elem Type) Type { return &SliceType{elem: elem} }

// ParseType converts a type string such as "int" or "[string]".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && s[0] == '[' && s[len(s)-1] == ']' {
		elem, err := ParseType(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}
	switch s {
	case "string":
		return String(), nil
	case "int", "integer":
		return Int(), nil
	case "float", "number":
		return Float(), nil
	case "bool", "boolean":
		return Bool(), nil
	case "object":
		return Object(), nil
	case "any":
		return Any(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %q", s)
	}
}

// ParseTypeMap converts field names to type strings into a Schema.
func ParseTypeMap(types map[string]string) (Schema, error) {
	out := make(Schema, len(types))
	for key, s := range types {
		t, err := ParseType(s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out[key] = t
	}
	return out, nil
}
