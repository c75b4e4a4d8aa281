// Package structured extracts JSON records from model output, validates them
// against a declared shape and repairs length violations.
package structured

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is the JSON type a field must hold.
type Type int

const (
	TypeString Type = iota
	TypeNumber
	TypeInteger
	TypeBool
	TypeList
	TypeObject
	TypeAny
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeInteger:
		return "integer"
	case TypeBool:
		return "boolean"
	case TypeList:
		return "array"
	case TypeObject:
		return "object"
	default:
		return "any"
	}
}

// Field declares one named value and its constraints. Zero bounds are
// unbounded.
type Field struct {
	Name        string
	Type        Type
	Optional    bool
	Description string

	MinLength int
	MaxLength int
	MinItems  int
	MaxItems  int
	Min       *float64
	Max       *float64
	Enum      []string

	// Items constrains list elements.
	Items *Field
	// Shape describes nested objects.
	Shape *Shape
}

// Shape is a named set of fields. Unknown keys in a record are ignored.
type Shape struct {
	Name   string
	Fields []Field
}

// NewShape declares a shape.
func NewShape(name string, fields ...Field) *Shape {
	return &Shape{Name: name, Fields: fields}
}

// Field returns the declaration for name.
func (s *Shape) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// String declares a string field.
func String(name string) Field { return Field{Name: name, Type: TypeString} }

// Number declares a floating point field.
func Number(name string) Field { return Field{Name: name, Type: TypeNumber} }

// Integer declares an integral field.
func Integer(name string) Field { return Field{Name: name, Type: TypeInteger} }

// Bool declares a boolean field.
func Bool(name string) Field { return Field{Name: name, Type: TypeBool} }

// Any declares a field of unconstrained type.
func Any(name string) Field { return Field{Name: name, Type: TypeAny} }

// List declares a list whose elements satisfy items.
func List(name string, items Field) Field {
	return Field{Name: name, Type: TypeList, Items: &items}
}

// Object declares a nested object.
func Object(name string, shape *Shape) Field {
	return Field{Name: name, Type: TypeObject, Shape: shape}
}

// Length bounds a string's length in characters.
func (f Field) Length(min, max int) Field {
	f.MinLength, f.MaxLength = min, max
	return f
}

// Size bounds a list's item count.
func (f Field) Size(min, max int) Field {
	f.MinItems, f.MaxItems = min, max
	return f
}

// Range bounds a numeric value, inclusive.
func (f Field) Range(min, max float64) Field {
	f.Min, f.Max = &min, &max
	return f
}

// OneOf restricts a string to the given values.
func (f Field) OneOf(values ...string) Field {
	f.Enum = append([]string(nil), values...)
	return f
}

// Opt marks the field as optional. Optional fields may be absent or null.
func (f Field) Opt() Field {
	f.Optional = true
	return f
}

// Describe attaches a description used in prompt schemas.
func (f Field) Describe(desc string) Field {
	f.Description = desc
	return f
}

// JSONSchema renders the shape as a JSON Schema object, used both for tool
// parameter declarations and for format instructions in prompts.
func (s *Shape) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		props[f.Name] = f.jsonSchema()
		if !f.Optional {
			required = append(required, f.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (f Field) jsonSchema() map[string]interface{} {
	if f.Type == TypeObject && f.Shape != nil {
		schema := f.Shape.JSONSchema()
		if f.Description != "" {
			schema["description"] = f.Description
		}
		return schema
	}

	schema := map[string]interface{}{}
	if f.Type != TypeAny {
		schema["type"] = f.Type.String()
	}
	if f.Description != "" {
		schema["description"] = f.Description
	}
	if f.MinLength > 0 {
		schema["minLength"] = f.MinLength
	}
	if f.MaxLength > 0 {
		schema["maxLength"] = f.MaxLength
	}
	if f.MinItems > 0 {
		schema["minItems"] = f.MinItems
	}
	if f.MaxItems > 0 {
		schema["maxItems"] = f.MaxItems
	}
	if f.Min != nil {
		schema["minimum"] = *f.Min
	}
	if f.Max != nil {
		schema["maximum"] = *f.Max
	}
	if len(f.Enum) > 0 {
		schema["enum"] = f.Enum
	}
	if f.Type == TypeList && f.Items != nil {
		schema["items"] = f.Items.jsonSchema()
	}
	return schema
}

// FormatInstructions returns the prompt fragment asking for a JSON object
// that matches the shape.
func (s *Shape) FormatInstructions() string {
	schema, err := json.MarshalIndent(s.JSONSchema(), "", "  ")
	if err != nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Respond with a single JSON object for %s that conforms to this JSON schema.\n", s.Name)
	b.WriteString("Respect every length, item count and range constraint. Do not add commentary outside the JSON.\n\n")
	b.WriteString("```json\n")
	b.Write(schema)
	b.WriteString("\n```")
	return b.String()
}
