package main

import (
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

type argKind int

const (
	argAny argKind = iota
	argString
	argNumber
	argBoolean
	argArray
)

func (k argKind) String() string {
	switch k {
	case argString:
		return "string"
	case argNumber:
		return "number"
	case argBoolean:
		return "boolean"
	case argArray:
		return "array"
	default:
		return "any"
	}
}

// kindFor is total: anything outside the known primitive names is argAny.
func kindFor(schemaType any) argKind {
	name, _ := schemaType.(string)
	switch name {
	case "string":
		return argString
	case "number":
		return argNumber
	case "boolean":
		return argBoolean
	case "array":
		return argArray
	default:
		return argAny
	}
}

type argField struct {
	Kind        argKind
	Required    bool
	Description string
}

// argShape is the coerced view of a tool's input schema.
type argShape map[string]argField

// shapeFromSchema maps an IDE input schema onto argShape. Only a schema
// declaring type "object" with properties yields fields.
func shapeFromSchema(schema map[string]any) argShape {
	shape := argShape{}
	if t, _ := schema["type"].(string); t != "object" {
		return shape
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return shape
	}

	required := make(map[string]bool)
	if list, ok := schema["required"].([]any); ok {
		for _, item := range list {
			if name, ok := item.(string); ok {
				required[name] = true
			}
		}
	}

	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		field := argField{Kind: argAny, Required: required[name]}
		if prop != nil {
			field.Kind = kindFor(prop["type"])
			field.Description, _ = prop["description"].(string)
		}
		shape[name] = field
	}
	return shape
}

// inputSchema renders the shape back as the schema advertised to clients.
func (s argShape) inputSchema() mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: make(map[string]any, len(s)),
	}
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := s[name]
		prop := map[string]any{}
		switch field.Kind {
		case argString, argNumber, argBoolean:
			prop["type"] = field.Kind.String()
		case argArray:
			prop["type"] = "array"
			prop["items"] = map[string]any{}
		}
		if field.Description != "" {
			prop["description"] = field.Description
		}
		schema.Properties[name] = prop
		if field.Required {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

// validate checks required presence and primitive kinds. Unknown keys pass
// through untouched.
func (s argShape) validate(args map[string]any) error {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := s[name]
		value, present := args[name]
		if !present || value == nil {
			if field.Required {
				return fmt.Errorf("missing required argument %q", name)
			}
			continue
		}
		if !field.Kind.accepts(value) {
			return fmt.Errorf("argument %q must be %s, got %T", name, field.Kind, value)
		}
	}
	return nil
}

func (k argKind) accepts(value any) bool {
	switch k {
	case argString:
		_, ok := value.(string)
		return ok
	case argNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			return true
		}
		return false
	case argBoolean:
		_, ok := value.(bool)
		return ok
	case argArray:
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}
