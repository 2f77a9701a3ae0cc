// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"github.com/tool-mesh/mcpcore/pkg/catalog"
)

// JSONSchema mirrors the subset of JSON Schema the bridge derives from a
// ToolDescriptor's parameter list.
type JSONSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]PropSchema  `json:"properties,omitempty"`
	Required   []string               `json:"required,omitempty"`
}

// PropSchema is one property's derived schema.
type PropSchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// DeriveSchema converts a ToolDescriptor's parameter list into a JSON
// Schema object, mapping each declared constraint onto its
// JSON-Schema counterpart.
func DeriveSchema(params []catalog.ParamDescriptor) JSONSchema {
	schema := JSONSchema{Type: "object", Properties: make(map[string]PropSchema, len(params))}
	for _, p := range params {
		prop := PropSchema{
			Type:        string(p.Type),
			Description: p.Description,
			Pattern:     p.Constraints.Pattern,
			Enum:        p.Constraints.Enum,
			Default:     p.Default,
			Minimum:     p.Constraints.Min,
			Maximum:     p.Constraints.Max,
			MinLength:   p.Constraints.MinLength,
			MaxLength:   p.Constraints.MaxLength,
		}
		schema.Properties[p.Name] = prop
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}
