package main

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// proxyTool is one IDE tool as advertised to MCP clients, together with
// the shape incoming arguments are checked against.
type proxyTool struct {
	Tool  mcp.Tool
	Shape argShape
}

// buildProxyTools converts the IDE catalog into advertised tools, dropping
// disabled ones and applying overrides. The result is sorted by name.
func buildProxyTools(catalog []ToolDescriptor, overrides *ToolOverrideSet) []proxyTool {
	out := make([]proxyTool, 0, len(catalog))
	for _, desc := range catalog {
		if !toolEnabled(overrides, desc.Name) {
			continue
		}
		shape := shapeFromSchema(desc.InputSchema)
		tool := mcp.Tool{
			Name:        desc.Name,
			Description: desc.displayDescription(),
			InputSchema: shape.inputSchema(),
			Annotations: mcp.ToolAnnotation{Title: desc.displayTitle()},
		}
		applyToolOverride(&tool, overrideFor(overrides, desc.Name))
		out = append(out, proxyTool{Tool: tool, Shape: shape})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool.Name < out[j].Tool.Name })
	return out
}

func applyToolOverride(tool *mcp.Tool, override *ToolOverrideConfig) {
	if tool == nil || override == nil {
		return
	}
	if override.Description != nil {
		tool.Description = *override.Description
	}
	if ann := override.Annotations; ann != nil {
		if ann.Title != nil {
			tool.Annotations.Title = *ann.Title
		}
		if ann.ReadOnlyHint != nil {
			tool.Annotations.ReadOnlyHint = copyBoolPointer(ann.ReadOnlyHint)
		}
		if ann.DestructiveHint != nil {
			tool.Annotations.DestructiveHint = copyBoolPointer(ann.DestructiveHint)
		}
		if ann.IdempotentHint != nil {
			tool.Annotations.IdempotentHint = copyBoolPointer(ann.IdempotentHint)
		}
		if ann.OpenWorldHint != nil {
			tool.Annotations.OpenWorldHint = copyBoolPointer(ann.OpenWorldHint)
		}
	}
}

// toolRecord is the persisted form of an advertised tool.
func toolRecord(tool mcp.Tool) map[string]any {
	record := map[string]any{
		"name":        tool.Name,
		"inputSchema": tool.InputSchema,
		"annotations": normalizeToolAnnotations(tool),
	}
	if tool.Description != "" {
		record["description"] = tool.Description
	}
	return record
}
