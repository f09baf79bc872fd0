package main

import "github.com/mark3labs/mcp-go/mcp"

// normalizeToolAnnotations fills every hint so persisted records diff
// cleanly; unset hints become false.
func normalizeToolAnnotations(tool mcp.Tool) map[string]any {
	existing := tool.Annotations
	annotations := make(map[string]any, 5)
	if existing.Title != "" {
		annotations["title"] = existing.Title
	}
	hints := []struct {
		key string
		val *bool
	}{
		{"readOnlyHint", existing.ReadOnlyHint},
		{"destructiveHint", existing.DestructiveHint},
		{"idempotentHint", existing.IdempotentHint},
		{"openWorldHint", existing.OpenWorldHint},
	}
	for _, h := range hints {
		annotations[h.key] = h.val != nil && *h.val
	}
	return annotations
}
