package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ToolDescriptor is one entry of the IDE catalog as the IDE served it.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

var errEmptyCatalog = errors.New("catalog is empty")

// parseCatalog accepts either a bare array of tools or an object with a
// "tools" array. Entries without a name are skipped.
func parseCatalog(raw string) ([]ToolDescriptor, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return nil, errEmptyCatalog
	}

	var entries []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	} else {
		var wrapped struct {
			Tools []json.RawMessage `json:"tools"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
		entries = wrapped.Tools
	}

	tools := make([]ToolDescriptor, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		var desc struct {
			ToolDescriptor
			Annotations struct {
				Title string `json:"title"`
			} `json:"annotations"`
		}
		if err := json.Unmarshal(entry, &desc); err != nil {
			continue
		}
		tool := desc.ToolDescriptor
		tool.Name = strings.TrimSpace(tool.Name)
		if tool.Name == "" {
			continue
		}
		if _, dup := seen[tool.Name]; dup {
			continue
		}
		seen[tool.Name] = struct{}{}
		if tool.Title == "" {
			tool.Title = desc.Annotations.Title
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// displayTitle falls back to the tool name.
func (t ToolDescriptor) displayTitle() string {
	if strings.TrimSpace(t.Title) != "" {
		return t.Title
	}
	return t.Name
}

func (t ToolDescriptor) displayDescription() string {
	if strings.TrimSpace(t.Description) != "" {
		return t.Description
	}
	return "Proxy tool for " + t.Name
}
