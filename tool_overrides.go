package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type AnnotationOverrideConfig struct {
	Title           *string `json:"title,omitempty"`
	ReadOnlyHint    *bool   `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool   `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool   `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool   `json:"openWorldHint,omitempty"`
}

type ToolOverrideConfig struct {
	Enabled     *bool                     `json:"enabled,omitempty"`
	Description *string                   `json:"description,omitempty"`
	Annotations *AnnotationOverrideConfig `json:"annotations,omitempty"`
}

type toolOverrideFile struct {
	Tools  map[string]*ToolOverrideConfig `json:"tools,omitempty"`
	Master *toolOverrideFragment          `json:"master,omitempty"`
}

type toolOverrideFragment struct {
	Enabled *bool                          `json:"enabled,omitempty"`
	Tools   map[string]*ToolOverrideConfig `json:"tools,omitempty"`
}

// ToolOverrideSet is the merged view of an overrides file. Per-tool entries
// from the master block are folded into ToolOverrides with the top-level
// "tools" block winning.
type ToolOverrideSet struct {
	ToolOverrides map[string]*ToolOverrideConfig
	Master        *toolOverrideFragment
}

func loadToolOverridesFromPath(path string) (*ToolOverrideSet, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	normalized, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve override path: %w", err)
	}
	data, err := os.ReadFile(normalized)
	if err != nil {
		return nil, err
	}
	var raw toolOverrideFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse override file %s: %w", normalized, err)
	}
	set := &ToolOverrideSet{}
	var masterTools map[string]*ToolOverrideConfig
	if raw.Master != nil {
		set.Master = copyFragment(raw.Master)
		masterTools = raw.Master.Tools
	}
	set.ToolOverrides = mergeToolOverrideMaps(masterTools, raw.Tools)
	if len(set.ToolOverrides) == 0 && set.Master == nil {
		return nil, nil
	}
	return set, nil
}

func mergeToolOverrideInto(dest map[string]*ToolOverrideConfig, src map[string]*ToolOverrideConfig) {
	if len(src) == 0 || dest == nil {
		return
	}
	for name, cfg := range src {
		if cfg == nil {
			continue
		}
		copyCfg := copyToolOverrideConfig(cfg)
		if existing, ok := dest[name]; ok && existing != nil {
			dest[name] = mergeOverrideConfig(existing, copyCfg)
		} else {
			dest[name] = copyCfg
		}
	}
}

func mergeToolOverrideMaps(base, extra map[string]*ToolOverrideConfig) map[string]*ToolOverrideConfig {
	if len(extra) == 0 {
		return copyToolOverrideMap(base)
	}
	result := copyToolOverrideMap(base)
	if result == nil {
		result = make(map[string]*ToolOverrideConfig)
	}
	mergeToolOverrideInto(result, extra)
	return result
}

func copyToolOverrideMap(in map[string]*ToolOverrideConfig) map[string]*ToolOverrideConfig {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]*ToolOverrideConfig, len(in))
	for k, v := range in {
		out[k] = copyToolOverrideConfig(v)
	}
	return out
}

func copyToolOverrideConfig(in *ToolOverrideConfig) *ToolOverrideConfig {
	if in == nil {
		return nil
	}
	out := &ToolOverrideConfig{
		Enabled:     copyBoolPointer(in.Enabled),
		Description: copyStringPointer(in.Description),
	}
	if in.Annotations != nil {
		out.Annotations = &AnnotationOverrideConfig{
			Title:           copyStringPointer(in.Annotations.Title),
			ReadOnlyHint:    copyBoolPointer(in.Annotations.ReadOnlyHint),
			DestructiveHint: copyBoolPointer(in.Annotations.DestructiveHint),
			IdempotentHint:  copyBoolPointer(in.Annotations.IdempotentHint),
			OpenWorldHint:   copyBoolPointer(in.Annotations.OpenWorldHint),
		}
	}
	return out
}

func mergeOverrideConfig(base, extra *ToolOverrideConfig) *ToolOverrideConfig {
	if base == nil {
		return copyToolOverrideConfig(extra)
	}
	result := copyToolOverrideConfig(base)
	if extra == nil {
		return result
	}
	if extra.Annotations != nil {
		if result.Annotations == nil {
			result.Annotations = &AnnotationOverrideConfig{}
		}
		if extra.Annotations.Title != nil {
			result.Annotations.Title = copyStringPointer(extra.Annotations.Title)
		}
		if extra.Annotations.ReadOnlyHint != nil {
			result.Annotations.ReadOnlyHint = copyBoolPointer(extra.Annotations.ReadOnlyHint)
		}
		if extra.Annotations.DestructiveHint != nil {
			result.Annotations.DestructiveHint = copyBoolPointer(extra.Annotations.DestructiveHint)
		}
		if extra.Annotations.IdempotentHint != nil {
			result.Annotations.IdempotentHint = copyBoolPointer(extra.Annotations.IdempotentHint)
		}
		if extra.Annotations.OpenWorldHint != nil {
			result.Annotations.OpenWorldHint = copyBoolPointer(extra.Annotations.OpenWorldHint)
		}
	}
	if extra.Enabled != nil {
		result.Enabled = copyBoolPointer(extra.Enabled)
	}
	if extra.Description != nil {
		result.Description = copyStringPointer(extra.Description)
	}
	return result
}

func copyBoolPointer(in *bool) *bool {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func copyStringPointer(in *string) *string {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func copyFragment(src *toolOverrideFragment) *toolOverrideFragment {
	if src == nil {
		return nil
	}
	return &toolOverrideFragment{
		Enabled: copyBoolPointer(src.Enabled),
		Tools:   copyToolOverrideMap(src.Tools),
	}
}

// toolEnabled resolves the enabled flag: master switch, then the "*"
// entry, then the tool's own entry.
func toolEnabled(set *ToolOverrideSet, toolName string) bool {
	if set == nil {
		return true
	}
	enabled := true
	if set.Master != nil && set.Master.Enabled != nil {
		enabled = *set.Master.Enabled
	}
	if cfg, ok := set.ToolOverrides["*"]; ok && cfg != nil && cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}
	if cfg, ok := set.ToolOverrides[toolName]; ok && cfg != nil && cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}
	return enabled
}

// overrideFor merges the "*" entry under the tool's own entry.
func overrideFor(set *ToolOverrideSet, toolName string) *ToolOverrideConfig {
	if set == nil {
		return nil
	}
	return mergeOverrideConfig(set.ToolOverrides["*"], set.ToolOverrides[toolName])
}
