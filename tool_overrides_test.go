package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverrides(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadToolOverridesFromPath(t *testing.T) {
	path := writeOverrides(t, `{
		"tools": {
			"replace_selected_text": {
				"description": "Replace the selection",
				"annotations": {"destructiveHint": true}
			}
		},
		"master": {
			"enabled": true,
			"tools": {
				"*": {"annotations": {"openWorldHint": false}},
				"replace_selected_text": {
					"description": "master description",
					"annotations": {"title": "Replace"}
				}
			}
		}
	}`)

	set, err := loadToolOverridesFromPath(path)
	require.NoError(t, err)
	require.NotNil(t, set)
	require.NotNil(t, set.Master)
	require.NotNil(t, set.Master.Enabled)
	assert.True(t, *set.Master.Enabled)

	replace := set.ToolOverrides["replace_selected_text"]
	require.NotNil(t, replace)
	require.NotNil(t, replace.Description)
	assert.Equal(t, "Replace the selection", *replace.Description, "top-level entry wins over master")
	require.NotNil(t, replace.Annotations)
	assert.Equal(t, "Replace", *replace.Annotations.Title)
	assert.True(t, *replace.Annotations.DestructiveHint)

	wildcard := set.ToolOverrides["*"]
	require.NotNil(t, wildcard)
	assert.False(t, *wildcard.Annotations.OpenWorldHint)
}

func TestLoadToolOverridesEmptyInputs(t *testing.T) {
	set, err := loadToolOverridesFromPath("  ")
	require.NoError(t, err)
	assert.Nil(t, set)

	set, err = loadToolOverridesFromPath(writeOverrides(t, `{}`))
	require.NoError(t, err)
	assert.Nil(t, set)

	_, err = loadToolOverridesFromPath(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = loadToolOverridesFromPath(writeOverrides(t, `{"tools":`))
	assert.ErrorContains(t, err, "parse override file")
}

func TestToolEnabledPrecedence(t *testing.T) {
	off, on := false, true
	assert.True(t, toolEnabled(nil, "anything"))

	set := &ToolOverrideSet{
		Master: &toolOverrideFragment{Enabled: &off},
		ToolOverrides: map[string]*ToolOverrideConfig{
			"build_project": {Enabled: &on},
		},
	}
	assert.False(t, toolEnabled(set, "get_open_in_editor_file_text"))
	assert.True(t, toolEnabled(set, "build_project"))

	set.ToolOverrides["*"] = &ToolOverrideConfig{Enabled: &on}
	assert.True(t, toolEnabled(set, "get_open_in_editor_file_text"), "wildcard beats master")

	set.ToolOverrides["run_configuration"] = &ToolOverrideConfig{Enabled: &off}
	assert.False(t, toolEnabled(set, "run_configuration"), "tool entry beats wildcard")
}

func TestOverrideForLayersWildcard(t *testing.T) {
	general, specific := "general", "specific"
	readOnly := true
	set := &ToolOverrideSet{ToolOverrides: map[string]*ToolOverrideConfig{
		"*":     {Description: &general, Annotations: &AnnotationOverrideConfig{ReadOnlyHint: &readOnly}},
		"build": {Description: &specific},
	}}

	cfg := overrideFor(set, "build")
	require.NotNil(t, cfg)
	assert.Equal(t, "specific", *cfg.Description)
	require.NotNil(t, cfg.Annotations)
	assert.True(t, *cfg.Annotations.ReadOnlyHint)

	cfg = overrideFor(set, "other")
	require.NotNil(t, cfg)
	assert.Equal(t, "general", *cfg.Description)

	assert.Nil(t, overrideFor(nil, "build"))
	assert.Nil(t, overrideFor(&ToolOverrideSet{}, "build"))
}

func TestMergeToolOverrideMapsCopies(t *testing.T) {
	first, second := "first", "second"
	base := map[string]*ToolOverrideConfig{"a": {Description: &first}}
	extra := map[string]*ToolOverrideConfig{"a": {Description: &second}, "b": {}}

	merged := mergeToolOverrideMaps(base, extra)
	require.Len(t, merged, 2)
	assert.Equal(t, "second", *merged["a"].Description)
	assert.Equal(t, "first", *base["a"].Description, "inputs are not mutated")

	*merged["a"].Description = "changed"
	assert.Equal(t, "second", second)

	assert.Nil(t, mergeToolOverrideMaps(nil, nil))
}
