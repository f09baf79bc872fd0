package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalogArray(t *testing.T) {
	tools, err := parseCatalog(sampleCatalog)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "get_open_in_editor_file_text", tools[0].Name)
	assert.Equal(t, "Read the open file", tools[0].Description)
	assert.Equal(t, "replace_selected_text", tools[1].Name)
	assert.Equal(t, "object", tools[1].InputSchema["type"])
}

func TestParseCatalogWrappedObject(t *testing.T) {
	tools, err := parseCatalog(`{"tools":[{"name":"a","annotations":{"title":"Tool A"}},{"name":""},{"name":"a"},{"name":" b "}]}`)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "a", tools[0].Name)
	assert.Equal(t, "Tool A", tools[0].Title)
	assert.Equal(t, "b", tools[1].Name)
}

func TestParseCatalogErrors(t *testing.T) {
	_, err := parseCatalog("  ")
	assert.ErrorIs(t, err, errEmptyCatalog)

	_, err = parseCatalog("<html>")
	assert.Error(t, err)
}

func TestToolDescriptorFallbacks(t *testing.T) {
	tool := ToolDescriptor{Name: "build"}
	assert.Equal(t, "build", tool.displayTitle())
	assert.Equal(t, "Proxy tool for build", tool.displayDescription())

	tool = ToolDescriptor{Name: "build", Title: "Build Project", Description: "Runs the build"}
	assert.Equal(t, "Build Project", tool.displayTitle())
	assert.Equal(t, "Runs the build", tool.displayDescription())
}
