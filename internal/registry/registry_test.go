package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `agents:
  - id: butler
    description: Main assistant and router
    model: gpt-4.1
    is_router: true
    is_default: true
    tools: [read_file, write_file, message, task, delegate]
  - id: research
    description: Deep research specialist
    model: gpt-4.1-mini
    temperature: 0.3
    tools: [read_file, web]
`

func writeAgentsFile(t *testing.T, content string) (path, workspace string) {
	t.Helper()
	workspace = t.TempDir()
	path = filepath.Join(workspace, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, workspace
}

func TestLoad(t *testing.T) {
	path, ws := writeAgentsFile(t, sampleYAML)

	r, err := Load(path, ws)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	butler, ok := r.Get("butler")
	require.True(t, ok)
	assert.True(t, butler.IsRouter)
	assert.Equal(t, "gpt-4.1", butler.Model)
	assert.Contains(t, butler.Tools, "delegate")

	research, ok := r.Get("research")
	require.True(t, ok)
	assert.False(t, research.IsRouter)
	assert.InDelta(t, 0.3, research.Temperature, 1e-9)

	assert.Equal(t, "butler", r.Default().ID)
	assert.True(t, r.Contains("research"))
	assert.False(t, r.Contains("ghost"))
}

func TestLoad_MissingFileSingleAgentMode(t *testing.T) {
	ws := t.TempDir()
	r, err := Load(filepath.Join(ws, "agents.yaml"), ws)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	def := r.Default()
	assert.True(t, def.IsRouter, "single-agent mode default must be able to delegate")
}

func TestLoad_SystemPromptFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "SOUL.md"), []byte("You are terse."), 0o644))
	path := filepath.Join(ws, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`agents:
  - id: butler
    system_prompt_file: SOUL.md
`), 0o644))

	r, err := Load(path, ws)
	require.NoError(t, err)

	spec, ok := r.Get("butler")
	require.True(t, ok)
	assert.Equal(t, "You are terse.", spec.SoulText)
}

func TestLoad_Errors(t *testing.T) {
	path, ws := writeAgentsFile(t, "agents:\n  - description: nameless\n")
	_, err := Load(path, ws)
	assert.Error(t, err, "agent without id")

	path, ws = writeAgentsFile(t, "agents:\n  - id: a\n  - id: a\n")
	_, err = Load(path, ws)
	assert.Error(t, err, "duplicate id")
}

func TestList_SnapshotIsolation(t *testing.T) {
	path, ws := writeAgentsFile(t, sampleYAML)
	r, err := Load(path, ws)
	require.NoError(t, err)

	// Mutating a returned slice must not leak into the registry.
	list := r.List()
	require.Len(t, list, 2)
	list[0].Model = "tampered"

	butler, _ := r.Get("butler")
	assert.Equal(t, "gpt-4.1", butler.Model)
}

func TestReload_ReplacesWholeSnapshot(t *testing.T) {
	path, ws := writeAgentsFile(t, sampleYAML)
	r, err := Load(path, ws)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`agents:
  - id: solo
    is_default: true
`), 0o644))
	require.NoError(t, r.Reload(path, ws))

	assert.Equal(t, 1, r.Len())
	assert.False(t, r.Contains("butler"))
	assert.Equal(t, "solo", r.Default().ID)
}
