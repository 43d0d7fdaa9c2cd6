package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const template = `
name: hello
llm: mock
state_defs: [State]
nodes:
  greet:
    type: prompt
    template: "hello ${who}"
    sink: output
    next: END
entry_point: greet
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.yaml")
	require.NoError(t, os.WriteFile(path, []byte(template), 0o644))

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "arbor version ")

	// Flag values persist across executions of rootCmd, so the run without
	// a binding goes first.
	_, err = execute(t, "validate", path)
	assert.ErrorContains(t, err, "who")

	out, err = execute(t, "validate", path, "--bind", "who=world")
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow 'hello' is valid")

	out, err = execute(t, "graph", path, "--bind", "who=world")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	out, err = execute(t, "run", path, "--bind", "who=world", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"output":"hello world"`)
}

func TestMCPCommandTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.yaml")
	require.NoError(t, os.WriteFile(path, []byte(template), 0o644))

	_, err := execute(t, "mcp", path, "--bind", "who=world", "--transport", "smoke")
	assert.ErrorContains(t, err, "unknown transport")
}
