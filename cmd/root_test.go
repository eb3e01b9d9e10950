package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, n := range []string{"run", "history", "version", "completion"} {
		assert.True(t, names[n], "missing command %s", n)
	}
}

func TestVersionCommand(t *testing.T) {
	var b bytes.Buffer
	RootCmd.SetOut(&b)
	RootCmd.SetArgs([]string{"version"})
	defer RootCmd.SetArgs(nil)
	require.NoError(t, RootCmd.Execute())
	assert.Contains(t, b.String(), "version: unknown")
}

func TestBashCompletion(t *testing.T) {
	var b bytes.Buffer
	RootCmd.SetOut(&b)
	RootCmd.SetArgs([]string{"completion", "bash"})
	defer RootCmd.SetArgs(nil)
	require.NoError(t, RootCmd.Execute())
	assert.Contains(t, b.String(), "autoproc")
}
