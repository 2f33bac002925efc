package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x.jsonl"), expandPath("~/x.jsonl"))
	assert.Equal(t, "", expandPath(""))
	assert.True(t, filepath.IsAbs(expandPath("relative/path")))
}

func TestRootFlagDefaults(t *testing.T) {
	tests := []struct {
		flag string
		want string
	}{
		{"bind", "0.0.0.0:23517"},
		{"dump-file", ""},
		{"retention", "0"},
		{"queue-depth", "0"},
		{"merge-across-screens", "false"},
		{"journal", ""},
		{"journal-db", ""},
		{"headless", "false"},
		{"refresh-per-second", "10"},
	}
	for _, tt := range tests {
		f := rootCmd.Flags().Lookup(tt.flag)
		require.NotNil(t, f, "flag --%s not registered", tt.flag)
		assert.Equal(t, tt.want, f.DefValue, "flag --%s", tt.flag)
	}

	require.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
}

func TestSubcommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["replay"])
	assert.True(t, names["version"])
}

func TestReplayRequiresSource(t *testing.T) {
	err := runReplay(replayCmd, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "journal"))
}
