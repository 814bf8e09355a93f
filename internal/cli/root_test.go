package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{Version: "1.2.0", BuildDate: "2024-06-01"})
	require.NotNil(t, cmd)
	assert.Equal(t, "budgetkeeper", cmd.Use)
	assert.Equal(t, "1.2.0 (built 2024-06-01)", cmd.Version)

	assert.Equal(t, "N/A (built N/A)", NewRootCommand(BuildInfo{}).Version)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})
	commands := []string{"sync", "enable", "disable", "status", "import", "export", "merge", "serve"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	compression := cmd.PersistentFlags().Lookup("compression")
	require.NotNil(t, compression)
	assert.Equal(t, "true", compression.DefValue)
}

func TestEnableCommandFlags(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})
	enableCmd, _, err := cmd.Find([]string{"enable"})
	require.NoError(t, err)

	require.NotNil(t, enableCmd.Flags().Lookup("set"))
	interactive := enableCmd.Flags().Lookup("interactive")
	require.NotNil(t, interactive)
	assert.Equal(t, "true", interactive.DefValue)
}

func TestMergeCommandFlags(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{})
	mergeCmd, _, err := cmd.Find([]string{"merge"})
	require.NoError(t, err)

	direction := mergeCmd.Flags().Lookup("direction")
	require.NotNil(t, direction)
	assert.Equal(t, "both", direction.DefValue)
}
