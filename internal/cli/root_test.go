package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "containersync", cmd.Use)
	assert.Contains(t, cmd.Long, "event log")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"import", "report", "update-containers", "repoint-instances", "purge-jobs"}

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
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	repoFlag := cmd.PersistentFlags().Lookup("repo-id")
	require.NotNil(t, repoFlag)
	assert.Equal(t, "2", repoFlag.DefValue)
}

func TestImportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	importCmd, _, err := cmd.Find([]string{"import"})
	require.NoError(t, err)

	for _, name := range []string{"skip-via-log", "skip-via-db", "mirror-db", "log-file", "layout-file", "chunk-size"} {
		assert.NotNil(t, importCmd.Flags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "100", importCmd.Flags().Lookup("chunk-size").DefValue)
}

func TestLogFileDefaults(t *testing.T) {
	cmd := NewRootCommand()
	tests := map[string]string{
		"import":            "import_container_data.log",
		"update-containers": "update_containers.log",
		"repoint-instances": "fix_top_containers.log",
		"purge-jobs":        "remove_urn_fetcher_jobs.log",
	}
	for name, want := range tests {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, want, sub.Flags().Lookup("log-file").DefValue, name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "report", "--format", "yaml", "ingest.log")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}
