package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pingvin-e2e", cmd.Use)
	assert.Contains(t, cmd.Long, "reconstruction")
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"test", "fetch", "info", "list", "history"}

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
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	defaults := map[string]string{
		"data-host":           "https://gadgetronmrd2testdata.blob.core.windows.net/gadgetronmrd2testdata/",
		"cache-path":          "data",
		"cache-disable":       "false",
		"ignore-requirements": "[]",
		"tags":                "[]",
		"echo-log-on-failure": "false",
		"save-results":        "",
		"download-all":        "false",
		"tool":                "pingvin",
		"decoder":             "",
		"filter":              "",
		"results-db":          "",
		"work-dir":            "",
	}
	for name, want := range defaults {
		t.Run(name, func(t *testing.T) {
			flag := testCmd.Flags().Lookup(name)
			require.NotNil(t, flag)
			assert.Equal(t, want, flag.DefValue)
		})
	}
}

func TestHistoryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	dbFlag := historyCmd.Flags().Lookup("results-db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	limitFlag := historyCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "list", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCasesDir(t *testing.T) {
	assert.Equal(t, DefaultCasesDir, casesDir(nil))
	assert.Equal(t, "other", casesDir([]string{"other"}))
}
