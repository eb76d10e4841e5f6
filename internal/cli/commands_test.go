package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roopchansinghv/pingvin/internal/testutil"
)

type session struct {
	server   *testutil.DataServer
	tool     string
	casesDir string
	cache    string
}

// newSession serves one input file with a matching and a mismatching
// reference and writes a passing and a failing case for them.
func newSession(t *testing.T) *session {
	t.Helper()

	rec := testutil.Image(0, 0, 1, 2, 3)
	input := testutil.NDJSON(t, rec)
	files := map[string][]byte{
		"input.ndjson":     input,
		"reference.ndjson": input,
		"wrong.ndjson":     testutil.NDJSON(t, testutil.Scaled(rec, 2)),
	}

	s := &session{
		server:   testutil.NewDataServer(t, files),
		tool:     testutil.WriteFakeTool(t, ""),
		casesDir: t.TempDir(),
		cache:    filepath.Join(t.TempDir(), "cache"),
	}

	doc := func(reference string) string {
		return fmt.Sprintf(`
reconstruction:
  data: input.ndjson
  checksum: %s
  args: "--config default.xml"
validation:
  reference: %s
  checksum: %s
  tests:
    - image_series: 0
`, testutil.MD5Hex(input), reference, testutil.MD5Hex(files[reference]))
	}
	for name, content := range map[string]string{
		"passing.yml": doc("reference.ndjson"),
		"failing.yml": doc("wrong.ndjson"),
	} {
		require.NoError(t, os.WriteFile(filepath.Join(s.casesDir, name), []byte(content), 0644))
	}
	return s
}

func (s *session) testArgs(extra ...string) []string {
	args := []string{"test", s.casesDir,
		"--tool", s.tool,
		"--data-host", s.server.HostURL(),
		"--cache-path", s.cache,
	}
	return append(args, extra...)
}

func TestTestCommand_Session(t *testing.T) {
	s := newSession(t)

	stdout, _, err := execute(t, s.testArgs()...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 case(s) failed", err.Error())

	assert.Contains(t, stdout, "FAIL failing\n")
	assert.Contains(t, stdout, "comparing values, norm diff:")
	assert.Contains(t, stdout, "PASS passing\n")
	assert.Contains(t, stdout, "1 passed, 1 failed, 0 skipped\n")
	assert.FileExists(t, filepath.Join(s.cache, "input.ndjson"))
}

func TestTestCommand_JSON(t *testing.T) {
	s := newSession(t)

	stdout, _, err := execute(t, s.testArgs("--format", "json", "--filter", "pass*")...)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
		Data   struct {
			Results []struct {
				Name   string `json:"name"`
				Status string `json:"status"`
			} `json:"results"`
			Passed int `json:"passed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, "passing", resp.Data.Results[0].Name)
	assert.Equal(t, "pass", resp.Data.Results[0].Status)
	assert.Equal(t, 1, resp.Data.Passed)
}

func TestTestCommand_JSONFailure(t *testing.T) {
	s := newSession(t)

	stdout, _, err := execute(t, s.testArgs("--format", "json")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string    `json:"status"`
		Error  *CLIError `json:"error"`
		Data   struct {
			Failed int `json:"failed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeFailed, resp.Error.Code)
	assert.Equal(t, "1 case(s) failed", resp.Error.Message)
	assert.Equal(t, 1, resp.Data.Failed)
}

func TestTestCommand_SkipsByTag(t *testing.T) {
	s := newSession(t)

	stdout, _, err := execute(t, s.testArgs("--tags", "nightly")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "SKIP passing (test missing tag: nightly)")
	assert.Contains(t, stdout, "0 passed, 0 failed, 2 skipped\n")
	assert.Equal(t, 0, s.server.Hits("input.ndjson"))
}

func TestTestCommand_EmptyCasesDir(t *testing.T) {
	stdout, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No cases found.\n", stdout)
}

func TestTestCommand_MissingCasesDir(t *testing.T) {
	stdout, _, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E001]: failed to load cases")
}

func TestTestCommand_DownloadAllWithoutCache(t *testing.T) {
	stdout, _, err := execute(t, "test", t.TempDir(), "--download-all", "--cache-disable")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cannot download all data files when caching is disabled")
	assert.Contains(t, stdout, "Error [E002]")
}

func TestTestCommand_ProbeFailure(t *testing.T) {
	s := newSession(t)

	args := s.testArgs()
	args[3] = filepath.Join(t.TempDir(), "no-such-tool")
	stdout, _, err := execute(t, args...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E005]: failed to probe capabilities")
}

func TestTestCommand_RecordsHistory(t *testing.T) {
	s := newSession(t)
	db := filepath.Join(t.TempDir(), "results.db")

	_, _, err := execute(t, s.testArgs("--results-db", db)...)
	require.Equal(t, ExitFailure, GetExitCode(err))

	stdout, _, err := execute(t, "history", "--results-db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 passed, 1 failed, 0 skipped")
	assert.NotContains(t, stdout, "(unfinished)")

	stdout, _, err = execute(t, "history", "--results-db", db, "--format", "json")
	require.NoError(t, err)
	var runs struct {
		Data []struct {
			ID   string `json:"id"`
			Tool string `json:"tool"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs.Data, 1)
	assert.Equal(t, s.tool, runs.Data[0].Tool)

	stdout, _, err = execute(t, "history", "--results-db", db, runs.Data[0].ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run "+runs.Data[0].ID+"\n")
	assert.Contains(t, stdout, "Tool: "+s.tool+" (4.7.1)\n")
	assert.Contains(t, stdout, "FAIL failing\n")
	assert.Contains(t, stdout, "PASS passing\n")
}

func TestHistoryCommand_UnknownRun(t *testing.T) {
	s := newSession(t)
	db := filepath.Join(t.TempDir(), "results.db")
	_, _, err := execute(t, s.testArgs("--results-db", db, "--filter", "passing")...)
	require.NoError(t, err)

	stdout, _, err := execute(t, "history", "--results-db", db, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, `Error [E004]: run "nope" not found`)
}

func TestHistoryCommand_MissingDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing.db")

	stdout, _, err := execute(t, "history", "--results-db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "results database not found")
	assert.NoFileExists(t, db)
}

func TestHistoryCommand_RequiresDatabase(t *testing.T) {
	_, _, err := execute(t, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "results-db")
}

func TestFetchCommand(t *testing.T) {
	s := newSession(t)

	stdout, _, err := execute(t, "fetch", s.casesDir,
		"--data-host", s.server.HostURL(),
		"--cache-path", s.cache,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "3 file(s) in "+s.cache)
	for _, name := range []string{"input.ndjson", "reference.ndjson", "wrong.ndjson"} {
		assert.FileExists(t, filepath.Join(s.cache, name))
		assert.Equal(t, 1, s.server.Hits(name))
	}

	_, _, err = execute(t, "fetch", s.casesDir,
		"--data-host", s.server.HostURL(),
		"--cache-path", s.cache,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, s.server.Hits("input.ndjson"))
}

func TestFetchCommand_Failure(t *testing.T) {
	s := newSession(t)
	s.server.SetFile("wrong.ndjson", []byte("tampered"))

	stdout, _, err := execute(t, "fetch", s.casesDir,
		"--data-host", s.server.HostURL(),
		"--cache-path", s.cache,
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E006]")
}

func TestFetchCommand_NoCases(t *testing.T) {
	stdout, _, err := execute(t, "fetch", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E001]: nothing to fetch")
}

func TestInfoCommand(t *testing.T) {
	tool := testutil.WriteFakeTool(t, "")

	stdout, _, err := execute(t, "info", "--tool", tool)
	require.NoError(t, err)
	assert.Contains(t, stdout, "version: 4.7.1\n")
	assert.Contains(t, stdout, "cuda_devices: 2\n")

	stdout, _, err = execute(t, "info", "--tool", tool, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "4.7.1", resp.Data["version"])
	assert.Equal(t, []any{"8192 MB", "4096 MB"}, resp.Data["cuda_memory"])
}

func TestInfoCommand_ProbeFailure(t *testing.T) {
	stdout, _, err := execute(t, "info", "--tool", filepath.Join(t.TempDir(), "no-such-tool"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E005]: failed to probe capabilities")
}

func TestListCommand(t *testing.T) {
	stdout, _, err := execute(t, "list", "testdata/cases")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "list", []byte(stdout))
}

func TestListCommand_JSON(t *testing.T) {
	stdout, _, err := execute(t, "list", "testdata/cases", "--filter", "gpu/*", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []CaseSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "gpu/large", resp.Data[0].Name)
	assert.Equal(t, []string{"dependency", "reconstruction"}, resp.Data[0].Jobs)
	assert.Equal(t, "16384", resp.Data[0].Requirements["gpu_memory"])
}

func TestListCommand_Empty(t *testing.T) {
	stdout, _, err := execute(t, "list", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No cases found.\n", stdout)
}

func TestListCommand_BrokenCase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("tags: [fast]\n"), 0644))

	stdout, _, err := execute(t, "list", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E001]")
}
