package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roopchansinghv/pingvin/internal/spec"
	"github.com/roopchansinghv/pingvin/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCommand(t *testing.T) {
	r := New("pingvin", "/work")

	single := &spec.Job{Name: "reconstruction", Args: []string{"--some-flag"}}
	assert.Equal(t,
		"pingvin --some-flag --input /data/input.h5 --output /work/reconstruction.output.mrd",
		r.Command(single, "/data/input.h5"))

	piped := &spec.Job{Name: "dependency", Args: []string{"--stage one", "--stage two", ""}}
	assert.Equal(t,
		"pingvin --stage one --input '/data/my input.h5' | pingvin --stage two | pingvin --output /work/dependency.output.mrd",
		r.Command(piped, "/data/my input.h5"))
}

func TestPaths(t *testing.T) {
	r := New("pingvin", "/work")
	job := &spec.Job{Name: "reconstruction"}

	assert.Equal(t, "/work/reconstruction.output.mrd", r.OutputPath(job))
	out, errLog := r.LogPaths(job)
	assert.Equal(t, "/work/pingvin_reconstruction.log.out", out)
	assert.Equal(t, "/work/pingvin_reconstruction.log.err", errLog)
}

func TestEscape(t *testing.T) {
	for _, c := range []struct {
		in, exp string
	}{
		{``, `''`},
		{`ab`, `ab`},
		{`a b`, `'a b'`},
		{`/tmp/x-1_2.h5`, `/tmp/x-1_2.h5`},
		{`=foo`, `'=foo'`},
		{`it's`, `'it'"'"'s'`},
		{`$HOME`, `'$HOME'`},
	} {
		assert.Equal(t, c.exp, Escape(c.in), c.in)
	}
}

func TestRun_Pipeline(t *testing.T) {
	tool := testutil.WriteFakeTool(t, "")
	workDir := t.TempDir()
	input := filepath.Join(t.TempDir(), "input data.txt")
	require.NoError(t, os.WriteFile(input, []byte("line1\n"), 0644))

	r := New(tool, workDir, WithLogger(quietLogger()))
	job := &spec.Job{Name: "reconstruction", Args: []string{"--append A", "--append B"}}

	output, err := r.Run(context.Background(), job, input)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "reconstruction.output.mrd"), output)

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "line1\nA\nB\n", string(got))

	_, errLog := r.LogPaths(job)
	logged, err := os.ReadFile(errLog)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "processing")
}

func TestRun_NonZeroExit(t *testing.T) {
	tool := testutil.WriteFakeTool(t, "")
	workDir := t.TempDir()
	input := filepath.Join(workDir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("x\n"), 0644))

	r := New(tool, workDir, WithLogger(quietLogger()))
	job := &spec.Job{Name: "reconstruction", Args: []string{"--fail 3"}}

	_, err := r.Run(context.Background(), job, input)
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "reconstruction", exitErr.Job)
	assert.Contains(t, err.Error(), exitErr.StderrLog)

	logged, err := os.ReadFile(exitErr.StderrLog)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "fake tool failure")
}
