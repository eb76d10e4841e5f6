package capability

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roopchansinghv/pingvin/internal/testutil"
)

func TestParse_DefaultInfo(t *testing.T) {
	caps := Parse(testutil.DefaultInfo)

	v, ok := caps.Value(Version)
	require.True(t, ok)
	assert.Equal(t, "4.7.1", v)

	v, ok = caps.Value(Memory)
	require.True(t, ok)
	assert.Equal(t, "16384 MB", v)

	v, _ = caps.Value(CUDADevices)
	assert.Equal(t, "2", v)
	assert.Equal(t, []string{"8192 MB", "4096 MB"}, caps.Values(CUDAMemory))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "default_info", []byte(caps.String()))
}

func TestParse_CaseInsensitiveLabels(t *testing.T) {
	caps := Parse("SYSTEM MEMORY SIZE: 1024\ncuda support : no\n")

	v, ok := caps.Value(Memory)
	require.True(t, ok)
	assert.Equal(t, "1024", v)

	v, ok = caps.Value(CUDASupport)
	require.True(t, ok)
	assert.Equal(t, "no", v)
}

func TestParse_FirstScalarWins(t *testing.T) {
	caps := Parse("Version: 1.0\nVersion: 2.0\n")
	v, _ := caps.Value(Version)
	assert.Equal(t, "1.0", v)
}

func TestParse_Missing(t *testing.T) {
	caps := Parse("nothing useful here\n")

	_, ok := caps.Value(Memory)
	assert.False(t, ok)
	assert.Empty(t, caps.Values(CUDAMemory))
	assert.NotNil(t, caps.Values(CUDAMemory))
}

func TestNew_CopiesInputs(t *testing.T) {
	lists := map[string][]string{CUDAMemory: {"1 MB"}}
	caps := New(map[string]string{Memory: "10"}, lists)
	lists[CUDAMemory][0] = "changed"

	assert.Equal(t, []string{"1 MB"}, caps.Values(CUDAMemory))
	assert.Equal(t, map[string]any{Memory: "10", CUDAMemory: []string{"1 MB"}}, caps.Map())
}

func TestProbe(t *testing.T) {
	tool := testutil.WriteFakeTool(t, "")
	p := &Prober{Tool: tool, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	caps, err := p.Probe(context.Background())
	require.NoError(t, err)

	v, _ := caps.Value(Build)
	assert.Equal(t, "0123abcd", v)
}

func TestProbe_NonZeroExit(t *testing.T) {
	testutil.WriteFakeTool(t, "") // skips without a shell
	tool := filepath.Join(t.TempDir(), "broken")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho nope >&2\nexit 3\n"), 0755))

	p := &Prober{Tool: tool, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	_, err := p.Probe(context.Background())
	require.Error(t, err)

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, 3, probeErr.ExitCode)
	assert.Contains(t, probeErr.Stderr, "nope")
	assert.Contains(t, err.Error(), "returned 3")
}

func TestProbe_MissingTool(t *testing.T) {
	p := &Prober{Tool: filepath.Join(t.TempDir(), "no-such-tool")}
	_, err := p.Probe(context.Background())
	require.Error(t, err)

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, -1, probeErr.ExitCode)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "failed to query capabilities: running ")
}
