package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roopchansinghv/pingvin/internal/validate"
)

var startedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRecordAndReadResults(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.BeginRun(ctx, Run{ID: "run-1", StartedAt: startedAt, Tool: "pingvin", ToolVersion: "4.7.1", CasesDir: "cases"}))

	pass := CaseResult{
		Name:     "cpu/simple",
		Status:   "pass",
		Metrics:  []validate.Metrics{{Series: 0, NormDiff: 0.001, Scale: 1}},
		Duration: 1500 * time.Millisecond,
	}
	skip := CaseResult{Name: "gpu/big", Status: "skip", Reason: "not enough graphics memory"}
	fail := CaseResult{
		Name:   "cpu/broken",
		Status: "fail",
		Errors: []string{"reconstruction job failed with return code 1, see x for details"},
	}
	for _, r := range []CaseResult{pass, skip, fail} {
		require.NoError(t, s.RecordResult(ctx, "run-1", r))
	}

	results, err := s.Results(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []CaseResult{pass, skip, fail}, results)

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Skipped)
	assert.True(t, run.StartedAt.Equal(startedAt))
	assert.True(t, run.FinishedAt.IsZero())
	assert.Equal(t, "4.7.1", run.ToolVersion)
}

func TestRecordResult_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(ctx, Run{ID: "run-1", StartedAt: startedAt, Tool: "pingvin"}))

	require.NoError(t, s.RecordResult(ctx, "run-1", CaseResult{Name: "a", Status: "pass"}))
	err := s.RecordResult(ctx, "run-1", CaseResult{Name: "a", Status: "fail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `record result "a"`)
}

func TestRecordResult_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.RecordResult(context.Background(), "missing", CaseResult{Name: "a", Status: "pass"})
	require.Error(t, err)
}

func TestFinishRun(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(ctx, Run{ID: "run-1", StartedAt: startedAt, Tool: "pingvin"}))

	finished := startedAt.Add(time.Minute)
	require.NoError(t, s.FinishRun(ctx, "run-1", finished))

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.FinishedAt.Equal(finished))

	err = s.FinishRun(ctx, "missing", finished)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	for _, id := range []string{"0190a000-0000-7000-8000-000000000001", "0190a000-0000-7000-8000-000000000003", "0190a000-0000-7000-8000-000000000002"} {
		require.NoError(t, s.BeginRun(ctx, Run{ID: id, StartedAt: startedAt, Tool: "pingvin"}))
	}

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "0190a000-0000-7000-8000-000000000003", runs[0].ID)
	assert.Equal(t, "0190a000-0000-7000-8000-000000000001", runs[2].ID)

	runs, err = s.Runs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestResults_EmptyRun(t *testing.T) {
	s := createTestStore(t)
	results, err := s.Results(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
