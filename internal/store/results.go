package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roopchansinghv/pingvin/internal/validate"
)

// Run is one recorded test session.
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"` // zero while the session is running
	Tool        string    `json:"tool"`
	ToolVersion string    `json:"tool_version,omitempty"`
	CasesDir    string    `json:"cases_dir,omitempty"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
}

// CaseResult is the stored outcome of one test case.
type CaseResult struct {
	Name     string             `json:"name"`
	Status   string             `json:"status"`
	Reason   string             `json:"reason,omitempty"`
	Errors   []string           `json:"errors,omitempty"`
	Metrics  []validate.Metrics `json:"metrics,omitempty"`
	Duration time.Duration      `json:"duration"`
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// BeginRun records the start of a session.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, tool, tool_version, cases_dir)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, formatTime(run.StartedAt), run.Tool, run.ToolVersion, run.CasesDir)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stamps the end time of a session.
// Returns an error wrapping sql.ErrNoRows if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`, formatTime(at), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// RecordResult appends a case result to a run. Results keep insertion order.
// A second result with the same name in one run is an error.
func (s *Store) RecordResult(ctx context.Context, runID string, r CaseResult) error {
	errorsJSON, err := json.Marshal(nonNil(r.Errors))
	if err != nil {
		return fmt.Errorf("record result %q: %w", r.Name, err)
	}
	metricsJSON, err := json.Marshal(nonNil(r.Metrics))
	if err != nil {
		return fmt.Errorf("record result %q: %w", r.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (run_id, seq, name, status, reason, errors, metrics, duration_ms)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM results WHERE run_id = ?), ?, ?, ?, ?, ?, ?)
	`,
		runID,
		runID,
		r.Name,
		r.Status,
		r.Reason,
		string(errorsJSON),
		string(metricsJSON),
		r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record result %q: %w", r.Name, err)
	}
	return nil
}

const runColumns = `
	r.id, r.started_at, COALESCE(r.finished_at, ''), r.tool, r.tool_version, r.cases_dir,
	COALESCE(SUM(res.status = 'pass'), 0),
	COALESCE(SUM(res.status = 'fail'), 0),
	COALESCE(SUM(res.status = 'skip'), 0)
`

// Runs returns recorded sessions, newest first. A limit of zero or less returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		LEFT JOIN results res ON res.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		LEFT JOIN results res ON res.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id
	`, runID)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	return run, nil
}

// Results returns the case results of a run in execution order.
func (s *Store) Results(ctx context.Context, runID string) ([]CaseResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, status, reason, errors, metrics, duration_ms
		FROM results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []CaseResult{}
	for rows.Next() {
		var (
			r                       CaseResult
			errorsJSON, metricsJSON string
			durationMS              int64
		)
		if err := rows.Scan(&r.Name, &r.Status, &r.Reason, &errorsJSON, &metricsJSON, &durationMS); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &r.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors of %q: %w", r.Name, err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &r.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics of %q: %w", r.Name, err)
		}
		if len(r.Errors) == 0 {
			r.Errors = nil
		}
		if len(r.Metrics) == 0 {
			r.Metrics = nil
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run               Run
		started, finished string
	)
	if err := row.Scan(&run.ID, &started, &finished, &run.Tool, &run.ToolVersion, &run.CasesDir,
		&run.Passed, &run.Failed, &run.Skipped); err != nil {
		return Run{}, err
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("parse started_at of %s: %w", run.ID, err)
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at of %s: %w", run.ID, err)
	}
	return run, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
