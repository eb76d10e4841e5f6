package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/roopchansinghv/pingvin/internal/store"
	"github.com/roopchansinghv/pingvin/internal/validate"
)

// Status is the outcome of a case.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// LogFile is a tool log captured from a failed case.
type LogFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Result is the outcome of one case.
type Result struct {
	Name   string `json:"name"`
	Status Status `json:"status"`

	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`

	// Errors holds failure messages. Empty unless Status is StatusFail.
	Errors []string `json:"errors,omitempty"`

	Metrics  []validate.Metrics `json:"metrics,omitempty"`
	Logs     []LogFile          `json:"logs,omitempty"`
	WorkDir  string             `json:"work_dir,omitempty"`
	Duration time.Duration      `json:"duration"`
}

// NewResult creates a passing result for the named case.
func NewResult(name string) *Result {
	return &Result{Name: name, Status: StatusPass}
}

// AddError records a failure message and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Status = StatusFail
}

// Skip marks the result as skipped.
func (r *Result) Skip(reason string) {
	r.Status = StatusSkip
	r.Reason = reason
}

func (r *Result) record() store.CaseResult {
	return store.CaseResult{
		Name:     r.Name,
		Status:   string(r.Status),
		Reason:   r.Reason,
		Errors:   r.Errors,
		Metrics:  r.Metrics,
		Duration: r.Duration,
	}
}

// Report summarises a session.
type Report struct {
	RunID        string         `json:"run_id"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Results      []*Result      `json:"results"`
	Passed       int            `json:"passed"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
}

func (r *Report) add(res *Result) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case StatusPass:
		r.Passed++
	case StatusFail:
		r.Failed++
	case StatusSkip:
		r.Skipped++
	}
}

// OK reports whether no case failed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Summary renders one line per case followed by the totals.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, res := range r.Results {
		fmt.Fprintf(&b, "%-4s %s", strings.ToUpper(string(res.Status)), res.Name)
		if res.Reason != "" {
			fmt.Fprintf(&b, " (%s)", res.Reason)
		}
		b.WriteString("\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "     %s\n", e)
		}
		for _, l := range res.Logs {
			fmt.Fprintf(&b, "     --- %s ---\n", l.Name)
			for _, line := range strings.Split(strings.TrimRight(l.Content, "\n"), "\n") {
				fmt.Fprintf(&b, "     %s\n", line)
			}
		}
	}
	fmt.Fprintf(&b, "%d passed, %d failed, %d skipped\n", r.Passed, r.Failed, r.Skipped)
	return b.String()
}
