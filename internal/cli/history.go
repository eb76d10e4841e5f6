package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roopchansinghv/pingvin/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions

	ResultsDB string
	Limit     int
}

// RunList is the history listing of recorded sessions.
type RunList []store.Run

func (l RunList) String() string {
	if len(l) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	for _, r := range l {
		fmt.Fprintf(&b, "%s  %s  %d passed, %d failed, %d skipped",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Passed, r.Failed, r.Skipped)
		if r.FinishedAt.IsZero() {
			b.WriteString("  (unfinished)")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// RunDetail is one recorded session with its case results.
type RunDetail struct {
	Run     store.Run          `json:"run"`
	Results []store.CaseResult `json:"results"`
}

func (d RunDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", d.Run.ID)
	fmt.Fprintf(&b, "Tool: %s", d.Run.Tool)
	if d.Run.ToolVersion != "" {
		fmt.Fprintf(&b, " (%s)", d.Run.ToolVersion)
	}
	b.WriteByte('\n')
	for _, r := range d.Results {
		fmt.Fprintf(&b, "%-4s %s", strings.ToUpper(r.Status), r.Name)
		if r.Reason != "" {
			fmt.Fprintf(&b, " (%s)", r.Reason)
		}
		b.WriteByte('\n')
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "     %s\n", e)
		}
	}
	fmt.Fprintf(&b, "%d passed, %d failed, %d skipped\n", d.Run.Passed, d.Run.Failed, d.Run.Skipped)
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded test sessions",
		Long: `Show sessions recorded with "test --results-db".

Without a run ID, recorded sessions are listed newest first.
With a run ID, the case results of that session are printed.

Examples:
  pingvin-e2e history --results-db results.db
  pingvin-e2e history --results-db results.db 01890a5d-ac96-774b-bcce-b302099a8057`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.ResultsDB, "results-db", "", "SQLite results database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")
	_ = cmd.MarkFlagRequired("results-db")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions, args []string) error {
	out := opts.formatter(cmd)

	if _, err := os.Stat(opts.ResultsDB); err != nil {
		return out.fail(ExitCommandError, CodeHistory, "results database not found", err)
	}
	st, err := store.Open(opts.ResultsDB)
	if err != nil {
		return out.fail(ExitCommandError, CodeHistory, "failed to open results database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if len(args) == 0 {
		runs, err := st.Runs(ctx, opts.Limit)
		if err != nil {
			return out.fail(ExitCommandError, CodeHistory, "failed to read runs", err)
		}
		return out.Success(RunList(runs))
	}

	run, err := st.ReadRun(ctx, args[0])
	if errors.Is(err, sql.ErrNoRows) {
		return out.fail(ExitCommandError, CodeHistory, fmt.Sprintf("run %q not found", args[0]), nil)
	}
	if err != nil {
		return out.fail(ExitCommandError, CodeHistory, "failed to read run", err)
	}
	results, err := st.Results(ctx, run.ID)
	if err != nil {
		return out.fail(ExitCommandError, CodeHistory, "failed to read results", err)
	}
	return out.Success(RunDetail{Run: run, Results: results})
}
