package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roopchansinghv/pingvin/internal/capability"
	"github.com/roopchansinghv/pingvin/internal/dataset"
	"github.com/roopchansinghv/pingvin/internal/harness"
	"github.com/roopchansinghv/pingvin/internal/spec"
	"github.com/roopchansinghv/pingvin/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	harness.Config

	Decoder   string // converter command for output and reference files
	Filter    string // case filter (glob pattern)
	ResultsDB string // SQLite results history
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts, Config: harness.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "test [cases-dir]",
		Short: "Run end-to-end test cases",
		Long: `Run every case in the cases directory against the reconstruction tool.

The tool's capabilities are probed once. Cases whose tags or requirements
do not match are skipped with a reason.

Exit codes:
  0 - All cases passed or were skipped
  1 - One or more cases failed
  2 - Command error (missing cases, probe failure, etc.)

Examples:
  pingvin-e2e test
  pingvin-e2e test ./cases --tags fast --filter "cpu/*"
  pingvin-e2e test --ignore-requirements cuda_memory --echo-log-on-failure
  pingvin-e2e test --download-all --results-db results.db --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CasesDir = casesDir(args)
			return runTestSession(cmd, opts)
		},
	}

	f := cmd.Flags()
	addDataFlags(cmd, &opts.Config)
	f.BoolVar(&opts.CacheDisabled, "cache-disable", false, "store fetched data in each case's working directory")
	f.StringSliceVar(&opts.IgnoreRequirements, "ignore-requirements", nil, "capability names or requirement keys not to enforce")
	f.StringSliceVar(&opts.Tags, "tags", nil, "only run cases carrying all of these tags")
	f.BoolVar(&opts.EchoLogOnFailure, "echo-log-on-failure", false, "print tool logs of failed cases")
	f.StringVar(&opts.SaveResults, "save-results", "", "copy each case's working directory into this directory")
	f.BoolVar(&opts.DownloadAll, "download-all", false, "fetch data for every case before running")
	f.StringVar(&opts.Tool, "tool", opts.Tool, "reconstruction tool executable")
	f.StringVar(&opts.Decoder, "decoder", "", "command converting data files to NDJSON records (default: read NDJSON)")
	f.StringVar(&opts.Filter, "filter", "", "filter cases by glob pattern on the case name")
	f.StringVar(&opts.ResultsDB, "results-db", "", "record results in this SQLite database")
	f.StringVar(&opts.WorkRoot, "work-dir", "", "keep per-case working directories under this directory")

	return cmd
}

// addDataFlags registers the flags shared by commands that fetch data.
func addDataFlags(cmd *cobra.Command, cfg *harness.Config) {
	cmd.Flags().StringVar(&cfg.DataHost, "data-host", cfg.DataHost, "base URL of the test data host")
	cmd.Flags().StringVar(&cfg.CachePath, "cache-path", cfg.CachePath, "local test data cache")
}

func runTestSession(cmd *cobra.Command, opts *TestOptions) error {
	out := opts.formatter(cmd)
	logger := opts.logger(cmd)

	if err := opts.Config.Validate(); err != nil {
		return out.fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}

	specs, err := spec.Discover(opts.CasesDir, opts.Filter)
	if err != nil {
		return out.fail(ExitCommandError, CodeCases, "failed to load cases", err)
	}
	if len(specs) == 0 {
		if opts.Format == "json" {
			return out.Success(&harness.Report{Results: []*harness.Result{}})
		}
		return out.Success("No cases found.\n")
	}

	hopts := []harness.Option{harness.WithLogger(logger)}
	if opts.Decoder != "" {
		hopts = append(hopts, harness.WithDecoder(dataset.CommandDecoder{Command: strings.Fields(opts.Decoder)}))
	}
	if opts.ResultsDB != "" {
		st, err := store.Open(opts.ResultsDB)
		if err != nil {
			return out.fail(ExitCommandError, CodeHistory, "failed to open results database", err)
		}
		defer st.Close()
		hopts = append(hopts, harness.WithRecorder(st))
	}

	h, err := harness.New(opts.Config, hopts...)
	if err != nil {
		return out.fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}

	report, err := h.Run(cmd.Context(), specs)
	if err != nil {
		if report == nil {
			var probeErr *capability.ProbeError
			if errors.As(err, &probeErr) {
				return out.fail(ExitCommandError, CodeProbe, "failed to probe capabilities", err)
			}
			return out.fail(ExitCommandError, CodeSession, "session aborted", err)
		}
		logger.Warn("session interrupted", "error", err)
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: status(report), Data: report, RunID: report.RunID}
		if !report.OK() {
			resp.Error = &CLIError{Code: CodeFailed, Message: failedMessage(report)}
		}
		if err := out.encode(resp); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out.Writer, report.Summary())
		if opts.Verbose {
			fmt.Fprintf(out.Writer, "Run ID: %s\n", report.RunID)
		}
	}

	if err != nil {
		return WrapExitError(ExitCommandError, "session interrupted", err)
	}
	if !report.OK() {
		return NewExitError(ExitFailure, failedMessage(report))
	}
	return nil
}

func failedMessage(report *harness.Report) string {
	return fmt.Sprintf("%d case(s) failed", report.Failed)
}

func status(report *harness.Report) string {
	if report.OK() {
		return "ok"
	}
	return "error"
}
