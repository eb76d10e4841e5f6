package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roopchansinghv/pingvin/internal/fetch"
	"github.com/roopchansinghv/pingvin/internal/harness"
	"github.com/roopchansinghv/pingvin/internal/spec"
)

// errNoCases is returned by commands that need at least one case.
var errNoCases = errors.New("no cases found")

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	harness.Config

	Filter  string
	Workers int
}

// FetchResult lists the local paths of fetched files.
type FetchResult struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}

func (r FetchResult) String() string {
	var b strings.Builder
	for _, f := range r.Files {
		fmt.Fprintln(&b, f)
	}
	fmt.Fprintf(&b, "%d file(s) in %s\n", len(r.Files), r.Dir)
	return b.String()
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts, Config: harness.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "fetch [cases-dir]",
		Short: "Download and verify test data into the cache",
		Long: `Download every data file referenced by the cases into the cache.

Files already cached with a matching checksum are not downloaded again.

Examples:
  pingvin-e2e fetch
  pingvin-e2e fetch ./cases --cache-path /var/cache/pingvin --filter "gpu/*"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, casesDir(args))
		},
	}

	addDataFlags(cmd, &opts.Config)
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter cases by glob pattern on the case name")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent downloads (default: number of CPUs)")

	return cmd
}

func runFetch(cmd *cobra.Command, opts *FetchOptions, dir string) error {
	out := opts.formatter(cmd)

	specs, err := spec.Discover(dir, opts.Filter)
	if err != nil {
		return out.fail(ExitCommandError, CodeCases, "failed to load cases", err)
	}
	if len(specs) == 0 {
		return out.fail(ExitCommandError, CodeCases, "nothing to fetch", errNoCases)
	}

	fopts := []fetch.Option{fetch.WithLogger(opts.logger(cmd))}
	if opts.Workers > 0 {
		fopts = append(fopts, fetch.WithWorkers(opts.Workers))
	}
	f := fetch.New(opts.DataHost, opts.CachePath, fopts...)

	paths, err := f.Fetch(cmd.Context(), spec.MergeDataFiles(specs))
	if err != nil {
		return out.fail(ExitCommandError, CodeFetch, "failed to download test data", err)
	}
	return out.Success(FetchResult{Dir: f.Dir(), Files: paths})
}
