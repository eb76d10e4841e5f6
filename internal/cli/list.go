package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roopchansinghv/pingvin/internal/spec"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions

	Filter string
}

// CaseSummary describes one discovered case.
type CaseSummary struct {
	Name         string            `json:"name"`
	Tags         []string          `json:"tags,omitempty"`
	Requirements map[string]string `json:"requirements,omitempty"`
	Jobs         []string          `json:"jobs"`
	DataFiles    []string          `json:"data_files"`
	Series       []int             `json:"series"`
}

// CaseList is the output of the list command.
type CaseList []CaseSummary

func (l CaseList) String() string {
	if len(l) == 0 {
		return "No cases found.\n"
	}

	var b strings.Builder
	for _, c := range l {
		fmt.Fprintln(&b, c.Name)
		if len(c.Tags) > 0 {
			fmt.Fprintf(&b, "  tags:         %s\n", strings.Join(c.Tags, ", "))
		}
		if len(c.Requirements) > 0 {
			reqs := make([]string, 0, len(c.Requirements))
			for _, k := range slices.Sorted(maps.Keys(c.Requirements)) {
				reqs = append(reqs, k+"="+c.Requirements[k])
			}
			fmt.Fprintf(&b, "  requirements: %s\n", strings.Join(reqs, ", "))
		}
		fmt.Fprintf(&b, "  jobs:         %s\n", strings.Join(c.Jobs, ", "))
		fmt.Fprintf(&b, "  data:         %s\n", strings.Join(c.DataFiles, ", "))
		series := make([]string, len(c.Series))
		for i, s := range c.Series {
			series[i] = fmt.Sprint(s)
		}
		fmt.Fprintf(&b, "  series:       %s\n", strings.Join(series, ", "))
	}
	fmt.Fprintf(&b, "%d case(s)\n", len(l))
	return b.String()
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list [cases-dir]",
		Short: "List test cases",
		Long: `Parse every case in the cases directory and print a summary of each.

Parsing errors are reported, which makes this command useful for checking
case files before a session.

Examples:
  pingvin-e2e list
  pingvin-e2e list ./cases --filter "gpu/*" --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)

			specs, err := spec.Discover(casesDir(args), opts.Filter)
			if err != nil {
				return out.fail(ExitCommandError, CodeCases, "failed to load cases", err)
			}

			list := make(CaseList, 0, len(specs))
			for _, s := range specs {
				list = append(list, summarize(s))
			}
			return out.Success(list)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter cases by glob pattern on the case name")
	return cmd
}

func summarize(s *spec.Spec) CaseSummary {
	c := CaseSummary{
		Name:         s.Name,
		Tags:         s.Tags,
		Requirements: s.Requirements,
		DataFiles:    slices.Sorted(maps.Keys(s.TestDataFiles())),
	}
	for _, job := range s.Jobs() {
		c.Jobs = append(c.Jobs, job.Name)
	}
	for _, t := range s.Validation.Tests {
		c.Series = append(c.Series, t.ImageSeries)
	}
	return c
}
