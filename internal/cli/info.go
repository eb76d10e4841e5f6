package cli

import (
	"github.com/spf13/cobra"

	"github.com/roopchansinghv/pingvin/internal/capability"
	"github.com/roopchansinghv/pingvin/internal/harness"
)

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	tool := harness.DefaultTool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Probe and print the tool's capabilities",
		Long: `Run "<tool> --info" and print the capabilities the requirement gate uses.

Examples:
  pingvin-e2e info
  pingvin-e2e info --tool /opt/pingvin/bin/pingvin --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			p := &capability.Prober{Tool: tool, Logger: rootOpts.logger(cmd)}

			caps, err := p.Probe(cmd.Context())
			if err != nil {
				return out.fail(ExitCommandError, CodeProbe, "failed to probe capabilities", err)
			}
			if rootOpts.Format == "json" {
				return out.Success(caps.Map())
			}
			return out.Success(caps)
		},
	}

	cmd.Flags().StringVar(&tool, "tool", tool, "reconstruction tool executable")
	return cmd
}
