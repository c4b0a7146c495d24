package cli

import (
	"github.com/spf13/cobra"

	"github.com/loopwire/relay/internal/version"
)

// Execute builds and runs the root cobra command.
func Execute() error {
	root := newRootCmd()
	return root.Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Local multi-format AI chat proxy",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version.Short(),
	}
	cmd.AddCommand(
		newStartCmd(),
		newAuthCmd(),
		newConfigCmd(),
		newDiagnoseCmd(),
		newRunCmd(),
	)
	return cmd
}
