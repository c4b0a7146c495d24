package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/loopwire/relay/internal/diagnosetui"
)

// newDiagnoseCmd launches a TUI over a running proxy's /debug/recent feed.
// It never reads local files: it is a plain HTTP client of the proxy.
func newDiagnoseCmd() *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Browse recent request events from a running proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := diagnosetui.New(endpoint, os.Stdin, os.Stdout)
			_, err := p.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "http://127.0.0.1:8787", "base URL of the running proxy")
	return cmd
}
