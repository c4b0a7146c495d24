package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/internal/routing"
)

// newConfigCmd groups config-document maintenance, grounded on the
// teacher's cmd/onr -t config-test flag but expressed as its own
// subcommand tree rather than a top-level boolean flag.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the config document",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the config document and report any errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "relay.yaml", "path to config yaml")
	return cmd
}

func runConfigValidate(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if _, err := routing.NewTable(cfg.RoutingModels()); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	fmt.Printf("%s: ok (%d provider(s), %d route alias(es))\n", cfgPath, len(cfg.Providers), len(cfg.Routing.Models))
	return nil
}
