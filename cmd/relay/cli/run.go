package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/loopwire/relay/internal/config"
)

// newRunCmd spawns a child process with its provider base-URL environment
// variables pointed at the local proxy, so a CLI tool picks up the relay
// without any code changes of its own.
func newRunCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:                "run -- <command> [args...]",
		Short:              "Run a command with its provider base URLs pointed at the proxy",
		DisableFlagParsing: false,
		Args:               cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChild(cfgPath, args)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "relay.yaml", "path to config yaml")
	return cmd
}

func runChild(cfgPath string, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	// #nosec G204 -- args are the operator's own command line, mirroring exec.Command usage.
	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Env = append(os.Environ(),
		"OPENAI_BASE_URL="+base+"/v1",
		"OPENAI_API_BASE="+base+"/v1",
		"ANTHROPIC_BASE_URL="+base,
		"GOOGLE_GEMINI_BASE_URL="+base+"/v1beta",
	)

	if err := child.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return fmt.Errorf("run %s: %w", args[0], err)
	}
	return nil
}
