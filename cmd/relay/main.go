// Command relay is the local multi-format AI chat proxy's CLI: it starts
// the proxy, manages on-disk credentials, validates configuration, and
// hosts a small diagnostics TUI. These subcommands are external
// collaborators to the proxy core: they only ever go through a loaded
// config, the credential store, and the structured-event sink.
package main

import (
	"fmt"
	"os"

	"github.com/loopwire/relay/cmd/relay/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
