// Command fabnetctl is a demonstration harness for the fabnet client
// library: a small CLI that opens a catalog, a transfer manager, and a
// gateway from a config file and exposes put/get/ls/rm/mkdir against
// them. It is not a server — no mount protocol, no long-running process
// beyond the single command invoked.
package main

import (
	"fmt"
	"os"

	"github.com/fabnet/client/cmd/fabnetctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
