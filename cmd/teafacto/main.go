// Command teafacto validates experiment configurations and inspects frozen
// models and checkpoints.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "v0.1.0-dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "teafacto",
		Short: "Teafacto - recurrent sequence models on a graph engine",
		Long: `Teafacto builds, trains and freezes sequence models described in HCL.

Commands:
  kinds     list the block kinds a configuration can name
  check     decode a configuration and build its model
  inspect   describe a frozen model or training checkpoint`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newKindsCmd(), newCheckCmd(), newInspectCmd())
	return root
}
