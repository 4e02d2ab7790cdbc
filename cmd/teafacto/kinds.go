package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/teafacto/internal/block"
	_ "github.com/born-ml/teafacto/internal/nn" // block kinds
)

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List registered block kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, k := range block.Kinds() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
