package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/serialization"
)

func newInspectCmd() *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Describe a frozen model or checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := serialization.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			h := f.Header
			fmt.Fprintf(out, "kind:    %s\n", h.Kind)
			fmt.Fprintf(out, "version: %s (format %d)\n", h.Version, h.FormatVersion)
			fmt.Fprintf(out, "created: %s\n", h.CreatedAt.Format("2006-01-02 15:04:05"))
			if c := h.Checkpoint; c != nil {
				fmt.Fprintf(out, "checkpoint: epoch %d, step %d, loss %.4f, optimizer %s\n",
					c.Epoch, c.Step, c.Loss, c.OptimizerType)
			}
			fmt.Fprintln(out, "tensors:")
			for _, m := range h.Tensors {
				fmt.Fprintf(out, "  %-40s %-8s %v\n", m.Name, m.DType, m.Shape)
			}
			if !rebuild {
				return nil
			}
			b, err := block.Rebuild(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "rebuilt %s with %d parameters\n", b.Name(), len(b.Params()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Rebuild the block and load its parameters")
	return cmd
}
