package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/teafacto/internal/config"
	"github.com/born-ml/teafacto/internal/ctxlog"
)

func newCheckCmd() *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "check <config.hcl>",
		Short: "Decode a configuration and build its model",
		Long: `Decode an HCL experiment configuration, validate it and build the model
it describes. The parameters of the model are listed with their shapes.`,
		Example: `  # Validate the copy task
  teafacto check examples/copytask/copytask.hcl

  # Override a variable
  teafacto check copytask.hcl --var dim=64`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseVars(vars)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFile(cmd.Context(), args[0], config.Options{Vars: overrides})
			if err != nil {
				return err
			}
			ctx := ctxlog.WithLogger(cmd.Context(), cfg.Logger(cmd.ErrOrStderr()))
			ctxlog.FromContext(ctx).Debug("building model", "kind", cfg.Model.Kind)

			b, err := cfg.Block()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model %q (%s)\n", cfg.Model.Name, cfg.Model.Kind)
			total := 0
			for _, p := range b.Params() {
				n := p.Shape().NumElements()
				total += n
				fmt.Fprintf(out, "  %-40s %v\n", p.Name(), p.Shape())
			}
			fmt.Fprintf(out, "%d parameters\n", total)
			if tr := cfg.Trainer; tr != nil {
				fmt.Fprintf(out, "trainer: %s lr=%g loss=%s epochs=%d batches=%d\n",
					tr.Optimizer, tr.LR, tr.Loss, tr.Epochs, tr.Batches)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Set a configuration variable (name=value)")
	return cmd
}

// parseVars turns name=value flags into variable overrides. Values that
// parse as integers, floats or booleans keep that type.
func parseVars(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", f)
		}
		if i, err := strconv.Atoi(value); err == nil {
			vars[name] = i
		} else if x, err := strconv.ParseFloat(value, 64); err == nil {
			vars[name] = x
		} else if b, err := strconv.ParseBool(value); err == nil {
			vars[name] = b
		} else {
			vars[name] = value
		}
	}
	return vars, nil
}
