package cli

import (
	"fmt"

	"github.com/gomlx/shapegraph/graphir"
	"github.com/gomlx/shapegraph/inference"
	"github.com/spf13/cobra"
)

// NewOpsCommand creates the ops command: it lists the operators with an inference rule.
func NewOpsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ops",
		Short:         "List the supported operators",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newOutputFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			var names []string
			for _, op := range inference.AllOpTypes() {
				if inference.HasRule(op) {
					names = append(names, op.String())
				}
			}
			if rootOpts.Format == "json" {
				return formatter.json(Response{Status: "ok", Data: names})
			}
			for _, op := range inference.AllOpTypes() {
				if !inference.HasRule(op) {
					continue
				}
				if graphir.IsDataDependentOp(op) {
					fmt.Fprintf(formatter.writer, "%s\t(data-dependent)\n", op)
				} else {
					fmt.Fprintln(formatter.writer, op)
				}
			}
			return nil
		},
	}
	return cmd
}
