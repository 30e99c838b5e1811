package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CheckResult is the JSON data of the check command.
type CheckResult struct {
	Inputs      int               `json:"inputs"`
	Constants   int               `json:"constants"`
	Operators   int               `json:"operators"`
	Outputs     map[string]string `json:"outputs"`
	Fingerprint string            `json:"fingerprint"`
}

// NewCheckCommand creates the check command: it validates a graph and summarizes its outputs.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <graph.yaml>",
		Short: "Validate a graph and print the inferred outputs",
		Long: `Build the graph described in the YAML file and report whether inference succeeded, along with
the inferred information of each output and the fingerprint of the compiled IR.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	model, diagnostics, err := opts.buildGraphFile(path)
	if err != nil {
		return formatter.fail(err, warningsOf(diagnostics))
	}
	for _, msg := range diagnostics.Debug {
		formatter.verboseLog("%s", msg)
	}

	result := CheckResult{
		Inputs:      len(model.Inputs),
		Constants:   len(model.Constants),
		Operators:   len(model.Operators),
		Outputs:     make(map[string]string, len(model.Outputs)),
		Fingerprint: model.Fingerprint().String(),
	}
	for _, output := range model.Outputs {
		result.Outputs[output.Name] = model.Values[output.ID].String()
	}
	if opts.Format == "json" {
		return formatter.json(Response{Status: "ok", Data: result, Warnings: diagnostics.Warnings})
	}

	formatter.warnings(diagnostics.Warnings)
	w := formatter.writer
	fmt.Fprintf(w, "✓ %s: %d inputs, %d constants, %d operators\n", path, result.Inputs, result.Constants, result.Operators)
	for _, output := range model.Outputs {
		fmt.Fprintf(w, "\t%s: %s\n", output.Name, result.Outputs[output.Name])
	}
	fmt.Fprintf(w, "fingerprint: %s\n", result.Fingerprint)
	return nil
}
