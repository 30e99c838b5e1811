package cli

import (
	"encoding/json"
	"fmt"

	"github.com/gomlx/shapegraph/graphir"
	"github.com/spf13/cobra"
)

// NewBuildCommand creates the build command: it prints the compiled IR.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <graph.yaml>",
		Short: "Build a graph and print its IR",
		Long: `Build the graph described in the YAML file and print the compiled IR, with the dtype, shape and
known contents of every value. With --format=json the IR is printed in its JSON interchange form.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runBuild(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	model, diagnostics, err := opts.buildGraphFile(path)
	if err != nil {
		return formatter.fail(err, warningsOf(diagnostics))
	}
	for _, msg := range diagnostics.Debug {
		formatter.verboseLog("%s", msg)
	}

	if opts.Format == "json" {
		data, err := model.MarshalJSON()
		if err != nil {
			return formatter.fail(err, diagnostics.Warnings)
		}
		return formatter.json(Response{Status: "ok", Data: json.RawMessage(data), Warnings: diagnostics.Warnings})
	}
	formatter.warnings(diagnostics.Warnings)
	_, err = fmt.Fprint(formatter.writer, model.String())
	return err
}

func warningsOf(diagnostics *graphir.RecordingDiagnostics) []string {
	if diagnostics == nil {
		return nil
	}
	return diagnostics.Warnings
}
