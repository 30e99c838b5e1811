// Package cli implements the shapegraph command line: it builds graphs described in YAML files and prints the
// inferred IR.
package cli

import (
	"slices"

	"github.com/gomlx/shapegraph/graphir"
	"github.com/gomlx/shapegraph/inference"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// AllowPromotion and MaxPartialLength configure the graph builder.
	AllowPromotion   bool
	MaxPartialLength int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the shapegraph CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shapegraph",
		Short: "shapegraph - symbolic shape inference for tensor graphs",
		Long: `Build tensor computation graphs described in YAML, inferring the dtype, the symbolic shape
(e.g. "(N, 3, 224, 224)") and the small integer contents of every value.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return errors.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.MaxPartialLength < 0 {
				return errors.Errorf("invalid --max-partial %d: must be >= 0", opts.MaxPartialLength)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.AllowPromotion, "promote", false,
		"promote operands of different dtypes instead of failing")
	cmd.PersistentFlags().IntVar(&opts.MaxPartialLength, "max-partial", inference.DefaultMaxPartialLength,
		"maximum number of elements of integer values evaluated at build time")

	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewOpsCommand(opts))

	return cmd
}

// newBuilder creates a graph builder configured by the global flags. Diagnostics are recorded, to be reported
// by the command.
func (opts *RootOptions) newBuilder() (*graphir.Builder, *graphir.RecordingDiagnostics) {
	diagnostics := &graphir.RecordingDiagnostics{}
	b := graphir.NewBuilder().
		WithDiagnostics(diagnostics).
		AllowDTypePromotion(opts.AllowPromotion).
		WithMaxPartialLength(opts.MaxPartialLength)
	return b, diagnostics
}

// buildGraphFile loads the graph file and compiles it.
func (opts *RootOptions) buildGraphFile(path string) (*graphir.Model, *graphir.RecordingDiagnostics, error) {
	gf, err := LoadGraphFile(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading "+path, err)
	}
	b, diagnostics := opts.newBuilder()
	model, err := gf.Build(b)
	if err != nil {
		return nil, diagnostics, WrapExitError(ExitFailure, "building "+path, err)
	}
	return model, diagnostics, nil
}
