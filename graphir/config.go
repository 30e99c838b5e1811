package graphir

import "github.com/gomlx/shapegraph/inference"

// Config of a Builder. It is changed with the Builder's chaining setters.
type Config struct {
	// Promotion controls how operands of different dtypes are handled. By default, it is an error.
	Promotion inference.DTypePromotionConfig

	// MaxPartialLength is the maximum number of elements of an integer tensor whose contents are partially
	// evaluated at build time.
	MaxPartialLength int

	// Diagnostics receives debug messages and warnings.
	Diagnostics Diagnostics
}

// DefaultConfig returns the configuration of new builders.
func DefaultConfig() Config {
	return Config{
		MaxPartialLength: inference.DefaultMaxPartialLength,
		Diagnostics:      DefaultDiagnostics(),
	}
}

// Config returns the current configuration of the builder.
func (b *Builder) Config() Config { return b.config }

// WithDiagnostics sets where the builder reports debug messages and warnings. If nil, they are discarded.
// It returns the builder itself, so calls can be chained.
func (b *Builder) WithDiagnostics(diagnostics Diagnostics) *Builder {
	if diagnostics == nil {
		diagnostics = discardDiagnostics{}
	}
	b.config.Diagnostics = diagnostics
	return b
}

// AllowDTypePromotion enables automatic dtype promotion for operands of different dtypes: the operands are
// promoted to the "largest" dtype (floats before integers, wider before narrower). If disabled (the default),
// mismatched dtypes are an error.
func (b *Builder) AllowDTypePromotion(allow bool) *Builder {
	b.config.Promotion.AllowPromotion = allow
	return b
}

// PrioritizeFloat16 makes Float16 win over Float32 when promoting. Only used if AllowDTypePromotion is set.
func (b *Builder) PrioritizeFloat16(prioritize bool) *Builder {
	b.config.Promotion.PrioritizeFloat16 = prioritize
	return b
}

// WithMaxPartialLength sets the maximum number of elements of an integer tensor whose contents are partially
// evaluated. It only affects values created afterwards.
func (b *Builder) WithMaxPartialLength(length int) *Builder {
	b.config.MaxPartialLength = length
	b.ctx.WithMaxPartialLength(length)
	return b
}

type discardDiagnostics struct{}

func (discardDiagnostics) Debugf(string, ...any) {}
func (discardDiagnostics) Warnf(string, ...any)  {}
