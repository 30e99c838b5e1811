package graphir

import (
	"fmt"

	"k8s.io/klog/v2"
)

// Diagnostics receives the non-fatal messages of a Builder: debug traces of each operator applied and warnings
// from the inference rules (e.g. a shape that could not be resolved).
type Diagnostics interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// klogDiagnostics is the default Diagnostics: debug messages go to klog.V(1).
type klogDiagnostics struct{}

func (klogDiagnostics) Debugf(format string, args ...any) {
	if klog.V(1).Enabled() {
		klog.Infof(format, args...)
	}
}

func (klogDiagnostics) Warnf(format string, args ...any) { klog.Warningf(format, args...) }

// DefaultDiagnostics returns the Diagnostics used by new builders, which logs with klog.
func DefaultDiagnostics() Diagnostics { return klogDiagnostics{} }

// RecordingDiagnostics keeps the messages it receives, for tests.
type RecordingDiagnostics struct {
	Debug, Warnings []string
}

var _ Diagnostics = (*RecordingDiagnostics)(nil)

// Debugf implements Diagnostics.
func (r *RecordingDiagnostics) Debugf(format string, args ...any) {
	r.Debug = append(r.Debug, fmt.Sprintf(format, args...))
}

// Warnf implements Diagnostics.
func (r *RecordingDiagnostics) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Reset discards the recorded messages.
func (r *RecordingDiagnostics) Reset() {
	r.Debug, r.Warnings = nil, nil
}
