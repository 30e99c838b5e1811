package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The graph is invalid: inference failed, cycle, dangling value, etc.
	ExitCommandError = 2 // Command error: file not found, invalid YAML, etc.
)

// ExitError is an error with the exit code the command should end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not an ExitError end with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON output of the commands.
type Response struct {
	Status   string   `json:"status"` // "ok" or "error"
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// outputFormatter writes command results as text or JSON.
type outputFormatter struct {
	format            string
	writer, errWriter io.Writer
	verbose           bool
}

func newOutputFormatter(opts *RootOptions, w, errW io.Writer) *outputFormatter {
	return &outputFormatter{format: opts.Format, writer: w, errWriter: errW, verbose: opts.Verbose}
}

// json writes the response as JSON.
func (f *outputFormatter) json(resp Response) error {
	return json.NewEncoder(f.writer).Encode(resp)
}

// warnings prints the warnings in text format, to the error writer.
func (f *outputFormatter) warnings(warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintf(f.errWriter, "warning: %s\n", warning)
	}
}

// verboseLog writes to the error writer if verbose output was requested.
func (f *outputFormatter) verboseLog(format string, args ...any) {
	if f.verbose {
		fmt.Fprintf(f.errWriter, format+"\n", args...)
	}
}

// fail reports the error: in JSON format it is written as a response, and the error is still returned so the
// command exits with its code.
func (f *outputFormatter) fail(err error, warnings []string) error {
	if f.format == "json" {
		if jsonErr := f.json(Response{Status: "error", Error: err.Error(), Warnings: warnings}); jsonErr != nil {
			return jsonErr
		}
	} else {
		f.warnings(warnings)
	}
	return err
}
