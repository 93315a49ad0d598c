package cli

import (
	"fmt"
	"io"

	"github.com/grovetools/modelcore/errors"
)

// ErrorHandler prints user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates an error handler writing to out
func NewErrorHandler(out io.Writer, verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     out,
	}
}

// Handle prints a message matching the error code and returns err unchanged
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "❌ Configuration not found. Pass --config or create modelcore.yml.\n")

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(h.Out, "❌ Invalid configuration: %v\n", err)
		if ce, ok := err.(*errors.CoreError); ok {
			if path, ok := ce.Details["path"]; ok {
				fmt.Fprintf(h.Out, "Check %v against 'modelcore config schema'.\n", path)
			}
		}

	case errors.ErrCodeAlreadyWatching:
		fmt.Fprintf(h.Out, "❌ %v\n", err)
		if ce, ok := err.(*errors.CoreError); ok {
			fmt.Fprintf(h.Out, "Stop process %v or pass --no-lock.\n", ce.Details["pid"])
		}

	case errors.ErrCodeWorkloadFailed:
		fmt.Fprintf(h.Out, "❌ Job failed: %v\n", err)

	default:
		fmt.Fprintf(h.Out, "❌ Error: %v\n", err)
	}

	if h.Verbose {
		if ce, ok := err.(*errors.CoreError); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", ce.ToJSON())
		}
	}
	return err
}
