// Package result is the outcome type returned by every mutating
// provisioning step. Expected failures are values, not errors: a step
// either succeeds with the path it produced or fails with a short reason.
package result

import "fmt"

// Result is either Success or Fail.
type Result interface {
	// OK reports whether the result is a Success.
	OK() bool
	isResult()
}

// Success carries the path the step produced or updated.
type Success struct {
	Path string
}

func (Success) OK() bool  { return true }
func (Success) isResult() {}

// Fail carries a short human readable reason and, when available, the
// underlying cause for logging.
type Fail struct {
	Reason string
	Err    error
}

func (Fail) OK() bool  { return false }
func (Fail) isResult() {}

// Error makes a Fail usable wherever an error is expected, e.g. when a
// CLI command turns a failed workflow into a non-zero exit.
func (f Fail) Error() string {
	if f.Err == nil {
		return f.Reason
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f Fail) Unwrap() error { return f.Err }

// Ok builds a Success.
func Ok(path string) Result { return Success{Path: path} }

// Failf builds a Fail with the given reason and cause.
func Failf(reason string, err error) Result { return Fail{Reason: reason, Err: err} }

// Path returns the success path, or "" for a Fail.
func Path(r Result) string {
	if s, ok := r.(Success); ok {
		return s.Path
	}
	return ""
}

// Reason returns the failure reason, or "" for a Success.
func Reason(r Result) string {
	if f, ok := r.(Fail); ok {
		return f.Reason
	}
	return ""
}

// Err converts r into an error: nil for a Success, the Fail itself otherwise.
func Err(r Result) error {
	if f, ok := r.(Fail); ok {
		return f
	}
	return nil
}
