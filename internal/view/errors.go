package view

import "fmt"

// InvalidRequestError is a caller error: a band index out of range or an
// otherwise malformed read request. Never retried.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// NameMismatchError is raised when a by-name call targets a coverage name
// that is not this view's.
type NameMismatchError struct {
	Requested string
	Actual    string
}

func (e *NameMismatchError) Error() string {
	return fmt.Sprintf("coverage name %q does not match view %q", e.Requested, e.Actual)
}

// IncompatibleSourceError reports a source that failed the consistency check
// against the request's reference fingerprint. The mismatch is structural,
// so the whole composite read aborts and the error is never retried.
type IncompatibleSourceError struct {
	// Aspect is one of envelope, gridRange, metadata, crs, dataType.
	Aspect     string
	SourceName string
	Baseline   string
	Detail     string
}

func (e *IncompatibleSourceError) Error() string {
	msg := fmt.Sprintf("source %q is incompatible with reference %q: %s mismatch",
		e.SourceName, e.Baseline, e.Aspect)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// SourceReadError wraps an I/O or decode failure from an underlying source.
type SourceReadError struct {
	SourceName string
	Err        error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("read source %q: %v", e.SourceName, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}
