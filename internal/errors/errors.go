// Package errors defines the structured error taxonomy of the parsing
// pipeline. Every stage except reading the input degrades instead of failing;
// the types here let callers tell the two apart.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of error.
type ErrorType int

const (
	// SyntaxDiagnostic - a backend found a syntax problem; recoverable.
	SyntaxDiagnostic ErrorType = iota
	// NoBackendAvailable - no extraction backend serves the language.
	NoBackendAvailable
	// BackendCommunicationFailure - an out-of-process backend timed out,
	// exited, or answered with a malformed response.
	BackendCommunicationFailure
	// UnresolvedReference - a reference could not be resolved in-file.
	UnresolvedReference
	// AggregationDrop - a relationship fell below the confidence threshold.
	AggregationDrop
	// InputReadFailure - the source file could not be read. The only fatal type.
	InputReadFailure
	// Config - missing or invalid configuration.
	Config
	// Internal - unexpected internal state, including recovered panics.
	Internal
)

// Severity represents how critical an error is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Error represents a structured error with context.
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]any
	StackTrace string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop processing of the input.
func (e *Error) IsFatal() bool {
	return e.Type == InputReadFailure || e.Severity == SeverityCritical
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// DetailedString returns the error with type, severity and sorted context.
func (e *Error) DetailedString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s\n", e.Severity, e.Type, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, "Caused by: %v\n", e.Cause)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, e.Context[k])
		}
	}
	if e.StackTrace != "" {
		fmt.Fprintf(&sb, "Stack trace:\n%s\n", e.StackTrace)
	}
	return sb.String()
}

func (t ErrorType) String() string {
	switch t {
	case SyntaxDiagnostic:
		return "SYNTAX_DIAGNOSTIC"
	case NoBackendAvailable:
		return "NO_BACKEND_AVAILABLE"
	case BackendCommunicationFailure:
		return "BACKEND_COMMUNICATION_FAILURE"
	case UnresolvedReference:
		return "UNRESOLVED_REFERENCE"
	case AggregationDrop:
		return "AGGREGATION_DROP"
	case InputReadFailure:
		return "INPUT_READ_FAILURE"
	case Config:
		return "CONFIG"
	case Internal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// defaultSeverity is the severity each type carries unless overridden.
func defaultSeverity(t ErrorType) Severity {
	switch t {
	case InputReadFailure:
		return SeverityCritical
	case BackendCommunicationFailure, Internal, Config:
		return SeverityHigh
	case NoBackendAvailable, SyntaxDiagnostic:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// captureStackTrace captures up to ten frames above the caller.
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		fmt.Fprintf(&sb, "  %s:%d %s\n", file, line, fn.Name())
	}
	return sb.String()
}

// New creates an error of the given type with its default severity.
func New(t ErrorType, message string) *Error {
	return &Error{
		Type:       t,
		Severity:   defaultSeverity(t),
		Message:    message,
		StackTrace: captureStackTrace(2),
	}
}

// Newf is New with a format string.
func Newf(t ErrorType, format string, args ...any) *Error {
	e := New(t, fmt.Sprintf(format, args...))
	e.StackTrace = captureStackTrace(2)
	return e
}

// Wrap wraps err with a type and message. Wrap(nil, ...) returns nil.
func Wrap(err error, t ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:       t,
		Severity:   defaultSeverity(t),
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(2),
	}
}

// IsType reports whether any error in err's chain is an *Error of type t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Type == t {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// TypeOf returns the type of the first *Error in err's chain, or Internal.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return Internal
}

// IsFatal reports whether err is a fatal pipeline error.
func IsFatal(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.IsFatal()
}

// Warning renders err as a "<stage>: <message>" warning line.
func Warning(stage string, err error) string {
	return fmt.Sprintf("%s: %v", stage, err)
}
