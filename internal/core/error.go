/*
Package core provides the generation engine for mksub: the level index space,
the generation worker pool, the bounded hand-off queue, the round-robin
dispatcher and the shutdown coordinator that ties them together.
*/
package core

import (
	"errors"
	"fmt"

	"github.com/ygrebnov/errorc"
)

// Kind classifies an error for the CLI layer, which maps it to an exit code.
type Kind int

const (
	KindOther Kind = iota
	KindConfiguration
	KindFilter
	KindIO
	KindShutdown
)

// String returns the diagnostic name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindFilter:
		return "FilterError"
	case KindIO:
		return "IOError"
	case KindShutdown:
		return "ShutdownRequested"
	default:
		return "Error"
	}
}

// customError is a sentinel error carrying a Kind.
// It implements the standard `error` interface.
type customError struct {
	message string // The error message.
	kind    Kind   // Category used for exit status mapping.
}

// NewError creates a new customError with the given message and kind.
//
// Parameters:
//
//	msg: The textual description of the error.
//	kind: The category the error belongs to.
//
// Returns:
//
//	An error of type *customError.
func NewError(msg string, kind Kind) error {
	return &customError{
		message: msg,
		kind:    kind,
	}
}

// Error implements the standard Go `error` interface.
func (e *customError) Error() string {
	return e.message
}

// Kind returns the category of the error.
func (e *customError) Kind() Kind {
	return e.kind
}

// Sentinel errors. Callers wrap them (fmt.Errorf %w or errorc.With) and test
// with errors.Is.
var (
	// ErrConfiguration covers empty inputs, invalid levels, invalid sizes and
	// index-space overflow. Reported before any generation starts.
	ErrConfiguration = NewError("configuration error", KindConfiguration)
	// ErrFilter indicates a malformed filter pattern.
	ErrFilter = NewError("filter error", KindFilter)
	// ErrIO indicates a shard failed to write, flush or close its destination.
	ErrIO = NewError("output error", KindIO)
	// ErrShutdownRequested is returned when a run was interrupted and
	// everything already generated was drained and flushed.
	ErrShutdownRequested = NewError("shutdown requested", KindShutdown)
	// ErrQueueClosed is returned by Push once the queue no longer accepts items.
	ErrQueueClosed = NewError("queue closed", KindOther)
)

// configError annotates ErrConfiguration with a single field.
func configError(field, detail string) error {
	return errorc.With(ErrConfiguration, errorc.String(field, detail))
}

// KindOf reports the Kind of the first sentinel found in err's chain.
// Unknown errors are KindOther; nil is KindOther too.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrFilter):
		return KindFilter
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, ErrShutdownRequested):
		return KindShutdown
	}
	return KindOther
}

// ExitCode maps a run result to a process exit status.
// A graceful interruption is a success with partial output.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindShutdown:
		return 0
	case KindConfiguration:
		return 2
	case KindFilter:
		return 3
	case KindIO:
		return 4
	}
	return 1
}

// Diagnostic renders the single line surfaced to the user for a failed run.
func Diagnostic(err error) string {
	return fmt.Sprintf("%s: %v", KindOf(err), err)
}
