// Package herr defines the error kinds of spec §7 (InvalidConfiguration,
// OutOfRange, NegativeCount, ConcurrentModification, FormatError, IoError)
// as errors.As-able typed values, in the style of the teacher's errext
// package: a single concrete *Error type carrying a Kind, constructed
// through package-level helpers, with an optional chained hint a caller can surface
// without string-matching Error().
//
// CounterOverflow is deliberately not represented here: per spec §7 it is
// never raised as an error, only recorded as a sticky flag
// (Histogram.HasOverflowed / ReestablishTotalCount).
package herr

import (
	"errors"
	"fmt"
)

// Kind identifies which row of spec §7's error table an Error belongs to.
type Kind int

const (
	InvalidConfiguration Kind = iota
	OutOfRange
	NegativeCount
	ConcurrentModification
	FormatError
	IoError
)

func (k Kind) String() string {
	switch k {
	case InvalidConfiguration:
		return "InvalidConfiguration"
	case OutOfRange:
		return "OutOfRange"
	case NegativeCount:
		return "NegativeCount"
	case ConcurrentModification:
		return "ConcurrentModification"
	case FormatError:
		return "FormatError"
	case IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is the concrete type every constructor in this package returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	hint    string
}

func (e *Error) Error() string {
	if e.hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.hint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Hint returns the human-readable guidance attached via WithHint, if any.
func (e *Error) Hint() string { return e.hint }

// Is reports whether err is, or wraps, an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind == kind
	}
	return false
}

// WithHint attaches (or replaces) human-readable guidance on err, if err
// is an *Error from this package. Non-*Error values pass through unchanged,
// mirroring the teacher's errext.WithHint no-op-on-nil behavior.
func WithHint(err error, hint string) error {
	var typed *Error
	if errors.As(err, &typed) {
		clone := *typed
		clone.hint = hint
		return &clone
	}
	return err
}

func NewInvalidConfiguration(format string, args ...any) error {
	return &Error{Kind: InvalidConfiguration, Message: fmt.Sprintf(format, args...)}
}

func NewOutOfRange(value, highestTrackableValue int64) error {
	return &Error{
		Kind:    OutOfRange,
		Message: fmt.Sprintf("value %d exceeds highest trackable value %d", value, highestTrackableValue),
	}
}

func NewNegativeCount(index int32, count int64) error {
	return &Error{
		Kind:    NegativeCount,
		Message: fmt.Sprintf("counter at index %d would become negative (%d)", index, count),
	}
}

// NewNegativeCountf builds a NegativeCount error from a free-form message,
// for call sites (like the V2 encoder) that observe a negative counter
// without an (index, count) pair in hand.
func NewNegativeCountf(format string, args ...any) error {
	return &Error{Kind: NegativeCount, Message: fmt.Sprintf(format, args...)}
}

func NewConcurrentModification() error {
	return &Error{Kind: ConcurrentModification, Message: "histogram total_count changed during iteration"}
}

func NewFormatError(format string, args ...any) error {
	return &Error{Kind: FormatError, Message: fmt.Sprintf(format, args...)}
}

func NewIoError(cause error) error {
	return &Error{Kind: IoError, Message: "i/o failure", Cause: cause}
}
