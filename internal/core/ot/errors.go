package ot

import (
	"errors"
	"fmt"

	"github.com/sanity-io/litter"
)

var (
	// ErrTransform marks a transform or squash invariant violation. It is a
	// programming error and is never retried.
	ErrTransform = errors.New("ot: transform invariant violated")

	// ErrUnknownPair is wrapped by a TransformError when a rule set has no
	// case for a pair of operation kinds.
	ErrUnknownPair = errors.New("ot: no transform for operation pair")

	// ErrSerialization wraps malformed operations read from the wire.
	ErrSerialization = errors.New("ot: malformed operation")

	// ErrApply is returned when an operation does not fit the state it is
	// applied to.
	ErrApply = errors.New("ot: operation does not apply to state")
)

// TransformError describes a fatal transform failure between two operations.
type TransformError struct {
	Left   any
	Right  any
	Reason string
	Cause  error
}

func (e *TransformError) Error() string {
	msg := fmt.Sprintf("ot: cannot transform %s against %s", dumper.Sdump(e.Left), dumper.Sdump(e.Right))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransformError) Unwrap() error { return e.Cause }

func (e *TransformError) Is(target error) bool { return target == ErrTransform }

// Conflict builds a TransformError for an impossible pair of operations.
func Conflict(left, right any, reason string) error {
	return &TransformError{Left: left, Right: right, Reason: reason}
}

// Unknown builds a TransformError for a pair the rule set does not cover.
func Unknown(left, right any) error {
	return &TransformError{Left: left, Right: right, Cause: ErrUnknownPair}
}

// Diverged builds a TransformError for a rule set whose results keep
// re-entering the same race instead of converging.
func Diverged(left, right any) error {
	return &TransformError{Left: left, Right: right, Reason: "transform does not converge"}
}

// IsFatal reports whether err is a transform invariant violation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrTransform)
}

var dumper = litter.Options{Compact: true, StripPackageNames: true}

// Dump renders a value for debug output.
func Dump(v any) string {
	return litter.Options{StripPackageNames: true}.Sdump(v)
}

func serializationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
}
