// Package wipeerr classifies engine failures into the coarse kinds that drive
// control flow and exit codes.
package wipeerr

import (
	"github.com/cockroachdb/errors"
)

// Kinds. Concrete errors are marked with one of these and matched with
// errors.Is; the message text carries the diagnostic detail.
var (
	ErrAccessDenied      = errors.New("access denied")
	ErrIOFailure         = errors.New("i/o failure")
	ErrCapacityExhausted = errors.New("capacity exhausted")
	ErrExternalTool      = errors.New("external tool failed")
	ErrCancelled         = errors.New("operation cancelled")
	ErrSystemVolume      = errors.New("refusing to operate on the system volume")
	ErrInvalidTarget     = errors.New("invalid target")
)

const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

// Mark wraps err with a formatted context message and tags it with kind.
// A nil err yields nil.
func Mark(err error, kind error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), kind)
}

// New creates an error of the given kind.
func New(kind error, format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), kind)
}

// Cancelled returns an ErrCancelled error naming where the halt was observed.
func Cancelled(where string) error {
	return errors.Mark(errors.Newf("%s: cancelled", where), ErrCancelled)
}

func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }

// IsCapacityExhausted reports the expected terminal condition of a fill.
func IsCapacityExhausted(err error) bool { return errors.Is(err, ErrCapacityExhausted) }

// ExitCode maps a run outcome to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCancelled):
		return ExitCancelled
	default:
		return ExitFailure
	}
}

// WithHint attaches operator guidance shown alongside the error message.
func WithHint(err error, hint string) error {
	return errors.WithHint(err, hint)
}

// Hints returns the hints attached anywhere in err's chain.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
