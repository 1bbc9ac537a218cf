// Package apperrors implements the structured error taxonomy used across the
// territory assignment core. Every error raised by the engine carries a
// Type from a fixed, closed set so that callers can switch on it instead of
// string-matching, and so that fatalness (see kinds.go) is a property of the
// kind, never inferred from panic/recover mechanics.
package apperrors

import "fmt"

// ErrorType is the closed set of error kinds the core can raise.
type ErrorType string

const (
	ErrorTypeInvalidSnapshot           ErrorType = "invalid_snapshot"
	ErrorTypeInsufficientReps          ErrorType = "insufficient_reps"
	ErrorTypeInfeasibleBalance         ErrorType = "infeasible_balance"
	ErrorTypePriorityEligibilityExhaus ErrorType = "priority_eligibility_exhausted"
	ErrorTypeStaleStateTransition      ErrorType = "stale_state_transition"
	ErrorTypeNotifierUnavailable       ErrorType = "notifier_unavailable"
	ErrorTypeStoreUnavailable          ErrorType = "store_unavailable"
	ErrorTypeValidation                ErrorType = "validation"
	ErrorTypeInternal                  ErrorType = "internal"
)

// AppError is the structured error carried through the engine. It deliberately
// mirrors the shape of a plain Go error (Error(), Unwrap()) so it composes
// with errors.Is/errors.As, while adding the fields callers need to decide
// whether a failure is fatal for the run.
type AppError struct {
	Type    ErrorType
	Message string
	Details string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New creates an AppError with no underlying cause.
func New(t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(t ErrorType, format string, args ...any) *AppError {
	return &AppError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an existing error as the cause of a new AppError.
func Wrap(cause error, t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message, Cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...any) *AppError {
	return &AppError{Type: t, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails mutates the error in place and returns it, matching the
// builder style used throughout the priority/workflow packages.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf is WithDetails with formatting.
func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	ae, ok := err.(*AppError)
	if !ok {
		return false
	}
	return ae.Type == t
}

// Typed constructors for the kinds named in spec §7.

func NewInvalidSnapshot(detail string) *AppError {
	return New(ErrorTypeInvalidSnapshot, "snapshot failed validation").WithDetails(detail)
}

func NewInsufficientReps() *AppError {
	return New(ErrorTypeInsufficientReps, "no eligible reps available for calibration")
}

func NewInfeasibleBalance(dimension, repID string) *AppError {
	return Newf(ErrorTypeInfeasibleBalance, "no feasible completion exists").
		WithDetailsf("dimension=%s first_blocking_rep=%s", dimension, repID)
}

func NewStaleStateTransition(id, expected, actual string) *AppError {
	return Newf(ErrorTypeStaleStateTransition, "reassignment %s not in expected state", id).
		WithDetailsf("expected=%s actual=%s", expected, actual)
}

func NewStoreUnavailable(cause error) *AppError {
	return Wrap(cause, ErrorTypeStoreUnavailable, "store operation failed")
}

func NewNotifierUnavailable(cause error) *AppError {
	return Wrap(cause, ErrorTypeNotifierUnavailable, "notifier operation failed")
}
