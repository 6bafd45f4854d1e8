package services

import (
	"errors"
	"fmt"

	"agrobulk/internal/domain"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidState           = errors.New("invalid state")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrDeadlinePassed         = errors.New("deadline passed")
	ErrDuplicateParticipation = errors.New("duplicate participation")
	ErrNoParticipations       = errors.New("no participations")
	ErrValidation             = errors.New("validation error")
)

var (
	ErrNotMember     = fmt.Errorf("%w: caller is not an active member of the group", ErrForbidden)
	ErrNotOwner      = fmt.Errorf("%w: caller does not own the participation", ErrForbidden)
	ErrNotAdmin      = fmt.Errorf("%w: caller is not the group admin", ErrForbidden)
	ErrAdminLeave    = fmt.Errorf("%w: the admin must transfer the role before leaving", ErrForbidden)
	ErrAlreadyMember = fmt.Errorf("%w: user is already a member", ErrInvalidState)
)

// CapacityError reports how much room was left when a quantity did not fit.
type CapacityError struct {
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: requested %d, remaining %d", e.Requested, e.Remaining)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// TransitionError names the current and requested order status.
type TransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

func stateErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidState}, args...)...)
}

// Kind returns the taxonomy name for err, or "internal" for anything that is
// not one of the engine's expected conditions.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrCapacityExceeded):
		return "CapacityExceeded"
	case errors.Is(err, ErrInsufficientStock):
		return "InsufficientStock"
	case errors.Is(err, ErrDeadlinePassed):
		return "DeadlinePassed"
	case errors.Is(err, ErrDuplicateParticipation):
		return "DuplicateParticipation"
	case errors.Is(err, ErrNoParticipations):
		return "NoParticipations"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	default:
		return "internal"
	}
}
