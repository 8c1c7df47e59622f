package order

import (
	"errors"
	"fmt"

	exchange "execution-core/pkg/exchanges/common"
)

// Error categories. Concrete errors below match one of these with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrSession             = errors.New("session error")
	ErrStructuralRejection = errors.New("structural rejection")
	ErrTransient           = errors.New("transient failure")
	ErrPositionNotFound    = exchange.ErrPositionNotFound
)

// InvalidSideError is returned when a side is neither buy nor sell.
type InvalidSideError struct {
	Side string
}

func (e *InvalidSideError) Error() string {
	return fmt.Sprintf("invalid side %q: must be \"buy\" or \"sell\"", e.Side)
}

func (e *InvalidSideError) Is(target error) bool { return target == ErrValidation }

// ValidationError reports a caller input mistake on a named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SessionError wraps a venue session failure. It is never retried by the engine.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: session unavailable: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

func (e *SessionError) Is(target error) bool { return target == ErrSession }

// RejectionError is a structural rejection: resubmitting cannot succeed.
type RejectionError struct {
	Result exchange.OrderResult
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected: %s (%s)", e.Result.RetCode, e.Result.Comment)
}

func (e *RejectionError) Is(target error) bool { return target == ErrStructuralRejection }

// SubmissionExhaustedError carries the last venue answer after every attempt failed transiently.
type SubmissionExhaustedError struct {
	Attempts   int
	LastResult exchange.OrderResult
	LastErr    error
}

func (e *SubmissionExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("order not accepted after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("order not accepted after %d attempts: last retcode %s (%s)",
		e.Attempts, e.LastResult.RetCode, e.LastResult.Comment)
}

func (e *SubmissionExhaustedError) Unwrap() error { return e.LastErr }

func (e *SubmissionExhaustedError) Is(target error) bool { return target == ErrTransient }

// PositionNotFoundError is the expected outcome for a ticket that is already closed.
type PositionNotFoundError struct {
	Ticket uint64
}

func (e *PositionNotFoundError) Error() string {
	return fmt.Sprintf("position %d not found", e.Ticket)
}

func (e *PositionNotFoundError) Is(target error) bool { return target == ErrPositionNotFound }

// ClassifyGatewayErr maps a raw gateway error onto the typed taxonomy. ticket is reported
// when the position is missing.
func ClassifyGatewayErr(op string, ticket uint64, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, exchange.ErrSessionUnavailable):
		return &SessionError{Op: op, Err: err}
	case errors.Is(err, exchange.ErrPositionNotFound):
		return &PositionNotFoundError{Ticket: ticket}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
