package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrItemNotFound        = errors.New("item not found")
	ErrNoUsableItem        = errors.New("no usable hammer")
	ErrNoTokens            = errors.New("no steal tokens")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
	ErrConcurrencyConflict = errors.New("concurrent heist conflict")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrItemNotFound)
}

// ValidationError reports a malformed event or request field. Validation
// failures are never retried and are returned to the caller as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// IneligibleHeistError carries the reason a heist was refused at
// evaluation time. It is non-retryable; the caller must re-request.
type IneligibleHeistError struct {
	Reason         IneligibilityReason
	HoursRemaining int
}

func (e *IneligibleHeistError) Error() string {
	if e.Reason == ReasonCooldown {
		return fmt.Sprintf("heist ineligible: %s (%dh remaining)", e.Reason, e.HoursRemaining)
	}
	return fmt.Sprintf("heist ineligible: %s", e.Reason)
}

// IsConflict reports whether the error is the retryable concurrency
// conflict surfaced by the heist engine after its internal retries.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
