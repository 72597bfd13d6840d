package ledger

import (
	"errors"
	"fmt"
)

// ValidationError marks an event the caller must not retry: the payload
// itself is wrong. Everything else that Record returns is transient and the
// caller is expected to redeliver the same event.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid scoring event: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid scoring event: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
