package gateway

import (
	"errors"
	"fmt"
)

// ErrSessionNotReady signals that the messaging session is not in the
// ready state. Callers may retry after the session connects; the HTTP
// layer maps it to a locked (423) response, not a server error.
var ErrSessionNotReady = errors.New("session not ready")

// InvalidArgumentError reports a malformed or missing request field.
// Caller error; surfaced verbatim and never retried.
type InvalidArgumentError struct {
	Field string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Field)
}

// InvalidArgument builds an InvalidArgumentError for field.
func InvalidArgument(field string) error {
	return &InvalidArgumentError{Field: field}
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}

// InvalidPayloadError reports a malformed inbound event. The event is
// dropped: not persisted, not published.
type InvalidPayloadError struct {
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid payload: %s", e.Reason)
}

// InvalidPayload builds an InvalidPayloadError with reason.
func InvalidPayload(reason string) error {
	return &InvalidPayloadError{Reason: reason}
}

// IsInvalidPayload reports whether err is an InvalidPayloadError.
func IsInvalidPayload(err error) bool {
	var ip *InvalidPayloadError
	return errors.As(err, &ip)
}
