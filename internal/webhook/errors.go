package webhook

import (
	"errors"
	"fmt"
)

// Kind classifies why a delivery failed. Kinds appear in logs only; every
// failure reaches the sender as the same 500 error shape.
type Kind string

const (
	KindInvalidIP        Kind = "invalid_ip"
	KindInvalidSignature Kind = "invalid_signature"
	KindInvalidEvent     Kind = "invalid_event"
	KindMalformedPayload Kind = "malformed_payload"
	KindMissingField     Kind = "missing_field"
	KindSinkFailure      Kind = "sink_failure"
	KindInternal         Kind = "internal"
)

// Error is a classified delivery failure. Message is returned to the sender;
// Err is the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a classified error, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
