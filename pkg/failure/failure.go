// Package failure classifies every error the engine can surface to a user.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind separates local rule violations from remote and infrastructure failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is raised before any remote call and is never retried.
	KindValidation
	// KindRejection carries a failure reported by the remote service.
	KindRejection
	// KindTransport means the remote service could not be reached.
	KindTransport
	// KindAuthExpiry marks a credential the remote service no longer accepts.
	KindAuthExpiry
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejection:
		return "rejection"
	case KindTransport:
		return "transport"
	case KindAuthExpiry:
		return "auth_expiry"
	default:
		return "unknown"
	}
}

// Error is the concrete type behind every classified failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s %d: %s", e.Kind, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s %d", e.Kind, e.Status)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a rule violation whose message is shown to the user verbatim.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Rejection wraps a non-2xx answer from the remote service. detail may be empty.
func Rejection(status int, detail string) *Error {
	return &Error{Kind: KindRejection, Status: status, Message: strings.TrimSpace(detail)}
}

// Transport wraps a network level failure.
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// AuthExpiry wraps the failure that invalidated a stored credential.
func AuthExpiry(err error) *Error {
	return &Error{Kind: KindAuthExpiry, Err: err}
}

// KindOf returns the classification of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return KindUnknown
}

// IsValidation helps callers distinguish between business and infrastructure failures.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsRejection reports whether the remote service refused the request.
func IsRejection(err error) bool { return KindOf(err) == KindRejection }

// IsTransport reports whether the remote service was unreachable.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// StatusOf returns the HTTP status of a rejection, 0 otherwise.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Reason renders err as the message a user should see. Validation messages and remote details are
// returned verbatim; everything else collapses to fallback.
func Reason(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return fallback
	}
	switch e.Kind {
	case KindValidation, KindRejection:
		if e.Message != "" {
			return e.Message
		}
	}
	return fallback
}
