package remote

import (
	"errors"
	"fmt"

	"github.com/aagamb/granthsync/internal/data"
)

// Kind classifies remote client failures.
type Kind string

const (
	KindInvalidURL    Kind = "invalid_url"
	KindNetwork       Kind = "network"
	KindHTTPStatus    Kind = "http_status"
	KindNoData        Kind = "no_data"
	KindNotConfigured Kind = "not_configured"
)

// Error is the remote client's error type. Status is set for
// KindHTTPStatus only.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidURL:
		return fmt.Sprintf("invalid URL: %v", e.Err)
	case KindHTTPStatus:
		return fmt.Sprintf("HTTP error with status code %d", e.Status)
	case KindNoData:
		return "no data received from server"
	case KindNotConfigured:
		return data.ErrNotConfigured.Error()
	default:
		return fmt.Sprintf("network error: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, data.ErrNotConfigured) match configuration errors.
func (e *Error) Is(target error) bool {
	return e.Kind == KindNotConfigured && target == data.ErrNotConfigured
}

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// retryable reports whether the failure may succeed on a later attempt.
// Configuration and URL construction errors never do.
func retryable(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == KindNetwork || k == KindHTTPStatus)
}
