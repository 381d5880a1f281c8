package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Error types reported by ClassifyError.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// TransientError wraps an error that is safe to retry (429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ClientError wraps a 4xx response that repeating the request will not fix.
type ClientError struct {
	Err        error
	StatusCode int
}

func (e *ClientError) Error() string { return e.Err.Error() }

func (e *ClientError) Unwrap() error { return e.Err }

// StatusError classifies err by the HTTP status that caused it: transient
// statuses become a TransientError, other 4xx a ClientError. Anything else
// is returned unchanged.
func StatusError(err error, statusCode int) error {
	switch {
	case IsTransientHTTPStatus(statusCode):
		return NewTransientError(err, statusCode)
	case statusCode >= 400 && statusCode < 500:
		return &ClientError{Err: err, StatusCode: statusCode}
	default:
		return err
	}
}

// PermanentError wraps an error that redelivery cannot fix, such as a job
// whose visitor no longer exists.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as permanent.
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything in its chain) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
}

// IsTransient reports whether err is a TransientError, a network timeout,
// or a connection-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying later.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ClassifyError decides how a job transport treats a failed job. Only
// explicitly permanent errors are dead-lettered; anything else may succeed
// on redelivery.
func ClassifyError(err error) string {
	if IsPermanent(err) {
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}

// ShouldTripProvider reports whether a provider error counts against its
// circuit breaker. Caller cancellation and request-specific 4xx responses do
// not; rejected credentials do.
func ShouldTripProvider(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.StatusCode == http.StatusUnauthorized || ce.StatusCode == http.StatusForbidden
	}
	return true
}
