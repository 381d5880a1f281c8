package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped with eris", eris.Wrap(NewTransientError(errors.New("rate limited"), 429), "ipdata: lookup"), true},
		{"net timeout", fmt.Errorf("get: %w", timeoutErr{}), true},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"string pattern", errors.New("read: i/o timeout"), true},
		{"regular", errors.New("invalid input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	inner := errors.New("visitor v1 not found")
	err := eris.Wrap(NewPermanentError(inner), "worker: load visitor")

	assert.True(t, IsPermanent(err))
	assert.True(t, errors.Is(err, inner))
	assert.False(t, IsPermanent(inner))
	assert.False(t, IsPermanent(nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestStatusError(t *testing.T) {
	base := eris.New("clearbit: unexpected status")

	err := StatusError(base, http.StatusServiceUnavailable)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, base)

	err = StatusError(base, http.StatusUnprocessableEntity)
	var ce *ClientError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusUnprocessableEntity, ce.StatusCode)
	assert.False(t, IsTransient(err))

	assert.Same(t, base, StatusError(base, http.StatusNotImplemented))
}

func TestShouldTripProvider(t *testing.T) {
	base := eris.New("upstream")
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", eris.Wrap(context.Canceled, "hunter: request failed"), false},
		{"bad request", StatusError(base, http.StatusBadRequest), false},
		{"unknown domain", fmt.Errorf("apollo: %w", StatusError(base, http.StatusUnprocessableEntity)), false},
		{"bad credentials", StatusError(base, http.StatusUnauthorized), true},
		{"forbidden", StatusError(base, http.StatusForbidden), true},
		{"server error", StatusError(base, http.StatusBadGateway), true},
		{"per-call timeout", context.DeadlineExceeded, true},
		{"plain error", base, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldTripProvider(tt.err))
		})
	}
}
