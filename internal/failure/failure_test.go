package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"direct", New(NoMediaFound, "resolve", nil), NoMediaFound},
		{"wrapped", fmt.Errorf("outer: %w", New(UpstreamBlocked, "fetch", nil)), UpstreamBlocked},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), NetworkTimeout},
		{"net timeout", timeoutErr{}, NetworkTimeout},
		{"plain", errors.New("connection reset"), NetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestFromStatus(t *testing.T) {
	assert.Equal(t, UpstreamBlocked, FromStatus(http.StatusForbidden))
	assert.Equal(t, UpstreamBlocked, FromStatus(http.StatusTooManyRequests))
	assert.Equal(t, NotFound, FromStatus(http.StatusNotFound))
	assert.Equal(t, NotFound, FromStatus(http.StatusGone))
	assert.Equal(t, NetworkError, FromStatus(http.StatusBadGateway))
}

func TestMessageOverride(t *testing.T) {
	base := New(InvalidURL, "classify", nil)
	custom := base.WithMessage("No link found in your message.")

	assert.Equal(t, Message(InvalidURL), base.Message())
	assert.Equal(t, "No link found in your message.", MessageOf(fmt.Errorf("wrap: %w", custom)))
	assert.Equal(t, InvalidURL, CodeOf(custom))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(NetworkError, "fetch", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch: network_error: boom", err.Error())
}
