// Package failure defines the reason codes a resolution can end with and
// the short user-facing message attached to each.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Code is a structured failure reason.
type Code string

const (
	InvalidURL             Code = "invalid_url"
	NoMediaFound           Code = "no_media_found"
	EmptyOrCorruptDownload Code = "empty_or_corrupt_download"
	UpstreamBlocked        Code = "upstream_blocked"
	NotFound               Code = "not_found"
	NetworkTimeout         Code = "network_timeout"
	NetworkError           Code = "network_error"
	FileTooLarge           Code = "file_too_large"
	RateLimited            Code = "rate_limited"
)

var messages = map[Code]string{
	InvalidURL:             "Please send a valid Instagram, Facebook or LinkedIn post link.",
	NoMediaFound:           "No downloadable media was found in that post. It may be private or removed.",
	EmptyOrCorruptDownload: "The media file came back empty or incomplete. Please try again.",
	UpstreamBlocked:        "The platform refused access to this content. It may be private or require login.",
	NotFound:               "That post could not be found. It may have been deleted.",
	NetworkTimeout:         "The platform took too long to respond. Please try again later.",
	NetworkError:           "A network error occurred while fetching the media. Please try again later.",
	FileTooLarge:           "The media file is larger than the allowed size limit.",
	RateLimited:            "Too many requests. Please wait a moment before trying again.",
}

// Message returns the short non-technical message for a code.
func Message(c Code) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "Something went wrong. Please try again later."
}

// Error carries a reason code through the error chain.
type Error struct {
	Code Code
	Op   string // Operation that failed, e.g. "fetch"
	Err  error  // Underlying cause, may be nil
	Msg  string // Overrides the default user message when set
}

// New returns an Error for code, wrapping err.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// WithMessage returns a copy of e with a custom user message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Msg = msg
	return &c
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the user-facing text for this failure.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return Message(e.Code)
}

// CodeOf reports the reason code carried by err. Errors without an attached
// code are classified as NetworkTimeout when they are deadline or net
// timeouts, and NetworkError otherwise. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if IsTimeout(err) {
		return NetworkTimeout
	}
	return NetworkError
}

// MessageOf returns the user-facing text for err.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message()
	}
	return Message(CodeOf(err))
}

// IsTimeout reports whether err is a context deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// FromStatus maps a non-success HTTP status to a reason code.
func FromStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return UpstreamBlocked
	case http.StatusNotFound, http.StatusGone:
		return NotFound
	default:
		return NetworkError
	}
}

// StatusError builds an Error for an unexpected HTTP status.
func StatusError(op string, status int, url string) *Error {
	return New(FromStatus(status), op, fmt.Errorf("unexpected status %d for %s", status, url))
}
