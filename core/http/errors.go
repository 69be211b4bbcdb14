package http

import (
	"errors"
	"fmt"
)

// ParseErrorKind classifies a failure to read or parse a request head.
type ParseErrorKind int

const (
	// ErrBadRequest is a malformed, truncated or timed out request head.
	ErrBadRequest ParseErrorKind = iota + 1
	// ErrHeaderTooLarge means the head exceeded the configured limit
	// before the terminator was found.
	ErrHeaderTooLarge
	// ErrIdle means no byte of a new request arrived before the timeout.
	ErrIdle
	// ErrClosed means the peer closed the connection between requests.
	ErrClosed
)

func (k ParseErrorKind) String() string {
	switch k {
	case ErrBadRequest:
		return "bad request"
	case ErrHeaderTooLarge:
		return "header too large"
	case ErrIdle:
		return "idle timeout"
	case ErrClosed:
		return "connection closed"
	default:
		return "unknown"
	}
}

// ParseError is returned by Receive, ReadBody and Parse.
type ParseError struct {
	Kind ParseErrorKind
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Status returns the response status for the error. Idle and closed
// connections get no response at all and report 0.
func (e *ParseError) Status() int {
	switch e.Kind {
	case ErrBadRequest, ErrHeaderTooLarge:
		return 400
	default:
		return 0
	}
}

// Silent reports whether the connection should be dropped without a reply.
func (e *ParseError) Silent() bool {
	return e.Kind == ErrIdle || e.Kind == ErrClosed
}

func badRequest(msg string, err error) *ParseError {
	return &ParseError{Kind: ErrBadRequest, Msg: msg, Err: err}
}

// IsKind reports whether err is a *ParseError of the given kind.
func IsKind(err error, kind ParseErrorKind) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Kind == kind
}
