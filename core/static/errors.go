package static

import "fmt"

// ErrorKind classifies a failed resolution.
type ErrorKind int

const (
	// Forbidden: traversal, absolute or undecodable path, or a target that
	// escapes the document root.
	Forbidden ErrorKind = iota + 1
	// NotFound: no regular file at the target.
	NotFound
	// UnsupportedMedia: the extension is not served.
	UnsupportedMedia
	// ReadFailed: the file exists but could not be read completely.
	ReadFailed
)

// ResolveError is returned by Resolve and Load.
type ResolveError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error.
func (e *ResolveError) Status() int {
	switch e.Kind {
	case Forbidden:
		return 403
	case NotFound:
		return 404
	case UnsupportedMedia:
		return 415
	default:
		return 500
	}
}

// Traversal reports whether the error is a blocked escape attempt.
func (e *ResolveError) Traversal() bool {
	return e.Kind == Forbidden
}

func forbidden(reason string) *ResolveError {
	return &ResolveError{Kind: Forbidden, Reason: reason}
}
