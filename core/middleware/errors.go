package middleware

import "fmt"

// ViolationKind identifies which gate check rejected a request.
type ViolationKind int

const (
	RateLimited ViolationKind = iota + 1
	PayloadTooLarge
	HostMissing
	HostMismatch
	BadRequest
)

// EventType is the name used for the kind in security events.
func (k ViolationKind) EventType() string {
	switch k {
	case RateLimited:
		return "rate_limit"
	case PayloadTooLarge:
		return "request_too_large"
	case HostMissing:
		return "missing_host"
	case HostMismatch:
		return "host_mismatch"
	case BadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

func (k ViolationKind) String() string { return k.EventType() }

// Violation is returned by every gate check. A request that produced a
// Violation is answered with Status and its connection is closed.
type Violation struct {
	Kind   ViolationKind
	Status int
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s (%d): %s", v.Kind, v.Status, v.Reason)
}

func violation(kind ViolationKind, status int, format string, args ...any) *Violation {
	return &Violation{Kind: kind, Status: status, Reason: fmt.Sprintf(format, args...)}
}
