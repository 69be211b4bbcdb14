package core

import "errors"

// ConnState is the position of a connection in its request loop.
type ConnState int32

// Connection states. A queued connection enters AwaitRequest when a
// worker picks it up, then cycles through Validating, Dispatching and
// Responding until it is Closed.
const (
	StateQueued ConnState = iota
	StateAwaitRequest
	StateValidating
	StateDispatching
	StateResponding
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateAwaitRequest:
		return "await_request"
	case StateValidating:
		return "validating"
	case StateDispatching:
		return "dispatching"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Routes served outside the document root.
const (
	PathUpload          = "/upload"
	PathMetrics         = "/metrics"
	PathMetricsJSON     = "/metrics.json"
	PathDashboard       = "/security-dashboard"
	PathDashboardJSON   = "/security-dashboard.json"
	mediaJSON           = "application/json"
	contentTypeJSONUTF8 = "application/json; charset=utf-8"
)

// AllowedMethods is the Allow list of a 405 response.
var AllowedMethods = []string{"GET", "POST"}

// Error definitions
var (
	ErrNotListening   = errors.New("server is not listening")
	ErrServerClosed   = errors.New("server closed")
	ErrAlreadyServing = errors.New("server is already serving")
)
