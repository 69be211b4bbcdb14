package middleware

import "github.com/searchktools/http1-server/core/http"

// Subject is the part of a request the gate inspects. Body is not read
// yet when the gate runs, so BodyLen is the declared Content-Length.
type Subject struct {
	ClientIP string
	Head     []byte
	Header   *http.Header
	BodyLen  int64
	URL      string
}

// Check inspects a subject and returns a *Violation to reject it.
type Check func(*Subject) error

type namedCheck struct {
	name  string
	check Check
}

// Gate runs checks in registration order and stops at the first failure.
type Gate struct {
	checks []namedCheck

	rate *RateLimiter
	size *SizeLimiter
	host *HostValidator
}

// NewGate composes the standard gate: rate limit, then size limits, then
// Host validation. Nil components are skipped.
func NewGate(rate *RateLimiter, size *SizeLimiter, host *HostValidator) *Gate {
	g := &Gate{
		checks: make([]namedCheck, 0, 4),
		rate:   rate,
		size:   size,
		host:   host,
	}
	if rate != nil {
		g.Use("rate_limit", func(s *Subject) error { return rate.Allow(s.ClientIP) })
	}
	if size != nil {
		g.Use("size_limit", func(s *Subject) error {
			return size.Validate(s.Head, s.Header, s.BodyLen, s.URL)
		})
	}
	if host != nil {
		g.Use("host", func(s *Subject) error { return host.Validate(s.Header) })
	}
	return g
}

// Use appends a check.
func (g *Gate) Use(name string, c Check) *Gate {
	g.checks = append(g.checks, namedCheck{name: name, check: c})
	return g
}

// Names returns the check names in execution order.
func (g *Gate) Names() []string {
	names := make([]string, len(g.checks))
	for i, c := range g.checks {
		names[i] = c.name
	}
	return names
}

// Check runs every check in order and returns the first failure.
func (g *Gate) Check(s *Subject) error {
	for _, c := range g.checks {
		if err := c.check(s); err != nil {
			return err
		}
	}
	return nil
}
