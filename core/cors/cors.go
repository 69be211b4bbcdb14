// Package cors computes Cross-Origin Resource Sharing headers. It holds no
// state and never touches the connection.
package cors

import (
	"slices"
	"strconv"
	"strings"

	"github.com/searchktools/http1-server/core/http"
)

// Response header names
const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"

	HeaderRequestMethod  = "Access-Control-Request-Method"
	HeaderRequestHeaders = "Access-Control-Request-Headers"
)

// Policy is a CORS configuration. "*" in AllowedOrigins or AllowedHeaders
// allows everything.
type Policy struct {
	AllowedOrigins   []string `yaml:"allowed_origins" split_words:"true"`
	AllowedMethods   []string `yaml:"allowed_methods" split_words:"true"`
	AllowedHeaders   []string `yaml:"allowed_headers" split_words:"true"`
	ExposedHeaders   []string `yaml:"exposed_headers" split_words:"true"`
	AllowCredentials bool     `yaml:"allow_credentials" split_words:"true"`
	MaxAge           int      `yaml:"max_age" split_words:"true"`
}

// DefaultPolicy allows every origin and header for the common methods.
func DefaultPolicy() Policy {
	return Policy{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"DELETE", "GET", "HEAD", "OPTIONS", "POST", "PUT"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	}
}

func (p Policy) originAllowed(origin string) bool {
	return origin != "" && (slices.Contains(p.AllowedOrigins, "*") || slices.Contains(p.AllowedOrigins, origin))
}

func (p Policy) headersAllowed(requested []string) bool {
	if len(requested) == 0 || slices.Contains(p.AllowedHeaders, "*") {
		return true
	}
	for _, h := range requested {
		if !slices.ContainsFunc(p.AllowedHeaders, func(a string) bool { return strings.EqualFold(a, h) }) {
			return false
		}
	}
	return true
}

// Headers returns the CORS headers for a request from origin using
// method. The result is empty when the origin is not allowed.
func (p Policy) Headers(origin, method string, requestHeaders []string) *http.Header {
	h := http.NewHeader(6)
	switch {
	case p.originAllowed(origin):
		h.Set(HeaderAllowOrigin, origin)
	case slices.Contains(p.AllowedOrigins, "*"):
		h.Set(HeaderAllowOrigin, "*")
	default:
		return h
	}

	if p.AllowCredentials && origin != "*" {
		h.Set(HeaderAllowCredentials, "true")
	}
	if slices.Contains(p.AllowedMethods, method) {
		h.Set(HeaderAllowMethods, joinSorted(p.AllowedMethods))
	}
	if p.headersAllowed(requestHeaders) {
		if slices.Contains(p.AllowedHeaders, "*") {
			h.Set(HeaderAllowHeaders, "*")
		} else {
			h.Set(HeaderAllowHeaders, joinSorted(p.AllowedHeaders))
		}
	}
	if len(p.ExposedHeaders) > 0 {
		h.Set(HeaderExposeHeaders, joinSorted(p.ExposedHeaders))
	}
	h.Set(HeaderMaxAge, strconv.Itoa(p.MaxAge))
	return h
}

// ForRequest returns the headers for an ordinary request, or nil when it
// carries no Origin.
func (p Policy) ForRequest(req *http.Request) *http.Header {
	origin := req.Header.Get(http.HeaderOrigin)
	if origin == "" {
		return nil
	}
	return p.Headers(origin, req.Method, nil)
}

// Preflight answers an OPTIONS request: 400 without Origin, 403 when the
// origin is refused, else 200 with the CORS headers.
func (p Policy) Preflight(req *http.Request) (int, *http.Header) {
	origin := req.Header.Get(http.HeaderOrigin)
	if origin == "" {
		return 400, textPlain()
	}
	method := req.Header.Get(HeaderRequestMethod)
	if method == "" {
		method = req.Method
	}
	h := p.Headers(origin, method, splitList(req.Header.Get(HeaderRequestHeaders)))
	if h.Len() == 0 {
		return 403, textPlain()
	}
	return 200, h
}

func textPlain() *http.Header {
	h := http.NewHeader(1)
	h.Set(http.HeaderContentType, "text/plain")
	return h
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinSorted(values []string) string {
	s := slices.Clone(values)
	slices.Sort(s)
	return strings.Join(s, ", ")
}
