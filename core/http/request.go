package http

import (
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Protocol versions
const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)

// Request is a parsed HTTP/1.x request.
type Request struct {
	Method  string
	Path    string // request target exactly as sent, query included
	Version string
	Header  *Header // names lower-cased

	// Body holds the bytes read past the head terminator, extended to the
	// declared Content-Length once the body has been read.
	Body []byte

	RemoteAddr string
}

// RequestLine rebuilds the first line of the request, for logging.
func (r *Request) RequestLine() string {
	return r.Method + " " + r.Path + " " + r.Version
}

// CleanPath returns the request target without query and fragment.
func (r *Request) CleanPath() string {
	p := r.Path
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return p
}

// KeepAlive reports whether the client wants the connection reused.
// HTTP/1.1 defaults to keep-alive unless "Connection: close" is present;
// HTTP/1.0 defaults to close unless "Connection: keep-alive" is present.
func (r *Request) KeepAlive() bool {
	conn := r.Header.Values(HeaderConnection)
	if r.Version == HTTP10 {
		return httpguts.HeaderValuesContainsToken(conn, "keep-alive")
	}
	return !httpguts.HeaderValuesContainsToken(conn, "close")
}

// ContentLength returns the declared body length, 0 when absent. A value
// that is not a non-negative integer, or that disagrees with another
// Content-Length field, is a bad request. So is any Transfer-Encoding:
// only Content-Length framed bodies are read.
func (r *Request) ContentLength() (int64, error) {
	if r.Header.Has(HeaderTransferEncoding) {
		return 0, badRequest("Transfer-Encoding not supported", nil)
	}
	values := r.Header.Values(HeaderContentLength)
	if len(values) == 0 {
		return 0, nil
	}
	var n int64 = -1
	for _, v := range values {
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || parsed < 0 {
			return 0, badRequest("invalid Content-Length", err)
		}
		if n >= 0 && parsed != n {
			return 0, badRequest("conflicting Content-Length values", nil)
		}
		n = parsed
	}
	return n, nil
}

// MediaType returns the Content-Type without parameters, lower-cased.
func (r *Request) MediaType() string {
	ct := r.Header.Get(HeaderContentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// ClientIP returns the host part of RemoteAddr.
func (r *Request) ClientIP() string {
	return HostOf(r.RemoteAddr)
}

// HostOf strips the port from an ip:port or [ip]:port address.
func HostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.Trim(addr, "[]")
	}
	return host
}
