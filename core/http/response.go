package http

import (
	"strconv"
	"strings"
	"time"
)

// DefaultServerName is sent in the Server header unless overridden.
const DefaultServerName = "Multi-threaded HTTP Server"

// TimeFormat is the IMF-fixdate layout used for the Date header.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Response is a response that has not been serialized yet.
type Response struct {
	Status int
	Reason string // empty means StatusText(Status)
	Header *Header
	Body   []byte

	// Close forces the connection closed after this response.
	Close bool
}

// NewResponse creates a response with an empty header.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Header: NewHeader(4), Body: body}
}

// Text creates a text/plain response with a UTF-8 body.
func Text(status int, body string) *Response {
	r := NewResponse(status, []byte(body))
	r.Header.Set(HeaderContentType, "text/plain; charset=utf-8")
	return r
}

// Responder serializes responses. The zero value is usable.
type Responder struct {
	ServerName string

	// Keep-Alive parameters advertised on persistent connections.
	KeepAliveTimeout time.Duration
	KeepAliveMax     int

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultResponder uses the defaults of the original server: 30s idle
// timeout and 100 requests per connection.
var DefaultResponder = &Responder{
	ServerName:       DefaultServerName,
	KeepAliveTimeout: 30 * time.Second,
	KeepAliveMax:     100,
}

func (rs *Responder) now() time.Time {
	if rs.Now != nil {
		return rs.Now()
	}
	return time.Now()
}

func (rs *Responder) serverName() string {
	if rs.ServerName == "" {
		return DefaultServerName
	}
	return rs.ServerName
}

// Build serializes a response. Date, Server and Content-Length are always
// present; a field in headers with the same name replaces the default.
// The status line is always HTTP/1.1.
func (rs *Responder) Build(status int, reason string, headers *Header, body []byte) []byte {
	if reason == "" {
		reason = StatusText(status)
	}

	base := [3]Field{
		{HeaderDate, rs.now().UTC().Format(TimeFormat)},
		{HeaderServer, rs.serverName()},
		{HeaderContentLength, strconv.Itoa(len(body))},
	}

	size := 64 + len(body)
	for _, f := range headers.Fields() {
		size += len(f.Name) + len(f.Value) + 4
	}
	buf := make([]byte, 0, size)

	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(status), 10)
	buf = append(buf, ' ')
	buf = append(buf, reason...)
	buf = append(buf, crlf...)

	for _, f := range base {
		if headers.Has(f.Name) {
			continue
		}
		buf = appendField(buf, f.Name, f.Value)
	}
	for _, f := range headers.Fields() {
		buf = appendField(buf, f.Name, f.Value)
	}
	buf = append(buf, crlf...)
	buf = append(buf, body...)
	return buf
}

// Serialize builds r after adding the connection management headers.
func (rs *Responder) Serialize(r *Response, keepAlive bool) []byte {
	if r.Header == nil {
		r.Header = NewHeader(4)
	}
	rs.setConnection(r.Header, keepAlive && !r.Close)
	return rs.Build(r.Status, r.Reason, r.Header, r.Body)
}

func (rs *Responder) setConnection(h *Header, keepAlive bool) {
	if keepAlive {
		h.Set(HeaderConnection, "keep-alive")
		h.Set(HeaderKeepAlive, "timeout="+strconv.Itoa(int(rs.KeepAliveTimeout/time.Second))+
			", max="+strconv.Itoa(rs.KeepAliveMax))
		return
	}
	h.Set(HeaderConnection, "close")
	h.Del(HeaderKeepAlive)
}

// Error builds a text/plain error response.
func (rs *Responder) Error(status int, reason, body string, closeConn bool) []byte {
	r := Text(status, body)
	r.Reason = reason
	return rs.Serialize(r, !closeConn)
}

// NotAllowed creates a 405 response carrying the mandatory Allow header.
func NotAllowed(allowed []string) *Response {
	methods := strings.Join(allowed, ", ")
	r := Text(405, "Method not allowed. Allowed methods: "+methods)
	r.Header.Set(HeaderAllow, methods)
	return r
}

// Unavailable creates a 503 response carrying the mandatory Retry-After
// header, rounded up to whole seconds.
func Unavailable(retryAfter time.Duration) *Response {
	r := Text(503, "Service temporarily unavailable. Please try again later.")
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	r.Header.Set(HeaderRetryAfter, strconv.Itoa(secs))
	return r
}

// MethodNotAllowed serializes NotAllowed.
func (rs *Responder) MethodNotAllowed(allowed []string, closeConn bool) []byte {
	return rs.Serialize(NotAllowed(allowed), !closeConn)
}

// ServiceUnavailable serializes Unavailable. The connection is closed
// unless keepAlive is set.
func (rs *Responder) ServiceUnavailable(retryAfter time.Duration, keepAlive bool) []byte {
	return rs.Serialize(Unavailable(retryAfter), keepAlive)
}

// appendField writes one header line. CR and LF inside values are
// replaced so reflected request data cannot split the response.
func appendField(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ": "...)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\r' || c == '\n' {
			c = ' '
		}
		buf = append(buf, c)
	}
	return append(buf, crlf...)
}
