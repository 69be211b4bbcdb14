package core

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/searchktools/http1-server/core/http"
	"github.com/searchktools/http1-server/core/middleware"
	"github.com/searchktools/http1-server/core/observability"
	"github.com/searchktools/http1-server/logging"
)

const (
	// lingerTimeout bounds how long unread request bytes are drained
	// after a closing error response, so the peer reads the response
	// instead of a reset.
	lingerTimeout = 500 * time.Millisecond
	lingerMax     = 256 << 10

	rejectWriteTimeout = time.Second
)

// Connection is one accepted client socket. It is a pools.Task: the
// worker that runs it owns the socket until Run returns.
type Connection struct {
	id     string
	srv    *Server
	nc     net.Conn
	remote string
	log    *logrus.Entry

	state  atomic.Int32
	served int

	closeOnce sync.Once
}

func newConnection(s *Server, nc net.Conn) *Connection {
	c := &Connection{
		id:     uuid.NewString(),
		srv:    s,
		nc:     nc,
		remote: nc.RemoteAddr().String(),
	}
	c.log = s.log.WithFields(logrus.Fields{
		"conn":   c.id,
		"client": c.remote,
	})
	c.state.Store(int32(StateQueued))
	return c
}

// State returns the current state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Connection) setState(st ConnState) {
	c.state.Store(int32(st))
}

// Run serves requests until the connection closes. Socket errors end the
// loop; they never escape to the worker.
func (c *Connection) Run() {
	defer c.close()
	c.log.Debug("connection started")
	for c.serve() {
	}
	c.log.WithField("requests", c.served).Debug("connection closed")
}

// Reject answers 503 with Retry-After and closes. The pool calls it for
// connections it will never run.
func (c *Connection) Reject() {
	_ = c.nc.SetWriteDeadline(time.Now().Add(rejectWriteTimeout))
	_, _ = c.nc.Write(c.srv.responder.ServiceUnavailable(c.srv.cfg.RetryAfter, false))
	c.close()
}

// serve handles one request and reports whether the connection stays
// open for another.
func (c *Connection) serve() bool {
	// Shutdown closes sockets found in AwaitRequest, so the state is
	// published before the stop check.
	c.setState(StateAwaitRequest)
	if c.srv.stopping() {
		return false
	}

	head, leftover, err := http.Receive(c.nc, int(c.srv.cfg.Limits.MaxHeaderSize), c.srv.cfg.IdleTimeout)
	start := c.srv.clock.Now()
	if err != nil {
		return c.abort(nil, err, start)
	}

	c.setState(StateValidating)
	req, err := http.Parse(head)
	if err != nil {
		return c.abort(nil, err, start)
	}
	req.RemoteAddr = c.remote

	n, err := req.ContentLength()
	if err != nil {
		return c.abort(req, err, start)
	}
	err = c.srv.gate.Check(&middleware.Subject{
		ClientIP: req.ClientIP(),
		Head:     head,
		Header:   req.Header,
		BodyLen:  n,
		URL:      req.Path,
	})
	if err != nil {
		return c.abort(req, err, start)
	}
	req.Body, err = http.ReadBody(c.nc, leftover, n, c.srv.cfg.IdleTimeout)
	if err != nil {
		return c.abort(req, err, start)
	}
	c.served++

	c.setState(StateDispatching)
	resp := c.srv.route(req, c.log)

	keepAlive := req.KeepAlive() &&
		!resp.Close &&
		c.served < c.srv.cfg.MaxRequestsPerConn &&
		!c.srv.stopping()

	c.setState(StateResponding)
	raw := c.srv.responder.Serialize(resp, keepAlive)
	err = c.write(raw)
	c.record(req, resp.Status, len(raw), start)
	if err != nil {
		c.log.WithError(err).Debug("write failed")
		return false
	}
	return keepAlive
}

// abort handles a request that failed before dispatch. Idle and closed
// connections end silently; anything else is answered and the
// connection is closed.
func (c *Connection) abort(req *http.Request, err error, start time.Time) bool {
	line := "-"
	if req != nil {
		line = req.RequestLine()
	}
	ip := http.HostOf(c.remote)

	var (
		pe *http.ParseError
		v  *middleware.Violation
	)
	status, body := 500, "Internal Server Error"
	switch {
	case errors.As(err, &pe):
		if pe.Silent() {
			c.log.WithField("reason", pe.Kind.String()).Debug("connection ended")
			return false
		}
		status, body = pe.Status(), "Bad Request: "+pe.Msg
		c.log.WithError(err).WithField("request", line).Info("malformed request")
		c.srv.dashboard.Record(observability.SecurityEvent{
			Type:     middleware.BadRequest.EventType(),
			ClientIP: ip,
			Blocked:  true,
			Details:  map[string]string{"reason": pe.Msg, "request": line},
		})
	case errors.As(err, &v):
		status, body = v.Status, v.Reason
		logging.Violation(c.log, c.remote, line, v.Reason)
		c.srv.dashboard.RecordViolation(ip, line, v)
	default:
		c.log.WithError(err).WithField("request", line).Error("request failed")
	}

	c.setState(StateResponding)
	raw := c.srv.responder.Error(status, "", body, true)
	werr := c.write(raw)
	if req != nil {
		c.record(req, status, len(raw), start)
	}
	if werr == nil {
		c.linger()
	}
	return false
}

// write sends p. Payloads above the chunk threshold go out in fixed
// blocks, each with its own write deadline.
func (c *Connection) write(p []byte) error {
	cfg := c.srv.cfg
	if len(p) <= cfg.WriteChunkThreshold {
		if err := c.nc.SetWriteDeadline(time.Now().Add(cfg.IdleTimeout)); err != nil {
			return err
		}
		_, err := c.nc.Write(p)
		return err
	}
	for len(p) > 0 {
		n := min(len(p), cfg.WriteChunkSize)
		if err := c.nc.SetWriteDeadline(time.Now().Add(cfg.IdleTimeout)); err != nil {
			return err
		}
		if _, err := c.nc.Write(p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// linger half-closes the socket and drains what the client already sent.
func (c *Connection) linger() {
	if tc, ok := c.nc.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	_ = c.nc.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.CopyN(io.Discard, c.nc, lingerMax)
}

func (c *Connection) record(req *http.Request, status, bytesSent int, start time.Time) {
	elapsed := c.srv.clock.Since(start)
	c.srv.metrics.Record(observability.RequestRecord{
		Method:    req.Method,
		Path:      req.CleanPath(),
		Status:    status,
		Duration:  elapsed,
		ClientIP:  req.ClientIP(),
		Timestamp: start,
		BytesSent: bytesSent,
	})
	c.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"path":     req.Path,
		"status":   status,
		"duration": elapsed,
		"request":  c.served,
	}).Info("request served")
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		_ = c.nc.Close()
		c.srv.untrack(c)
	})
}
