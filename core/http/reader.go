package http

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/searchktools/http1-server/core/pools"
)

// readChunkSize is the size of a single socket read while looking for the
// end of the head. Reads may return fewer bytes.
const readChunkSize = 2048

// Receive reads from conn until the CRLFCRLF head terminator is seen and
// returns the head (terminator included) plus any bytes already read past
// it.
//
// A read deadline of timeout is installed for the call and cleared on
// return. A head longer than maxHeaderSize fails with ErrHeaderTooLarge.
// A timeout or EOF before the first byte is ErrIdle or ErrClosed; after a
// partial head it is ErrBadRequest.
func Receive(conn net.Conn, maxHeaderSize int, timeout time.Duration) (head, leftover []byte, err error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, nil, &ParseError{Kind: ErrClosed, Msg: "set read deadline", Err: err}
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	chunk := pools.GetBytes(readChunkSize)
	defer pools.PutBytes(chunk)

	var acc []byte
	for {
		n, rerr := conn.Read(chunk)
		if n > 0 {
			from := len(acc) - len(headTerminator) + 1
			if from < 0 {
				from = 0
			}
			acc = append(acc, chunk[:n]...)
			if idx := bytes.Index(acc[from:], headTerminator); idx >= 0 {
				end := from + idx + len(headTerminator)
				if end > maxHeaderSize {
					return nil, nil, &ParseError{Kind: ErrHeaderTooLarge, Msg: "header section exceeds limit"}
				}
				return acc[:end], acc[end:], nil
			}
			if len(acc) > maxHeaderSize {
				return nil, nil, &ParseError{Kind: ErrHeaderTooLarge, Msg: "header section exceeds limit"}
			}
		}
		if rerr != nil {
			return nil, nil, classifyReadError(rerr, len(acc))
		}
	}
}

func classifyReadError(err error, have int) error {
	timedOut := errors.Is(err, os.ErrDeadlineExceeded)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		timedOut = true
	}
	switch {
	case timedOut && have == 0:
		return &ParseError{Kind: ErrIdle, Msg: "no request before timeout", Err: err}
	case timedOut:
		return badRequest("timed out reading headers", err)
	case have == 0:
		return &ParseError{Kind: ErrClosed, Msg: "peer closed connection", Err: err}
	default:
		return badRequest("connection closed before headers complete", err)
	}
}

// ReadBody completes a body of length n, starting from the bytes Receive
// already returned. Bytes beyond n are discarded: requests are never
// pipelined.
func ReadBody(conn net.Conn, leftover []byte, n int64, timeout time.Duration) ([]byte, error) {
	if int64(len(leftover)) >= n {
		return leftover[:n], nil
	}
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, badRequest("set read deadline", err)
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	body := make([]byte, n)
	copied := copy(body, leftover)
	if _, err := io.ReadFull(conn, body[copied:]); err != nil {
		return nil, badRequest("body shorter than Content-Length", err)
	}
	return body, nil
}
