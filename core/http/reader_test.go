package http

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipe returns the server end of an in-memory connection. The client end
// writes chunks in a goroutine and is closed when the test ends.
func pipe(t *testing.T, chunks ...string) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	go func() {
		for _, c := range chunks {
			if _, err := client.Write([]byte(c)); err != nil {
				return
			}
		}
	}()
	return server
}

func TestReceive(t *testing.T) {
	t.Run("single write", func(t *testing.T) {
		conn := pipe(t, "GET / HTTP/1.1\r\nHost: a\r\n\r\n")
		head, leftover, err := Receive(conn, 8192, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "GET / HTTP/1.1\r\nHost: a\r\n\r\n", string(head))
		assert.Empty(t, leftover)
	})

	t.Run("terminator split across reads", func(t *testing.T) {
		conn := pipe(t, "GET / HTTP/1.1\r\nHost: a\r", "\n\r", "\nbody")
		head, leftover, err := Receive(conn, 8192, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "GET / HTTP/1.1\r\nHost: a\r\n\r\n", string(head))
		assert.Equal(t, "body", string(leftover))
	})

	t.Run("leftover body", func(t *testing.T) {
		conn := pipe(t, "POST /upload HTTP/1.1\r\nContent-Length: 4\r\n\r\nabcd")
		head, leftover, err := Receive(conn, 8192, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "POST /upload HTTP/1.1\r\nContent-Length: 4\r\n\r\n", string(head))
		assert.Equal(t, "abcd", string(leftover))
	})

	t.Run("header too large", func(t *testing.T) {
		conn := pipe(t, "GET / HTTP/1.1\r\nX-Big: "+strings.Repeat("a", 200)+"\r\n\r\n")
		_, _, err := Receive(conn, 64, time.Second)
		assert.True(t, IsKind(err, ErrHeaderTooLarge), "got %v", err)
		assert.Equal(t, 400, err.(*ParseError).Status())
	})

	t.Run("idle timeout", func(t *testing.T) {
		conn := pipe(t)
		_, _, err := Receive(conn, 8192, 20*time.Millisecond)
		require.True(t, IsKind(err, ErrIdle), "got %v", err)
		assert.True(t, err.(*ParseError).Silent())
	})

	t.Run("timeout after partial head", func(t *testing.T) {
		conn := pipe(t, "GET / HTTP/1.1\r\n")
		_, _, err := Receive(conn, 8192, 50*time.Millisecond)
		assert.True(t, IsKind(err, ErrBadRequest), "got %v", err)
	})

	t.Run("closed before request", func(t *testing.T) {
		server, client := net.Pipe()
		defer server.Close()
		client.Close()
		_, _, err := Receive(server, 8192, time.Second)
		require.True(t, IsKind(err, ErrClosed), "got %v", err)
		assert.Zero(t, err.(*ParseError).Status())
	})

	t.Run("closed mid head", func(t *testing.T) {
		server, client := net.Pipe()
		defer server.Close()
		go func() {
			client.Write([]byte("GET / HTTP/1.1\r\nHo"))
			client.Close()
		}()
		_, _, err := Receive(server, 8192, time.Second)
		assert.True(t, IsKind(err, ErrBadRequest), "got %v", err)
	})
}

func TestReadBody(t *testing.T) {
	t.Run("already buffered", func(t *testing.T) {
		conn := pipe(t)
		body, err := ReadBody(conn, []byte("abcdef"), 4, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "abcd", string(body))
	})

	t.Run("remaining bytes read", func(t *testing.T) {
		conn := pipe(t, "cd", "ef")
		body, err := ReadBody(conn, []byte("ab"), 6, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "abcdef", string(body))
	})

	t.Run("short body", func(t *testing.T) {
		server, client := net.Pipe()
		defer server.Close()
		go func() {
			client.Write([]byte("xy"))
			client.Close()
		}()
		_, err := ReadBody(server, nil, 10, time.Second)
		assert.True(t, IsKind(err, ErrBadRequest), "got %v", err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("empty", func(t *testing.T) {
		conn := pipe(t)
		body, err := ReadBody(conn, nil, 0, time.Second)
		require.NoError(t, err)
		assert.Empty(t, body)
	})
}
