package http

import (
	"bufio"
	"bytes"
	nethttp "net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 5, 7, 8, 9, 0, time.FixedZone("CET", 3600))

func testResponder() *Responder {
	return &Responder{
		ServerName:       "test-server",
		KeepAliveTimeout: 30 * time.Second,
		KeepAliveMax:     100,
		Now:              func() time.Time { return fixedNow },
	}
}

// readBack parses raw with the standard library to check it is a valid
// HTTP/1.1 response.
func readBack(t *testing.T, raw []byte) (*nethttp.Response, []byte) {
	t.Helper()
	resp, err := nethttp.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, body.Bytes()
}

func TestBuildMandatoryHeaders(t *testing.T) {
	for _, status := range []int{200, 201, 400, 403, 404, 405, 413, 415, 429, 500, 503} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			body := []byte("payload for " + strconv.Itoa(status))
			raw := testResponder().Build(status, "", nil, body)

			assert.True(t, bytes.HasPrefix(raw, []byte("HTTP/1.1 "+strconv.Itoa(status)+" "+StatusText(status)+"\r\n")))
			resp, got := readBack(t, raw)
			assert.Equal(t, status, resp.StatusCode)
			assert.Equal(t, "Tue, 05 Mar 2024 06:08:09 GMT", resp.Header.Get("Date"))
			assert.Equal(t, "test-server", resp.Header.Get("Server"))
			assert.Equal(t, strconv.Itoa(len(body)), resp.Header.Get("Content-Length"))
			assert.Equal(t, body, got)
		})
	}
}

func TestBuildOverrides(t *testing.T) {
	h := NewHeader(2)
	h.Set(HeaderServer, "custom")
	h.Set("X-Extra", "1")
	raw := testResponder().Build(200, "Fine", h, []byte("ok"))

	assert.True(t, bytes.HasPrefix(raw, []byte("HTTP/1.1 200 Fine\r\n")))
	assert.Equal(t, 1, bytes.Count(raw, []byte("Server:")))
	resp, _ := readBack(t, raw)
	assert.Equal(t, "custom", resp.Header.Get("Server"))
	assert.Equal(t, "1", resp.Header.Get("X-Extra"))
}

func TestBuildSanitizesValues(t *testing.T) {
	h := NewHeader(1)
	h.Set("X-Reflected", "a\r\nSet-Cookie: evil=1")
	raw := testResponder().Build(200, "", h, nil)

	resp, _ := readBack(t, raw)
	assert.Empty(t, resp.Header.Get("Set-Cookie"))
	assert.Equal(t, "a  Set-Cookie: evil=1", resp.Header.Get("X-Reflected"))
}

func TestSerializeConnectionHeaders(t *testing.T) {
	rs := testResponder()

	resp, _ := readBack(t, rs.Serialize(Text(200, "hi"), true))
	assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))
	assert.Equal(t, "timeout=30, max=100", resp.Header.Get("Keep-Alive"))

	resp, _ = readBack(t, rs.Serialize(Text(200, "hi"), false))
	assert.Equal(t, "close", resp.Header.Get("Connection"))
	assert.Empty(t, resp.Header.Get("Keep-Alive"))

	forced := Text(200, "hi")
	forced.Close = true
	resp, _ = readBack(t, rs.Serialize(forced, true))
	assert.Equal(t, "close", resp.Header.Get("Connection"))
}

func TestErrorResponses(t *testing.T) {
	rs := testResponder()

	resp, body := readBack(t, rs.Error(404, "", "Not Found", false))
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))
	assert.Equal(t, "Not Found", string(body))

	resp, _ = readBack(t, rs.Error(400, "", "Bad Request", true))
	assert.Equal(t, "close", resp.Header.Get("Connection"))

	resp, body = readBack(t, rs.MethodNotAllowed([]string{"GET", "POST"}, false))
	assert.Equal(t, 405, resp.StatusCode)
	assert.Equal(t, "GET, POST", resp.Header.Get("Allow"))
	assert.Contains(t, string(body), "GET, POST")

	resp, _ = readBack(t, rs.ServiceUnavailable(5*time.Second, false))
	assert.Equal(t, 503, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.Equal(t, "close", resp.Header.Get("Connection"))

	resp, _ = readBack(t, rs.ServiceUnavailable(1500*time.Millisecond, false))
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
}

func TestZeroResponder(t *testing.T) {
	var rs Responder
	resp, _ := readBack(t, rs.Build(200, "", nil, nil))
	assert.Equal(t, DefaultServerName, resp.Header.Get("Server"))
	assert.Equal(t, "0", resp.Header.Get("Content-Length"))
	_, err := time.Parse(TimeFormat, resp.Header.Get("Date"))
	assert.NoError(t, err)
}
