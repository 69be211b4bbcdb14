package http

import (
	"reflect"
	"testing"
)

func TestParseBasic(t *testing.T) {
	head := []byte("GET /index.html?x=1 HTTP/1.1\r\nHost: localhost:8080\r\nUser-Agent: test\r\n\r\n")

	req, err := Parse(head)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Method != "GET" {
		t.Errorf("Expected method GET, got %s", req.Method)
	}
	if req.Path != "/index.html?x=1" {
		t.Errorf("Expected path /index.html?x=1, got %s", req.Path)
	}
	if req.CleanPath() != "/index.html" {
		t.Errorf("Expected clean path /index.html, got %s", req.CleanPath())
	}
	if req.Version != HTTP11 {
		t.Errorf("Expected version HTTP/1.1, got %s", req.Version)
	}
	if got := req.Header.Get("HOST"); got != "localhost:8080" {
		t.Errorf("Expected host localhost:8080, got %q", got)
	}
	if req.Header.Fields()[0].Name != "host" {
		t.Errorf("Expected lower-cased name, got %q", req.Header.Fields()[0].Name)
	}
}

func TestParseDeterministic(t *testing.T) {
	head := []byte("POST /upload HTTP/1.1\r\nHost: a\r\nX-A: 1\r\nX-A: 2\r\nContent-Length: 0\r\n\r\n")

	first, err := Parse(head)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second, err := Parse(head)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Parse is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestParseFolding(t *testing.T) {
	head := []byte("GET / HTTP/1.1\r\nHost: a\r\nX-Long: first\r\n   second\r\n\tthird\r\n\r\n")

	req, err := Parse(head)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := req.Header.Get("x-long"); got != "first second third" {
		t.Errorf("Expected folded value %q, got %q", "first second third", got)
	}
	if req.Header.Len() != 2 {
		t.Errorf("Expected 2 fields, got %d", req.Header.Len())
	}
}

func TestParseDuplicates(t *testing.T) {
	req, err := Parse([]byte("GET / HTTP/1.1\r\nHost: a\r\nAccept: one\r\naccept: two\r\n\r\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := req.Header.Get(HeaderAccept); got != "two" {
		t.Errorf("Expected last value to win, got %q", got)
	}
	if got := req.Header.Values(HeaderAccept); !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Errorf("Expected both values in order, got %v", got)
	}

	if _, err := Parse([]byte("GET / HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\nContent-Length: 5\r\n\r\n")); err != nil {
		t.Errorf("Equal Content-Length values should parse: %v", err)
	}
}

func TestParseRawBytes(t *testing.T) {
	head := []byte("GET /caf\xe9 HTTP/1.1\r\nHost: a\r\nX-Bin: \xff\xfe\x80\r\n\r\n")

	req, err := Parse(head)
	if err != nil {
		t.Fatalf("Parse failed on non-UTF-8 bytes: %v", err)
	}
	if req.Path != "/caf\xe9" {
		t.Errorf("Path bytes changed: %q", req.Path)
	}
	if req.Header.Get("x-bin") != "\xff\xfe\x80" {
		t.Errorf("Header bytes changed: %q", req.Header.Get("x-bin"))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		head string
	}{
		{"two tokens", "GET /\r\n\r\n"},
		{"four tokens", "GET / HTTP/1.1 extra\r\n\r\n"},
		{"double space", "GET  / HTTP/1.1\r\n\r\n"},
		{"empty line", "\r\n\r\n"},
		{"no colon", "GET / HTTP/1.1\r\nHost a\r\n\r\n"},
		{"empty name", "GET / HTTP/1.1\r\n: value\r\n\r\n"},
		{"no terminator", "GET / HTTP/1.1\r\nHost: a\r\n"},
		{"repeated host", "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n"},
		{"conflicting length", "GET / HTTP/1.1\r\nHost: a\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.head))
			if !IsKind(err, ErrBadRequest) {
				t.Fatalf("Expected bad request, got %v", err)
			}
			if err.(*ParseError).Status() != 400 {
				t.Errorf("Expected status 400")
			}
		})
	}
}

func TestRequestKeepAlive(t *testing.T) {
	tests := []struct {
		version    string
		connection string
		want       bool
	}{
		{HTTP11, "", true},
		{HTTP11, "close", false},
		{HTTP11, "Close", false},
		{HTTP11, "keep-alive", true},
		{HTTP10, "", false},
		{HTTP10, "keep-alive", true},
		{HTTP10, "Keep-Alive", true},
		{HTTP10, "close", false},
	}

	for _, tt := range tests {
		h := NewHeader(1)
		if tt.connection != "" {
			h.Add("connection", tt.connection)
		}
		req := &Request{Method: "GET", Path: "/", Version: tt.version, Header: h}
		if got := req.KeepAlive(); got != tt.want {
			t.Errorf("%s Connection=%q: expected keep-alive %v, got %v", tt.version, tt.connection, tt.want, got)
		}
	}
}

func TestRequestContentLength(t *testing.T) {
	tests := []struct {
		values  []string
		want    int64
		wantErr bool
	}{
		{nil, 0, false},
		{[]string{"42"}, 42, false},
		{[]string{" 7 "}, 7, false},
		{[]string{"-1"}, 0, true},
		{[]string{"abc"}, 0, true},
		{[]string{"3", "4"}, 0, true},
	}

	for _, tt := range tests {
		h := NewHeader(2)
		for _, v := range tt.values {
			h.Add("content-length", v)
		}
		req := &Request{Header: h}
		got, err := req.ContentLength()
		if (err != nil) != tt.wantErr {
			t.Errorf("%v: unexpected error state %v", tt.values, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.values, tt.want, got)
		}
	}
}

func TestRequestTransferEncodingRejected(t *testing.T) {
	for _, te := range []string{"chunked", "gzip, chunked", "identity"} {
		h := NewHeader(2)
		h.Add("transfer-encoding", te)
		h.Add("content-length", "5")
		_, err := (&Request{Header: h}).ContentLength()
		if !IsKind(err, ErrBadRequest) {
			t.Errorf("%q: expected bad request, got %v", te, err)
		}
	}
}

func TestRequestMediaTypeAndClient(t *testing.T) {
	h := NewHeader(1)
	h.Add("content-type", "Application/JSON; charset=utf-8")
	req := &Request{Header: h, RemoteAddr: "[::1]:5000"}

	if req.MediaType() != "application/json" {
		t.Errorf("Expected application/json, got %q", req.MediaType())
	}
	if req.ClientIP() != "::1" {
		t.Errorf("Expected ::1, got %q", req.ClientIP())
	}
	if HostOf("10.0.0.1:80") != "10.0.0.1" {
		t.Errorf("HostOf failed for ip:port")
	}
	if HostOf("10.0.0.1") != "10.0.0.1" {
		t.Errorf("HostOf failed for bare ip")
	}
}
