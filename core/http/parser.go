package http

import (
	"bytes"
	"strings"
)

var (
	crlf           = []byte("\r\n")
	headTerminator = []byte("\r\n\r\n")
)

const ows = " \t"

// asciiLower lower-cases A-Z and leaves every other byte untouched, so
// attacker-supplied octets survive folding unchanged.
func asciiLower(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

// Parse decodes a request head (request line plus header block, including
// the CRLFCRLF terminator) as produced by Receive.
//
// Bytes are taken one octet per character, so no input can fail decoding.
// Header names are lower-cased; obsolete line folding is unfolded with a
// single separating space. Parse is pure: the same input always yields an
// equal Request.
func Parse(head []byte) (*Request, error) {
	end := bytes.Index(head, headTerminator)
	if end < 0 {
		return nil, badRequest("missing header terminator", nil)
	}
	lines := strings.Split(string(head[:end]), string(crlf))

	method, path, version, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}

	unfolded := make([]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(unfolded) > 0 {
			unfolded[len(unfolded)-1] += " " + strings.TrimLeft(line, ows)
			continue
		}
		unfolded = append(unfolded, line)
	}

	h := NewHeader(len(unfolded))
	for _, line := range unfolded {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return nil, badRequest("malformed header line", nil)
		}
		name := asciiLower(strings.Trim(line[:colon], ows))
		if name == "" {
			return nil, badRequest("empty header name", nil)
		}
		h.Add(name, strings.Trim(line[colon+1:], ows))
	}

	if err := checkDuplicates(h); err != nil {
		return nil, err
	}

	return &Request{
		Method:  method,
		Path:    path,
		Version: version,
		Header:  h,
	}, nil
}

func parseRequestLine(line string) (method, path, version string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", badRequest("malformed request line", nil)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", badRequest("malformed request line", nil)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// checkDuplicates rejects repeated Host fields and disagreeing
// Content-Length fields. Other duplicates are kept; Get sees the last one.
func checkDuplicates(h *Header) error {
	if len(h.Values(HeaderHost)) > 1 {
		return badRequest("multiple Host headers", nil)
	}
	cl := h.Values(HeaderContentLength)
	for i := 1; i < len(cl); i++ {
		if cl[i] != cl[0] {
			return badRequest("conflicting Content-Length values", nil)
		}
	}
	return nil
}
