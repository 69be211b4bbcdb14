package middleware

import (
	"strconv"
	"strings"

	"github.com/searchktools/http1-server/core/http"
	"golang.org/x/net/http/httpguts"
)

// HostValidator checks the Host header against the address the server is
// bound to.
type HostValidator struct {
	port       int
	acceptable map[string]struct{}
}

// NewHostValidator builds the acceptance set for bindHost:bindPort.
//
// A wildcard bind (0.0.0.0 or ::) accepts the loopback names, plus
// 0.0.0.0 itself for the IPv4 wildcard. Any other bind accepts the bound
// host and the loopback names; a 127.0.0.1 bind also accepts 0.0.0.0.
func NewHostValidator(bindHost string, bindPort int) *HostValidator {
	names := []string{"127.0.0.1", "localhost"}
	switch bindHost {
	case "0.0.0.0", "::":
		names = append(names, "::1")
		if bindHost == "0.0.0.0" {
			names = append(names, "0.0.0.0")
		}
	default:
		names = append(names, bindHost)
		if bindHost == "127.0.0.1" {
			names = append(names, "0.0.0.0")
		}
	}

	acceptable := make(map[string]struct{}, len(names))
	for _, n := range names {
		acceptable[strings.ToLower(n)] = struct{}{}
	}
	return &HostValidator{port: bindPort, acceptable: acceptable}
}

// Validate returns a 400 Violation when Host is absent and a 403
// Violation when it names another host or port.
func (hv *HostValidator) Validate(h *http.Header) error {
	host := h.Get(http.HeaderHost)
	if host == "" {
		return violation(HostMissing, 400, "Missing Host header")
	}
	if !httpguts.ValidHostHeader(host) {
		return violation(HostMismatch, 403, "Invalid Host header '%s'", host)
	}

	name, port, err := hv.split(host)
	if err != nil {
		return err
	}
	if _, ok := hv.acceptable[strings.ToLower(name)]; !ok {
		return violation(HostMismatch, 403, "Host header '%s' not allowed", name)
	}
	if port != hv.port {
		return violation(HostMismatch, 403, "Host header port %d doesn't match server port %d", port, hv.port)
	}
	return nil
}

// split separates host, host:port, [v6]:port and [v6]. A bare name or a
// bracketed address without port gets the bound port. Unbracketed IPv6
// literals such as ::1 are taken as names without port.
func (hv *HostValidator) split(host string) (string, int, error) {
	var name, portStr string
	switch {
	case strings.HasPrefix(host, "["):
		end := strings.IndexByte(host, ']')
		if end < 0 {
			return "", 0, violation(HostMismatch, 403, "Invalid Host header '%s'", host)
		}
		name = host[1:end]
		rest := host[end+1:]
		if rest == "" {
			return name, hv.port, nil
		}
		if rest[0] != ':' {
			return "", 0, violation(HostMismatch, 403, "Invalid Host header '%s'", host)
		}
		portStr = rest[1:]
	case strings.Count(host, ":") == 1:
		i := strings.IndexByte(host, ':')
		name, portStr = host[:i], host[i+1:]
	default:
		return host, hv.port, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, violation(HostMismatch, 403, "Invalid Host header port '%s'", portStr)
	}
	return name, port, nil
}
