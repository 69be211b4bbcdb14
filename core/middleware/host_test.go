package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostValidator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bindHost string
		host     string
		kind     ViolationKind
	}{
		{"127.0.0.1", "localhost", 0},
		{"127.0.0.1", "127.0.0.1", 0},
		{"127.0.0.1", "localhost:8080", 0},
		{"127.0.0.1", "LOCALHOST:8080", 0},
		{"127.0.0.1", "0.0.0.0:8080", 0},
		{"127.0.0.1", "evil.com", HostMismatch},
		{"127.0.0.1", "localhost:9090", HostMismatch},
		{"127.0.0.1", "localhost:abc", HostMismatch},
		{"127.0.0.1", "", HostMissing},
		{"0.0.0.0", "[::1]:8080", 0},
		{"0.0.0.0", "[::1]", 0},
		{"0.0.0.0", "::1", 0},
		{"0.0.0.0", "0.0.0.0", 0},
		{"::", "0.0.0.0", HostMismatch},
		{"::", "localhost", 0},
		{"192.168.1.5", "192.168.1.5:8080", 0},
		{"192.168.1.5", "localhost", 0},
		{"192.168.1.5", "0.0.0.0", HostMismatch},
		{"0.0.0.0", "[::1", HostMismatch},
		{"0.0.0.0", "[::1]x", HostMismatch},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.bindHost+"/"+tt.host, func(t *testing.T) {
			t.Parallel()
			hv := NewHostValidator(tt.bindHost, 8080)
			h := headerOf()
			if tt.host != "" {
				h.Add("host", tt.host)
			}
			err := hv.Validate(h)
			switch tt.kind {
			case 0:
				require.NoError(t, err)
			case HostMissing:
				requireViolation(t, err, HostMissing, 400)
			default:
				requireViolation(t, err, HostMismatch, 403)
			}
		})
	}
}

func TestHostValidator_Messages(t *testing.T) {
	t.Parallel()
	hv := NewHostValidator("127.0.0.1", 8080)

	v := requireViolation(t, hv.Validate(headerOf("host", "evil.com")), HostMismatch, 403)
	assert.Equal(t, "Host header 'evil.com' not allowed", v.Reason)

	v = requireViolation(t, hv.Validate(headerOf("host", "localhost:81")), HostMismatch, 403)
	assert.Equal(t, "Host header port 81 doesn't match server port 8080", v.Reason)

	v = requireViolation(t, hv.Validate(headerOf()), HostMissing, 400)
	assert.Equal(t, "Missing Host header", v.Reason)
}
