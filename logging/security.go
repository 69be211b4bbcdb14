package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields set on security violation entries.
const (
	FieldSecurity = "security"
	FieldClient   = "client"
	FieldRequest  = "request"
	FieldReason   = "reason"
)

// Violation logs a security violation at warn level. SecurityHook picks
// such entries up by their security field. When warn is filtered out by
// the logger level the security hooks are fired directly.
func Violation(log logrus.FieldLogger, client, requestLine, reason string) {
	entry := log.WithFields(logrus.Fields{
		FieldSecurity: true,
		FieldClient:   client,
		FieldRequest:  requestLine,
		FieldReason:   reason,
	})
	if entry.Logger == nil || entry.Logger.IsLevelEnabled(logrus.WarnLevel) {
		entry.Warn("SECURITY VIOLATION")
		return
	}

	entry.Time = time.Now()
	entry.Level = logrus.WarnLevel
	entry.Message = "SECURITY VIOLATION"
	for _, h := range entry.Logger.Hooks[logrus.WarnLevel] {
		if sh, ok := h.(*SecurityHook); ok {
			_ = sh.Fire(entry)
		}
	}
}

// SecurityHook appends one line per security entry:
//
//	[<RFC3339 UTC>] SECURITY VIOLATION - <client> - <request line> - <reason>
type SecurityHook struct {
	fallback logrus.FieldLogger

	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewSecurityHook writes to w.
func NewSecurityHook(w io.Writer, fallback logrus.FieldLogger) *SecurityHook {
	return &SecurityHook{w: w, fallback: fallback}
}

// OpenSecurityHook appends to the file at path.
func OpenSecurityHook(path string, fallback logrus.FieldLogger) (*SecurityHook, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open security log %s: %w", path, err)
	}
	h := NewSecurityHook(f, fallback)
	h.c = f
	return h, nil
}

// Levels implements logrus.Hook.
func (h *SecurityHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *SecurityHook) Fire(entry *logrus.Entry) error {
	if sec, _ := entry.Data[FieldSecurity].(bool); !sec {
		return nil
	}
	line := FormatViolation(entry.Time,
		fmt.Sprint(entry.Data[FieldClient]),
		fmt.Sprint(entry.Data[FieldRequest]),
		fmt.Sprint(entry.Data[FieldReason]))

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, line+"\n"); err != nil && h.fallback != nil {
		// The fallback must not carry the security field or it would
		// recurse into this hook.
		h.fallback.Errorf("failed to write security log: %v", err)
	}
	return nil
}

// Close closes the underlying file, if the hook opened one.
func (h *SecurityHook) Close() error {
	if h.c == nil {
		return nil
	}
	return h.c.Close()
}

// FormatViolation renders a security log line.
func FormatViolation(ts time.Time, client, requestLine, reason string) string {
	return fmt.Sprintf("[%s] SECURITY VIOLATION - %s - %s - %s",
		ts.UTC().Format(time.RFC3339), client, requestLine, reason)
}
