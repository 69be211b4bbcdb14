package middleware

import (
	"sync"

	"github.com/searchktools/http1-server/core/http"
)

// SizeLimitConfig caps the size of each part of a request.
type SizeLimitConfig struct {
	MaxHeaderSize        int   `yaml:"max_header_size" json:"max_header_size" split_words:"true"`
	MaxBodySize          int64 `yaml:"max_body_size" json:"max_body_size" split_words:"true"`
	MaxURLLength         int   `yaml:"max_url_length" json:"max_url_length" envconfig:"MAX_URL_LENGTH"`
	MaxHeaderCount       int   `yaml:"max_header_count" json:"max_header_count" split_words:"true"`
	MaxHeaderNameLength  int   `yaml:"max_header_name_length" json:"max_header_name_length" split_words:"true"`
	MaxHeaderValueLength int   `yaml:"max_header_value_length" json:"max_header_value_length" split_words:"true"`
}

// DefaultSizeLimitConfig returns the stock caps.
func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxHeaderSize:        8192,
		MaxBodySize:          10 << 20,
		MaxURLLength:         2048,
		MaxHeaderCount:       100,
		MaxHeaderNameLength:  256,
		MaxHeaderValueLength: 4096,
	}
}

// Rejection reason keys reported by SizeLimiter.Stats.
const (
	ReasonHeaderTooLarge     = "header_too_large"
	ReasonBodyTooLarge       = "body_too_large"
	ReasonURLTooLong         = "url_too_long"
	ReasonHeaderNameTooLong  = "header_name_too_long"
	ReasonHeaderValueTooLong = "header_value_too_long"
	ReasonTooManyHeaders     = "too_many_headers"
)

// SizeLimiter enforces SizeLimitConfig and keeps rejection statistics.
type SizeLimiter struct {
	cfg SizeLimitConfig

	mu       sync.Mutex
	total    uint64
	rejected uint64
	reasons  map[string]uint64
}

// NewSizeLimiter creates a limiter.
func NewSizeLimiter(cfg SizeLimitConfig) *SizeLimiter {
	return &SizeLimiter{cfg: cfg, reasons: make(map[string]uint64)}
}

// Config returns the caps in force.
func (sl *SizeLimiter) Config() SizeLimitConfig {
	return sl.cfg
}

// Validate checks a request against every cap. head is the raw header
// block, bodyLen the declared or received body length, url the request
// target. The first violated cap, checked in the order header size, body
// size, URL length, per-field name and value length, header count,
// determines the 413 reason. Heads over MaxHeaderSize normally never get
// here: http.Receive rejects them with the same limit.
func (sl *SizeLimiter) Validate(head []byte, header *http.Header, bodyLen int64, url string) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.total++

	if len(head) > sl.cfg.MaxHeaderSize {
		return sl.reject(ReasonHeaderTooLarge, "Header too large: %d > %d bytes", len(head), sl.cfg.MaxHeaderSize)
	}
	if bodyLen > sl.cfg.MaxBodySize {
		return sl.reject(ReasonBodyTooLarge, "Body too large: %d > %d bytes", bodyLen, sl.cfg.MaxBodySize)
	}
	if len(url) > sl.cfg.MaxURLLength {
		return sl.reject(ReasonURLTooLong, "URL too long: %d > %d characters", len(url), sl.cfg.MaxURLLength)
	}
	for _, f := range header.Fields() {
		if len(f.Name) > sl.cfg.MaxHeaderNameLength {
			return sl.reject(ReasonHeaderNameTooLong, "Header name too long: %d > %d characters",
				len(f.Name), sl.cfg.MaxHeaderNameLength)
		}
		if len(f.Value) > sl.cfg.MaxHeaderValueLength {
			return sl.reject(ReasonHeaderValueTooLong, "Header value too long: %d > %d characters",
				len(f.Value), sl.cfg.MaxHeaderValueLength)
		}
	}
	if n := header.Len(); n > sl.cfg.MaxHeaderCount {
		return sl.reject(ReasonTooManyHeaders, "Too many headers: %d > %d", n, sl.cfg.MaxHeaderCount)
	}
	return nil
}

func (sl *SizeLimiter) reject(reason, format string, args ...any) error {
	sl.rejected++
	sl.reasons[reason]++
	return violation(PayloadTooLarge, 413, format, args...)
}

// SizeLimitStats is a snapshot of limiter counters.
type SizeLimitStats struct {
	TotalRequests    uint64            `json:"total_requests"`
	RejectedRequests uint64            `json:"rejected_requests"`
	RejectionRate    float64           `json:"rejection_rate"`
	RejectionReasons map[string]uint64 `json:"rejection_reasons"`
	Config           SizeLimitConfig   `json:"config"`
}

// Stats returns limiter counters.
func (sl *SizeLimiter) Stats() SizeLimitStats {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	s := SizeLimitStats{
		TotalRequests:    sl.total,
		RejectedRequests: sl.rejected,
		RejectionReasons: make(map[string]uint64, len(sl.reasons)),
		Config:           sl.cfg,
	}
	for k, v := range sl.reasons {
		s.RejectionReasons[k] = v
	}
	if sl.total > 0 {
		s.RejectionRate = float64(sl.rejected) / float64(sl.total) * 100
	}
	return s
}
