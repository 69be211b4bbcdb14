package observability

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
	"k8s.io/utils/clock"

	"github.com/searchktools/http1-server/core/pools"
)

// Version is reported by the JSON metrics document.
const Version = "1.0.0"

// recentCapacity bounds the ring of recent requests.
const recentCapacity = 1000

// RequestRecord describes one completed request.
type RequestRecord struct {
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Status    int           `json:"status_code"`
	Duration  time.Duration `json:"-"`
	ClientIP  string        `json:"client_ip"`
	Timestamp time.Time     `json:"timestamp"`
	BytesSent int           `json:"content_length"`

	DurationMs float64 `json:"response_time_ms"`
}

// EndpointStats aggregates requests for one "METHOD path" key.
type EndpointStats struct {
	Requests  uint64  `json:"requests"`
	Errors    uint64  `json:"errors"`
	AvgMs     float64 `json:"avg_response_time_ms"`
	MinMs     float64 `json:"min_response_time_ms"`
	MaxMs     float64 `json:"max_response_time_ms"`
	ErrorRate float64 `json:"error_rate"`

	totalMs float64
}

// ClientStats aggregates requests for one client IP.
type ClientStats struct {
	Requests  uint64    `json:"requests"`
	Errors    uint64    `json:"errors"`
	LastSeen  time.Time `json:"last_seen"`
	ErrorRate float64   `json:"error_rate"`
}

// Summary holds server-wide request totals.
type Summary struct {
	TotalRequests     uint64  `json:"total_requests"`
	TotalErrors       uint64  `json:"total_errors"`
	ErrorRate         float64 `json:"error_rate"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	AvgResponseMs     float64 `json:"avg_response_time_ms"`
	MinResponseMs     float64 `json:"min_response_time_ms"`
	MaxResponseMs     float64 `json:"max_response_time_ms"`
	TotalBytesSent    uint64  `json:"total_bytes_sent"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// Collector aggregates completed requests. Every Record updates both the
// in-process summaries served as JSON and the Prometheus registry served
// as text.
type Collector struct {
	clock clock.PassiveClock
	start time.Time

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	errors   prometheus.Counter
	duration prometheus.Histogram
	bytes    prometheus.Counter

	mu        sync.Mutex
	total     uint64
	errCount  uint64
	bytesSent uint64
	totalMs   float64
	minMs     float64
	maxMs     float64
	endpoints map[string]*EndpointStats
	clients   map[string]*ClientStats
	statuses  map[int]uint64
	recent    []RequestRecord
	next      int
}

// NewCollector creates a collector with its own registry. A nil clock
// means the wall clock.
func NewCollector(clk clock.PassiveClock) *Collector {
	if clk == nil {
		clk = clock.RealClock{}
	}
	c := &Collector{
		clock:     clk,
		start:     clk.Now(),
		registry:  prometheus.NewRegistry(),
		endpoints: make(map[string]*EndpointStats),
		clients:   make(map[string]*ClientStats),
		statuses:  make(map[int]uint64),
		recent:    make([]RequestRecord, 0, 64),
	}

	c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"status"})
	c.errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_errors_total",
		Help: "Total number of HTTP request errors",
	})
	c.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5},
	})
	c.bytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_response_bytes_total",
		Help: "Total number of response body bytes sent",
	})
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "http_server_uptime_seconds",
		Help: "Server uptime in seconds",
	}, func() float64 { return c.clock.Since(c.start).Seconds() })

	c.registry.MustRegister(c.requests, c.errors, c.duration, c.bytes, uptime)
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RegisterPool exports worker pool gauges read from stats at scrape time.
func (c *Collector) RegisterPool(stats func() pools.WorkerPoolStats) error {
	gauge := func(name, help string, v func(pools.WorkerPoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return v(stats()) })
	}
	counter := func(name, help string, v func(pools.WorkerPoolStats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return v(stats()) })
	}
	for _, col := range []prometheus.Collector{
		gauge("worker_pool_workers", "Number of pool workers",
			func(s pools.WorkerPoolStats) float64 { return float64(s.Workers) }),
		gauge("worker_pool_queued", "Work items waiting in the queue",
			func(s pools.WorkerPoolStats) float64 { return float64(s.Queued) }),
		gauge("worker_pool_active", "Work items being executed",
			func(s pools.WorkerPoolStats) float64 { return float64(s.Active) }),
		counter("worker_pool_completed_total", "Work items completed",
			func(s pools.WorkerPoolStats) float64 { return float64(s.Completed) }),
		counter("worker_pool_failed_total", "Work items that panicked",
			func(s pools.WorkerPoolStats) float64 { return float64(s.Failed) }),
		counter("worker_pool_rejected_total", "Work items rejected at shutdown",
			func(s pools.WorkerPoolStats) float64 { return float64(s.Rejected) }),
		counter("worker_pool_shed_total", "Connections refused with 503 because the queue was full",
			func(s pools.WorkerPoolStats) float64 { return float64(s.Shed) }),
	} {
		if err := c.registry.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Record adds a completed request.
func (c *Collector) Record(r RequestRecord) {
	if r.Timestamp.IsZero() {
		r.Timestamp = c.clock.Now()
	}
	ms := float64(r.Duration) / float64(time.Millisecond)
	r.DurationMs = ms
	isError := r.Status >= 400

	c.requests.WithLabelValues(strconv.Itoa(r.Status)).Inc()
	if isError {
		c.errors.Inc()
	}
	c.duration.Observe(r.Duration.Seconds())
	c.bytes.Add(float64(r.BytesSent))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.bytesSent += uint64(r.BytesSent)
	c.statuses[r.Status]++
	if isError {
		c.errCount++
	}
	c.totalMs += ms
	if c.total == 1 || ms < c.minMs {
		c.minMs = ms
	}
	if ms > c.maxMs {
		c.maxMs = ms
	}

	key := r.Method + " " + r.Path
	ep, ok := c.endpoints[key]
	if !ok {
		ep = &EndpointStats{MinMs: ms}
		c.endpoints[key] = ep
	}
	ep.Requests++
	ep.totalMs += ms
	ep.MinMs = min(ep.MinMs, ms)
	ep.MaxMs = max(ep.MaxMs, ms)
	if isError {
		ep.Errors++
	}

	cl, ok := c.clients[r.ClientIP]
	if !ok {
		cl = &ClientStats{}
		c.clients[r.ClientIP] = cl
	}
	cl.Requests++
	cl.LastSeen = r.Timestamp
	if isError {
		cl.Errors++
	}

	if len(c.recent) < recentCapacity {
		c.recent = append(c.recent, r)
	} else {
		c.recent[c.next] = r
		c.next = (c.next + 1) % recentCapacity
	}
}

// Summary returns server-wide totals.
func (c *Collector) Summary() Summary {
	uptime := c.clock.Since(c.start).Seconds()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		TotalRequests:  c.total,
		TotalErrors:    c.errCount,
		UptimeSeconds:  uptime,
		TotalBytesSent: c.bytesSent,
		MinResponseMs:  c.minMs,
		MaxResponseMs:  c.maxMs,
	}
	if c.total > 0 {
		s.ErrorRate = float64(c.errCount) / float64(c.total) * 100
		s.AvgResponseMs = c.totalMs / float64(c.total)
	}
	if uptime > 0 {
		s.RequestsPerSecond = float64(c.total) / uptime
	}
	return s
}

// Endpoints returns per-endpoint statistics keyed by "METHOD path".
func (c *Collector) Endpoints() map[string]EndpointStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]EndpointStats, len(c.endpoints))
	for k, ep := range c.endpoints {
		s := *ep
		s.AvgMs = ep.totalMs / float64(ep.Requests)
		s.ErrorRate = float64(ep.Errors) / float64(ep.Requests) * 100
		out[k] = s
	}
	return out
}

// Clients returns per-IP statistics.
func (c *Collector) Clients() map[string]ClientStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]ClientStats, len(c.clients))
	for ip, cl := range c.clients {
		s := *cl
		s.ErrorRate = float64(cl.Errors) / float64(cl.Requests) * 100
		out[ip] = s
	}
	return out
}

// StatusCodes returns the number of responses per status code.
func (c *Collector) StatusCodes() map[int]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int]uint64, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}

// Recent returns up to limit of the latest requests, oldest first.
func (c *Collector) Recent(limit int) []RequestRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.recent)
	ordered := make([]RequestRecord, 0, n)
	ordered = append(ordered, c.recent[c.next:]...)
	ordered = append(ordered, c.recent[:c.next]...)
	if limit > 0 && limit < n {
		ordered = ordered[n-limit:]
	}
	return ordered
}

// ExpositionFormat picks the Prometheus exposition format for an Accept
// header: length-delimited protobuf when the scraper asks for it, text
// otherwise.
func ExpositionFormat(accept string) expfmt.Format {
	if strings.Contains(strings.ToLower(accept), protoMediaType) {
		return expfmt.NewFormat(expfmt.TypeProtoDelim)
	}
	return expfmt.NewFormat(expfmt.TypeTextPlain)
}

const protoMediaType = "application/vnd.google.protobuf"

// WritePrometheus writes every registered metric in format.
func (c *Collector) WritePrometheus(w io.Writer, format expfmt.Format) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Document is the JSON metrics document.
type Document struct {
	Server struct {
		UptimeSeconds float64 `json:"uptime_seconds"`
		Version       string  `json:"version"`
		Status        string  `json:"status"`
	} `json:"server"`
	Requests       Summary                  `json:"requests"`
	Endpoints      map[string]EndpointStats `json:"endpoints"`
	Clients        map[string]ClientStats   `json:"clients"`
	StatusCodes    map[int]uint64           `json:"status_codes"`
	WorkerPool     *pools.WorkerPoolStats   `json:"worker_pool,omitempty"`
	RecentRequests []RequestRecord          `json:"recent_requests"`
}

// Document assembles the JSON metrics document. pool may be nil.
func (c *Collector) Document(pool *pools.WorkerPoolStats) Document {
	var d Document
	d.Requests = c.Summary()
	d.Server.UptimeSeconds = d.Requests.UptimeSeconds
	d.Server.Version = Version
	d.Server.Status = "running"
	d.Endpoints = c.Endpoints()
	d.Clients = c.Clients()
	d.StatusCodes = c.StatusCodes()
	d.WorkerPool = pool
	d.RecentRequests = c.Recent(50)
	return d
}

// WriteJSON writes the indented JSON metrics document.
func (c *Collector) WriteJSON(w io.Writer, pool *pools.WorkerPoolStats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c.Document(pool))
}
