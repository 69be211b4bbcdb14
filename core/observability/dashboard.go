package observability

import (
	"encoding/json"
	"html/template"
	"io"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/utils/clock"

	"github.com/searchktools/http1-server/core/middleware"
)

// Severity of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event types besides the gate violation kinds.
const (
	EventPathTraversal = "path_traversal"
)

// SeverityOf returns the severity recorded for an event type.
func SeverityOf(eventType string) Severity {
	switch eventType {
	case "rate_limit", "host_mismatch", EventPathTraversal:
		return SeverityHigh
	case "request_too_large", "missing_host":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SecurityEvent is one rejected or suspicious request.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	ClientIP  string            `json:"client_ip"`
	Severity  Severity          `json:"severity"`
	Blocked   bool              `json:"blocked"`
	Details   map[string]string `json:"details"`
}

func (e SecurityEvent) attack() bool {
	return e.Severity == SeverityHigh || e.Severity == SeverityCritical
}

const (
	maxEvents        = 10000
	maxRecentAttacks = 100
	maxAttackers     = 4096
)

// Dashboard records security events and summarizes them.
type Dashboard struct {
	clock clock.PassiveClock
	rate  *middleware.RateLimiter
	size  *middleware.SizeLimiter

	mu      sync.Mutex
	events  []SecurityEvent // ring of maxEvents
	next    int
	attacks []SecurityEvent // ring of maxRecentAttacks
	nextAtk int

	total   uint64
	blocked uint64
	attempt uint64

	// attackers counts high-severity events per IP, evicting the least
	// recently seen address when full.
	attackers *lru.Cache[string, uint64]
}

// NewDashboard creates a dashboard that also reports the given limiters'
// statistics. Any argument may be nil.
func NewDashboard(clk clock.PassiveClock, rate *middleware.RateLimiter, size *middleware.SizeLimiter) *Dashboard {
	if clk == nil {
		clk = clock.RealClock{}
	}
	attackers, _ := lru.New[string, uint64](maxAttackers)
	return &Dashboard{
		clock:     clk,
		rate:      rate,
		size:      size,
		attackers: attackers,
	}
}

// Record stores an event. A zero timestamp is set to now and an empty
// severity is derived from the type.
func (d *Dashboard) Record(e SecurityEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = d.clock.Now()
	}
	if e.Severity == "" {
		e.Severity = SeverityOf(e.Type)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.events, d.next = push(d.events, d.next, e, maxEvents)
	d.total++
	if e.Blocked {
		d.blocked++
	}
	if e.attack() {
		d.attempt++
		d.attacks, d.nextAtk = push(d.attacks, d.nextAtk, e, maxRecentAttacks)
		n, _ := d.attackers.Get(e.ClientIP)
		d.attackers.Add(e.ClientIP, n+1)
	}
}

// RecordViolation records a gate violation for ip.
func (d *Dashboard) RecordViolation(ip, requestLine string, v *middleware.Violation) {
	d.Record(SecurityEvent{
		Type:     v.Kind.EventType(),
		ClientIP: ip,
		Blocked:  true,
		Details:  map[string]string{"reason": v.Reason, "request": requestLine},
	})
}

func push(ring []SecurityEvent, next int, e SecurityEvent, capacity int) ([]SecurityEvent, int) {
	if len(ring) < capacity {
		return append(ring, e), 0
	}
	ring[next] = e
	return ring, (next + 1) % capacity
}

func ordered(ring []SecurityEvent, next int) []SecurityEvent {
	out := make([]SecurityEvent, 0, len(ring))
	out = append(out, ring[next:]...)
	return append(out, ring[:next]...)
}

// Attacker is an entry of the top attackers list.
type Attacker struct {
	IP          string `json:"ip"`
	AttackCount uint64 `json:"attack_count"`
}

// DashboardSummary holds event totals.
type DashboardSummary struct {
	TotalEvents     uint64 `json:"total_events"`
	BlockedRequests uint64 `json:"blocked_requests"`
	AttackAttempts  uint64 `json:"attack_attempts"`
	EventsLastHour  int    `json:"events_last_hour"`
	EventsLast24h   int    `json:"events_last_24h"`
}

// DashboardData is the dashboard document.
type DashboardData struct {
	Summary              DashboardSummary           `json:"summary"`
	RecentAttacks        []SecurityEvent            `json:"recent_attacks"`
	TopAttackers         []Attacker                 `json:"top_attackers"`
	KnownAttackers       int                        `json:"known_attackers"`
	AttackTypes          map[string]int             `json:"attack_types"`
	SeverityDistribution map[Severity]int           `json:"severity_distribution"`
	RateLimiterStats     *middleware.RateLimitStats `json:"rate_limiter_stats,omitempty"`
	SizeLimiterStats     *middleware.SizeLimitStats `json:"request_limiter_stats,omitempty"`
	GeneratedAt          time.Time                  `json:"generated_at"`
}

// Data summarizes the recorded events. Top attackers and distributions
// cover the last 24 hours.
func (d *Dashboard) Data() DashboardData {
	now := d.clock.Now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	d.mu.Lock()
	data := DashboardData{
		Summary: DashboardSummary{
			TotalEvents:     d.total,
			BlockedRequests: d.blocked,
			AttackAttempts:  d.attempt,
		},
		AttackTypes:          make(map[string]int),
		SeverityDistribution: make(map[Severity]int),
		KnownAttackers:       d.attackers.Len(),
		GeneratedAt:          now,
	}
	daily := make(map[string]uint64)
	for _, e := range d.events {
		if e.Timestamp.After(hourAgo) {
			data.Summary.EventsLastHour++
		}
		if !e.Timestamp.After(dayAgo) {
			continue
		}
		data.Summary.EventsLast24h++
		data.AttackTypes[e.Type]++
		data.SeverityDistribution[e.Severity]++
		if e.attack() {
			daily[e.ClientIP]++
		}
	}
	attacks := ordered(d.attacks, d.nextAtk)
	d.mu.Unlock()

	if len(attacks) > 20 {
		attacks = attacks[len(attacks)-20:]
	}
	data.RecentAttacks = attacks

	for ip, n := range daily {
		data.TopAttackers = append(data.TopAttackers, Attacker{IP: ip, AttackCount: n})
	}
	sort.Slice(data.TopAttackers, func(i, j int) bool {
		a, b := data.TopAttackers[i], data.TopAttackers[j]
		if a.AttackCount != b.AttackCount {
			return a.AttackCount > b.AttackCount
		}
		return a.IP < b.IP
	})
	if len(data.TopAttackers) > 10 {
		data.TopAttackers = data.TopAttackers[:10]
	}

	if d.rate != nil {
		s := d.rate.Stats()
		data.RateLimiterStats = &s
	}
	if d.size != nil {
		s := d.size.Stats()
		data.SizeLimiterStats = &s
	}
	return data
}

// AttackCount returns the number of high-severity events seen from ip
// while it stayed in the attacker index.
func (d *Dashboard) AttackCount(ip string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, _ := d.attackers.Peek(ip)
	return n
}

// EventsByIP returns up to limit of the latest events from ip.
func (d *Dashboard) EventsByIP(ip string, limit int) []SecurityEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []SecurityEvent
	for _, e := range ordered(d.events, d.next) {
		if e.ClientIP == ip {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// WriteJSON writes the indented dashboard document.
func (d *Dashboard) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d.Data())
}

// WriteHTML renders the dashboard page.
func (d *Dashboard) WriteHTML(w io.Writer) error {
	return dashboardTemplate.Execute(w, d.Data())
}

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"rfc3339": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"yesno": func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	},
}).Parse(dashboardHTML))

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Security Dashboard</title>
    <meta http-equiv="refresh" content="30">
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background: #f5f5f5; }
        .container { max-width: 1200px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; }
        .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 20px; margin-bottom: 30px; }
        .stat-card { background: #f8f9fa; padding: 20px; border-radius: 6px; text-align: center; }
        .stat-number { font-size: 2em; font-weight: bold; color: #333; }
        .stat-label { color: #666; margin-top: 5px; }
        table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        th, td { padding: 10px; text-align: left; border-bottom: 1px solid #ddd; }
        th { background: #f8f9fa; }
        .severity-high { color: #dc3545; font-weight: bold; }
        .severity-critical { color: #721c24; font-weight: bold; background: #f8d7da; }
        .severity-medium { color: #856404; font-weight: bold; }
        .severity-low { color: #155724; }
    </style>
</head>
<body>
<div class="container">
    <h1>Security Dashboard</h1>
    <p>Generated {{rfc3339 .GeneratedAt}}</p>
    <div class="stats">
        <div class="stat-card"><div class="stat-number">{{.Summary.TotalEvents}}</div><div class="stat-label">Total Events</div></div>
        <div class="stat-card"><div class="stat-number">{{.Summary.BlockedRequests}}</div><div class="stat-label">Blocked Requests</div></div>
        <div class="stat-card"><div class="stat-number">{{.Summary.AttackAttempts}}</div><div class="stat-label">Attack Attempts</div></div>
        <div class="stat-card"><div class="stat-number">{{.Summary.EventsLastHour}}</div><div class="stat-label">Events (Last Hour)</div></div>
    </div>

    <h3>Recent Attacks</h3>
    <table>
        <tr><th>Time</th><th>Type</th><th>IP</th><th>Severity</th><th>Blocked</th><th>Details</th></tr>
        {{- range .RecentAttacks}}
        <tr><td>{{rfc3339 .Timestamp}}</td><td>{{.Type}}</td><td>{{.ClientIP}}</td><td class="severity-{{.Severity}}">{{.Severity}}</td><td>{{yesno .Blocked}}</td><td>{{index .Details "reason"}}</td></tr>
        {{- end}}
    </table>

    <h3>Top Attackers (Last 24h)</h3>
    <table>
        <tr><th>IP Address</th><th>Attack Count</th></tr>
        {{- range .TopAttackers}}
        <tr><td>{{.IP}}</td><td>{{.AttackCount}}</td></tr>
        {{- end}}
    </table>

    <h3>Attack Types (Last 24h)</h3>
    <table>
        <tr><th>Attack Type</th><th>Count</th></tr>
        {{- range $type, $n := .AttackTypes}}
        <tr><td>{{$type}}</td><td>{{$n}}</td></tr>
        {{- end}}
    </table>

    <h3>Severity Distribution (Last 24h)</h3>
    <table>
        <tr><th>Severity</th><th>Count</th></tr>
        {{- range $sev, $n := .SeverityDistribution}}
        <tr><td class="severity-{{$sev}}">{{$sev}}</td><td>{{$n}}</td></tr>
        {{- end}}
    </table>
</div>
</body>
</html>
`
