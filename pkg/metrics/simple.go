package metrics

import (
	"encoding/json"
	"expvar"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/timoknapp/contest-dashboard/pkg/session"
)

const (
	// Local diagnostics endpoints
	StatsPath     = "/stats"
	DebugVarsPath = "/debug/vars"

	varPrefix = "cfd_"
)

var (
	st = newState()

	gaugesMu sync.RWMutex
	gauges   = map[string]func() any{}

	initOnce sync.Once
)

// Init publishes the request counters through expvar. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		expvar.Publish(varPrefix+"started_at", expvar.Func(func() any {
			return st.startedAt.Format(time.RFC3339)
		}))
		expvar.Publish(varPrefix+"uptime_seconds", expvar.Func(func() any {
			return int64(time.Since(st.startedAt).Seconds())
		}))
		expvar.Publish(varPrefix+"requests", expvar.Func(func() any {
			return st.snapshot(time.Now())
		}))
		expvar.Publish(varPrefix+"gauges", expvar.Func(func() any {
			return collectGauges()
		}))
	})
}

// RegisterGauge adds a named value that is sampled on every /stats or
// /debug/vars read, e.g. cache counters or the live session count.
func RegisterGauge(name string, fn func() any) {
	gaugesMu.Lock()
	defer gaugesMu.Unlock()
	gauges[name] = fn
}

func collectGauges() map[string]any {
	gaugesMu.RLock()
	defer gaugesMu.RUnlock()
	out := make(map[string]any, len(gauges))
	for name, fn := range gauges {
		out[name] = fn()
	}
	return out
}

// Instrument wraps an http.Handler to record request count, status codes,
// latency buckets, requests-per-minute and active clients (5m window).
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		st.record(r, sw.status, time.Since(start))
	})
}

// StatsHandler returns a compact JSON snapshot for quick human inspection.
func StatsHandler(w http.ResponseWriter, r *http.Request) {
	s := st.snapshot(time.Now())
	s.Gauges = collectGauges()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s)
}

// ===== Internals =====

type stats struct {
	StartedAt                 string                      `json:"started_at"`
	UptimeSeconds             int64                       `json:"uptime_seconds"`
	TotalRequests             int64                       `json:"total_requests"`
	TotalErrors               int64                       `json:"total_errors"`
	AverageLatencyMs          float64                     `json:"avg_latency_ms"`
	RequestsPerMinuteLast10m  []int64                     `json:"requests_last_10m_newest_first"`
	ActiveClients5m           int64                       `json:"active_clients_5m"`
	RequestsByMethodAndStatus map[string]map[string]int64 `json:"requests_by_method_status"`
	DurationBuckets           map[string]map[string]int64 `json:"request_duration_ms_buckets"`
	Gauges                    map[string]any              `json:"gauges,omitempty"`
}

type metricsState struct {
	mu sync.Mutex

	startedAt time.Time

	totalReq     int64
	totalErr     int64
	totalLatency time.Duration

	// method -> statusCode -> count
	byMethodStatus map[string]map[int]int64
	// method -> bucketLabel -> count
	durationBuckets map[string]map[string]int64

	// newest minute is perMinute[0]
	perMinute  [10]int64
	lastMinute time.Time

	// client key -> last seen
	active map[string]time.Time
}

func newState() *metricsState {
	return &metricsState{
		startedAt:       time.Now(),
		byMethodStatus:  make(map[string]map[int]int64),
		durationBuckets: make(map[string]map[string]int64),
		active:          make(map[string]time.Time),
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *metricsState) snapshot(now time.Time) stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.rotateLocked(now)

	avgLatencyMs := float64(0)
	if s.totalReq > 0 {
		avgLatencyMs = float64(s.totalLatency.Milliseconds()) / float64(s.totalReq)
	}

	rpm := make([]int64, len(s.perMinute))
	copy(rpm, s.perMinute[:])

	methodStatus := make(map[string]map[string]int64, len(s.byMethodStatus))
	for m, inner := range s.byMethodStatus {
		o2 := make(map[string]int64, len(inner))
		for code, c := range inner {
			o2[strconv.Itoa(code)] = c
		}
		methodStatus[m] = o2
	}

	buckets := make(map[string]map[string]int64, len(s.durationBuckets))
	for m, inner := range s.durationBuckets {
		o2 := make(map[string]int64, len(inner))
		for label, c := range inner {
			o2[label] = c
		}
		buckets[m] = o2
	}

	return stats{
		StartedAt:                 s.startedAt.Format(time.RFC3339),
		UptimeSeconds:             int64(now.Sub(s.startedAt).Seconds()),
		TotalRequests:             s.totalReq,
		TotalErrors:               s.totalErr,
		AverageLatencyMs:          avgLatencyMs,
		RequestsPerMinuteLast10m:  rpm,
		ActiveClients5m:           int64(len(s.active)),
		RequestsByMethodAndStatus: methodStatus,
		DurationBuckets:           buckets,
	}
}

func (s *metricsState) record(r *http.Request, statusCode int, d time.Duration) {
	now := time.Now()
	method := r.Method
	if method == "" {
		method = "UNKNOWN"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalReq++
	if statusCode >= 400 {
		s.totalErr++
	}
	s.totalLatency += d

	if _, ok := s.byMethodStatus[method]; !ok {
		s.byMethodStatus[method] = make(map[int]int64)
	}
	s.byMethodStatus[method][statusCode]++

	if _, ok := s.durationBuckets[method]; !ok {
		s.durationBuckets[method] = make(map[string]int64)
	}
	s.durationBuckets[method][bucketLabel(d)]++

	s.rotateLocked(now)
	s.perMinute[0]++

	s.active[clientKey(r)] = now
	s.pruneLocked(now)
}

// rotateLocked shifts the per-minute ring so perMinute[0] is the current minute.
func (s *metricsState) rotateLocked(now time.Time) {
	curr := now.Truncate(time.Minute)
	if s.lastMinute.IsZero() {
		s.lastMinute = curr
		return
	}
	delta := int(curr.Sub(s.lastMinute) / time.Minute)
	if delta <= 0 {
		return
	}
	if delta >= len(s.perMinute) {
		s.perMinute = [10]int64{}
	} else {
		copy(s.perMinute[delta:], s.perMinute[:len(s.perMinute)-delta])
		for i := 0; i < delta; i++ {
			s.perMinute[i] = 0
		}
	}
	s.lastMinute = curr
}

func (s *metricsState) pruneLocked(now time.Time) {
	cutoff := now.Add(-5 * time.Minute)
	for k, t := range s.active {
		if t.Before(cutoff) {
			delete(s.active, k)
		}
	}
}

var bucketBounds = []time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2500 * time.Millisecond,
	5000 * time.Millisecond,
}

func bucketLabel(d time.Duration) string {
	for _, b := range bucketBounds {
		if d <= b {
			return "le_" + strconv.FormatInt(b.Milliseconds(), 10) + "ms"
		}
	}
	return "gt_5000ms"
}

// clientKey prefers the dashboard client cookie, then the forwarded address.
func clientKey(r *http.Request) string {
	if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
		return "client:" + c.Value
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			xff = xff[:idx]
		}
		if xff = strings.TrimSpace(xff); xff != "" {
			return "ip:" + xff
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}
