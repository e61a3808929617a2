package observability

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"certprep/internal/identity"

	"github.com/go-chi/chi/v5/middleware"
)

const prefix = "certprep_"

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type Collector struct {
	db     *sql.DB
	active func() int

	mu           sync.RWMutex
	requestStats map[key]stat
	events       map[string]int64
	startedAt    time.Time
}

// NewCollector keeps request and session event counters. db may be nil.
func NewCollector(db *sql.DB) *Collector {
	return &Collector{
		db:           db,
		requestStats: make(map[key]stat),
		events:       make(map[string]int64),
		startedAt:    time.Now(),
	}
}

// TrackActiveSessions registers the gauge source for live quiz sessions.
func (c *Collector) TrackActiveSessions(fn func() int) {
	c.mu.Lock()
	c.active = fn
	c.mu.Unlock()
}

// CountEvent increments a named session event counter.
func (c *Collector) CountEvent(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	c.mu.Lock()
	c.events[name]++
	c.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		// Set only when the caller was attached before this middleware ran.
		userID := ""
		if u, ok := identity.CurrentUser(r.Context()); ok {
			userID = u.ID
		}

		entry := map[string]any{
			"request_id": middleware.GetReqID(r.Context()),
			"user_id":    userID,
			"session_id": extractSessionID(r.URL.Path),
			"method":     r.Method,
			"path":       path,
			"status":     rec.status,
			"latency_ms": latencyMS,
			"remote_ip":  strings.TrimSpace(r.RemoteAddr),
		}
		b, _ := json.Marshal(entry)
		log.Printf("%s", string(b))
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	eventsCopy := make(map[string]int64, len(c.events))
	for k, v := range c.events {
		eventsCopy[k] = v
	}
	startedAt := c.startedAt
	active := c.active
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# certprep observability metrics\n")
	sb.WriteString("# TYPE " + prefix + "uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf(prefix+"uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE " + prefix + "http_requests_total counter\n")
	sb.WriteString("# TYPE " + prefix + "http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE " + prefix + "http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf(prefix+"http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf(prefix+"http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf(prefix+"http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	names := make([]string, 0, len(eventsCopy))
	for name := range eventsCopy {
		names = append(names, name)
	}
	sort.Strings(names)
	sb.WriteString("# TYPE " + prefix + "session_events_total counter\n")
	for _, name := range names {
		sb.WriteString(fmt.Sprintf(prefix+"session_events_total{event=\"%s\"} %d\n", name, eventsCopy[name]))
	}

	if active != nil {
		sb.WriteString("# TYPE " + prefix + "active_sessions gauge\n")
		sb.WriteString(fmt.Sprintf(prefix+"active_sessions %d\n", active()))
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE " + prefix + "db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf(prefix+"db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE " + prefix + "db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf(prefix+"db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE " + prefix + "db_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf(prefix+"db_idle_connections %d\n", dbs.Idle))
		sb.WriteString("# TYPE " + prefix + "db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf(prefix+"db_wait_count %d\n", dbs.WaitCount))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil || uuidPattern.MatchString(p) {
			parts[i] = "{id}"
			continue
		}
		if i > 0 && parts[i-1] == "questions" {
			parts[i] = "{questionID}"
		}
	}
	return strings.Join(parts, "/")
}

func extractSessionID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "sessions" && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}
