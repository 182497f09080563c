// Package metrics provides observability for the vault server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers counters for the pet clocks, the ledger, the transport
// and the tutor. All counters are safe for concurrent use.
type Collector struct {
	// Clock metrics
	DecayTicks     int64
	GrowthChecks   int64
	GrowthGrants   int64
	ClockLatSum    int64 // nanoseconds
	ClockLatMax    int64
	LastDecayTime  time.Time
	LastGrowthTime time.Time

	// Care and ledger metrics
	CareActions      int64
	TasksAdded       int64
	TasksRemoved     int64
	TasksCompleted   int64
	RewardsPaidCents int64
	RewardParseFails int64
	RemoteErrors     int64

	// Event metrics
	EventsWritten    int64
	EventWriteErrors int64

	// Session metrics
	SessionsActive int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// Tutor metrics
	TutorRequests   int64
	TutorFailures   int64
	TutorLatencySum int64

	StartTime time.Time
	mu        sync.RWMutex
}

var collector = New()

// New creates an empty collector. Tests use their own; the server uses Get.
func New() *Collector {
	return &Collector{StartTime: time.Now()}
}

// Get returns the process-wide collector.
func Get() *Collector {
	return collector
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordDecay records one decay clock fire.
func (c *Collector) RecordDecay(latency time.Duration) {
	atomic.AddInt64(&c.DecayTicks, 1)
	c.recordClock(latency)
	c.mu.Lock()
	c.LastDecayTime = time.Now()
	c.mu.Unlock()
}

// RecordGrowth records one growth check and whether it granted experience.
func (c *Collector) RecordGrowth(latency time.Duration, granted bool) {
	atomic.AddInt64(&c.GrowthChecks, 1)
	if granted {
		atomic.AddInt64(&c.GrowthGrants, 1)
	}
	c.recordClock(latency)
	c.mu.Lock()
	c.LastGrowthTime = time.Now()
	c.mu.Unlock()
}

func (c *Collector) recordClock(latency time.Duration) {
	atomic.AddInt64(&c.ClockLatSum, int64(latency))
	storeMax(&c.ClockLatMax, int64(latency))
}

// RecordCare records a feed or play action.
func (c *Collector) RecordCare() {
	atomic.AddInt64(&c.CareActions, 1)
}

// RecordTaskAdded records a new task.
func (c *Collector) RecordTaskAdded() {
	atomic.AddInt64(&c.TasksAdded, 1)
}

// RecordTaskRemoved records a deleted task.
func (c *Collector) RecordTaskRemoved() {
	atomic.AddInt64(&c.TasksRemoved, 1)
}

// RecordCompletion records a finalized completion and its payout.
func (c *Collector) RecordCompletion(rewardCents int64) {
	atomic.AddInt64(&c.TasksCompleted, 1)
	atomic.AddInt64(&c.RewardsPaidCents, rewardCents)
}

// RecordRewardParseFailure records a completion whose reward was unusable.
func (c *Collector) RecordRewardParseFailure() {
	atomic.AddInt64(&c.RewardParseFails, 1)
}

// RecordRemoteError records a failed balance store call.
func (c *Collector) RecordRemoteError() {
	atomic.AddInt64(&c.RemoteErrors, 1)
}

// RecordEventWrite records an event write-through.
func (c *Collector) RecordEventWrite(err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordSession records session changes.
func (c *Collector) RecordSession(delta int64) {
	atomic.AddInt64(&c.SessionsActive, delta)
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// RecordTutorCall records a tutor round trip.
func (c *Collector) RecordTutorCall(latency time.Duration, err error) {
	atomic.AddInt64(&c.TutorRequests, 1)
	atomic.AddInt64(&c.TutorLatencySum, int64(latency))
	if err != nil {
		atomic.AddInt64(&c.TutorFailures, 1)
	}
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastDecay, lastGrowth := c.LastDecayTime, c.LastGrowthTime
	c.mu.RUnlock()

	decays := atomic.LoadInt64(&c.DecayTicks)
	checks := atomic.LoadInt64(&c.GrowthChecks)
	tutorRequests := atomic.LoadInt64(&c.TutorRequests)

	var clockAvg, tutorAvg float64
	if fires := decays + checks; fires > 0 {
		clockAvg = float64(atomic.LoadInt64(&c.ClockLatSum)) / float64(fires) / 1e6 // ms
	}
	if tutorRequests > 0 {
		tutorAvg = float64(atomic.LoadInt64(&c.TutorLatencySum)) / float64(tutorRequests) / 1e9 // seconds
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"clock": map[string]interface{}{
			"decay_ticks":    decays,
			"growth_checks":  checks,
			"growth_grants":  atomic.LoadInt64(&c.GrowthGrants),
			"avg_latency_ms": clockAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.ClockLatMax)) / 1e6,
			"last_decay":     formatTime(lastDecay),
			"last_growth":    formatTime(lastGrowth),
		},

		"ledger": map[string]interface{}{
			"care_actions":       atomic.LoadInt64(&c.CareActions),
			"tasks_added":        atomic.LoadInt64(&c.TasksAdded),
			"tasks_removed":      atomic.LoadInt64(&c.TasksRemoved),
			"tasks_completed":    atomic.LoadInt64(&c.TasksCompleted),
			"rewards_paid_cents": atomic.LoadInt64(&c.RewardsPaidCents),
			"reward_parse_fails": atomic.LoadInt64(&c.RewardParseFails),
			"remote_errors":      atomic.LoadInt64(&c.RemoteErrors),
		},

		"events": map[string]interface{}{
			"written": atomic.LoadInt64(&c.EventsWritten),
			"errors":  atomic.LoadInt64(&c.EventWriteErrors),
		},

		"sessions": map[string]interface{}{
			"active": atomic.LoadInt64(&c.SessionsActive),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},

		"tutor": map[string]interface{}{
			"requests":        tutorRequests,
			"failures":        atomic.LoadInt64(&c.TutorFailures),
			"avg_latency_sec": tutorAvg,
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_ = json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP vault_%s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE vault_%s counter\n", name)
			fmt.Fprintf(w, "vault_%s %d\n\n", name, v)
		}
		gauge := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP vault_%s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE vault_%s gauge\n", name)
			fmt.Fprintf(w, "vault_%s %d\n\n", name, v)
		}

		counter("decay_ticks", "Total decay clock fires", atomic.LoadInt64(&c.DecayTicks))
		counter("growth_checks", "Total growth checks", atomic.LoadInt64(&c.GrowthChecks))
		counter("growth_grants", "Growth checks that granted experience", atomic.LoadInt64(&c.GrowthGrants))
		counter("care_actions", "Total feed and play actions", atomic.LoadInt64(&c.CareActions))
		counter("tasks_added", "Total tasks added", atomic.LoadInt64(&c.TasksAdded))
		counter("tasks_completed", "Total tasks completed", atomic.LoadInt64(&c.TasksCompleted))
		counter("rewards_paid_cents", "Total coins paid out in cents", atomic.LoadInt64(&c.RewardsPaidCents))
		counter("remote_errors", "Total balance store failures", atomic.LoadInt64(&c.RemoteErrors))
		counter("events_written", "Total events persisted", atomic.LoadInt64(&c.EventsWritten))
		gauge("sessions", "Active sessions", atomic.LoadInt64(&c.SessionsActive))
		gauge("ws_connections", "Active WebSocket connections", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP vault_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE vault_ws_messages_total counter\n")
		fmt.Fprintf(w, "vault_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "vault_ws_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		counter("tutor_requests", "Total tutor requests", atomic.LoadInt64(&c.TutorRequests))
		counter("tutor_failures", "Tutor requests answered with the fallback", atomic.LoadInt64(&c.TutorFailures))
	}
}
