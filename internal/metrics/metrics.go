// Package metrics holds the process-wide Prometheus collectors.
//
// Labels are bounded: no per-player or per-room labels, so a flood of rooms
// cannot blow up series cardinality.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Match engine
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent advancing every match once",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	matchesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_matches",
		Help: "Matches currently held in memory",
	}, []string{"status"}) // Bounded: "waiting", "active"

	playersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_players",
		Help: "Players registered to a match",
	})

	bulletsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_bullets_in_flight",
		Help: "Bullets alive across all matches",
	})

	bulletsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_bullets_fired_total",
		Help: "Bullets created",
	})

	kills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_kills_total",
		Help: "Players killed",
	})

	matchesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_matches_closed_total",
		Help: "Matches removed from memory",
	}, []string{"reason"}) // Bounded: "completed", "idle", "reaped", "deleted"

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_persist_failures_total",
		Help: "Completed matches that could not be recorded",
	})

	tickPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_tick_panics_total",
		Help: "Per-match tick faults recovered by the driver",
	})

	// DoS detection
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter, auth or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "auth", "ws_limit"

	// HTTP
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"}) // Bounded: "in", "out"

	wsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_dropped_total",
		Help: "Outbound messages dropped because a client queue was full",
	})
)

// RecordTick records one pass of the tick driver.
func RecordTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// UpdateMatchGauges publishes the registry occupancy.
func UpdateMatchGauges(waiting, active, players, bullets int) {
	matchesByStatus.WithLabelValues("waiting").Set(float64(waiting))
	matchesByStatus.WithLabelValues("active").Set(float64(active))
	playersActive.Set(float64(players))
	bulletsInFlight.Set(float64(bullets))
}

func IncBulletsFired() { bulletsFired.Inc() }

func IncKills() { kills.Inc() }

// RecordMatchClosed counts a match leaving memory.
// reason must be one of: "completed", "idle", "reaped", "deleted"
func RecordMatchClosed(reason string) {
	matchesClosed.WithLabelValues(reason).Inc()
}

func IncPersistFailures() { persistFailures.Inc() }

func IncTickPanics() { tickPanics.Inc() }

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "auth", "ws_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, endpoint string, status int, d time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

func IncWSInbound() { wsMessagesTotal.WithLabelValues("in").Inc() }

func IncWSOutbound() { wsMessagesTotal.WithLabelValues("out").Inc() }

func IncWSDropped() { wsDropped.Inc() }
