package monitoring

import (
	"sync"
	"time"

	"cinesync/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes watch party engine metrics. It
// implements the engine and gateway metrics hooks.
type PrometheusCollector struct {
	connectionsOpen   prometheus.Gauge
	connectionsTotal  prometheus.Counter
	sessionsInRooms   prometheus.Gauge
	roomsActive       prometheus.Gauge
	eventsBroadcast   *prometheus.CounterVec
	broadcastDuration prometheus.Histogram
	chatMessagesTotal prometheus.Counter
	joinFailures      *prometheus.CounterVec

	// Tracks per-room live session counts so the rooms-active gauge
	// reflects rooms with at least one session.
	mu        sync.Mutex
	roomSizes map[domain.PartyCode]int
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cinesync_connections_open",
			Help: "Current number of open gateway connections",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cinesync_connections_total",
			Help: "Total number of gateway connections accepted",
		}),

		sessionsInRooms: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cinesync_sessions_in_rooms",
			Help: "Current number of sessions joined to a room",
		}),

		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cinesync_rooms_active",
			Help: "Current number of rooms with at least one live session",
		}),

		eventsBroadcast: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cinesync_events_broadcast_total",
			Help: "Total number of events broadcast to rooms",
		}, []string{"type"}),

		broadcastDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cinesync_broadcast_duration_seconds",
			Help:    "Time spent fanning one event out to a room",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),

		chatMessagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cinesync_chat_messages_total",
			Help: "Total number of chat messages persisted",
		}),

		joinFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cinesync_join_failures_total",
			Help: "Total number of rejected join attempts",
		}, []string{"reason"}),

		roomSizes: make(map[domain.PartyCode]int),
	}
}

func (p *PrometheusCollector) RecordConnectionOpened() {
	p.connectionsOpen.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) RecordConnectionClosed() {
	p.connectionsOpen.Dec()
}

func (p *PrometheusCollector) RecordSessionJoined(code domain.PartyCode) {
	p.sessionsInRooms.Inc()

	p.mu.Lock()
	p.roomSizes[code]++
	if p.roomSizes[code] == 1 {
		p.roomsActive.Inc()
	}
	p.mu.Unlock()
}

func (p *PrometheusCollector) RecordSessionLeft(code domain.PartyCode) {
	p.sessionsInRooms.Dec()

	p.mu.Lock()
	if n := p.roomSizes[code]; n > 0 {
		p.roomSizes[code] = n - 1
		if n == 1 {
			delete(p.roomSizes, code)
			p.roomsActive.Dec()
		}
	}
	p.mu.Unlock()
}

func (p *PrometheusCollector) RecordEventBroadcast(eventType string, duration time.Duration) {
	p.eventsBroadcast.WithLabelValues(eventType).Inc()
	p.broadcastDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordChatMessage() {
	p.chatMessagesTotal.Inc()
}

func (p *PrometheusCollector) RecordJoinFailure(reason string) {
	p.joinFailures.WithLabelValues(reason).Inc()
}
