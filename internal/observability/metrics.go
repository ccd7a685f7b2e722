package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "tictac"

// Metrics holds the coordinator's Prometheus instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections    prometheus.Gauge
	Clients        prometheus.Gauge
	OpenSessions   prometheus.Gauge
	LiveSessions   prometheus.Gauge
	Messages       *prometheus.CounterVec
	Moves          *prometheus.CounterVec
	SessionsEnded  *prometheus.CounterVec
	SendFailures   prometheus.Counter
	LobbyBroadcast prometheus.Counter
}

// NewMetrics registers the instruments with reg.
//
// Precondition: reg must be non-nil and must not already hold these metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		Clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "registered_clients",
			Help:      "Clients present in the identity registry.",
		}),
		OpenSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "open_sessions",
			Help:      "Sessions awaiting a second player.",
		}),
		LiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions",
			Help:      "Sessions present in the directory.",
		}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Inbound frames by action and result.",
		}, []string{"action", "result"}),
		Moves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "moves_total",
			Help:      "Move attempts by outcome.",
		}, []string{"outcome"}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions torn down by reason.",
		}, []string{"reason"}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "send_failures_total",
			Help:      "Outbound frames that could not be delivered.",
		}),
		LobbyBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lobby_broadcasts_total",
			Help:      "Lobby list pushes to all lobby clients.",
		}),
	}
}

// Message counts one inbound frame.
func (m *Metrics) Message(action, result string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(action, result).Inc()
}

// Move counts one move attempt.
func (m *Metrics) Move(outcome string) {
	if m == nil {
		return
	}
	m.Moves.WithLabelValues(outcome).Inc()
}

// SessionEnded counts one teardown.
func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

// SendFailed counts one undeliverable frame.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}

// LobbyPushed counts one lobby broadcast.
func (m *Metrics) LobbyPushed() {
	if m == nil {
		return
	}
	m.LobbyBroadcast.Inc()
}

// ConnOpened and ConnClosed track live transport connections.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

// Population records registry and directory sizes.
func (m *Metrics) Population(clients, sessions, open int) {
	if m == nil {
		return
	}
	m.Clients.Set(float64(clients))
	m.LiveSessions.Set(float64(sessions))
	m.OpenSessions.Set(float64(open))
}
