// Package metric provides Prometheus metrics for redsim: command
// throughput, keyspace size, expiration churn, blocked clients and
// pub/sub traffic.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's collectors. A nil *Metrics is a valid
// no-op receiver so the embedded engine pays nothing when metrics
// are not wanted.
type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	ConnectedClients prometheus.Gauge
	BlockedClients   prometheus.Gauge
	KeysTotal        *prometheus.GaugeVec
	ExpiredKeysTotal prometheus.Counter
	PubSubMessages   prometheus.Counter
}

// New creates the metric set.
func New() *Metrics {
	return &Metrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redsim",
			Name:      "commands_total",
			Help:      "Commands processed, labeled by command name and status.",
		}, []string{"cmd", "status"}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redsim",
			Name:      "connected_clients",
			Help:      "Currently connected client handles.",
		}),
		BlockedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redsim",
			Name:      "blocked_clients",
			Help:      "Clients suspended on blocking commands.",
		}),
		KeysTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "redsim",
			Name:      "keys",
			Help:      "Live keys per database.",
		}, []string{"db"}),
		ExpiredKeysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redsim",
			Name:      "expired_keys_total",
			Help:      "Keys removed by expiration.",
		}),
		PubSubMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redsim",
			Name:      "pubsub_messages_total",
			Help:      "Messages delivered to subscribers.",
		}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.CommandsTotal,
		m.ConnectedClients,
		m.BlockedClients,
		m.KeysTotal,
		m.ExpiredKeysTotal,
		m.PubSubMessages,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Command records one processed command.
func (m *Metrics) Command(name, status string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(name, status).Inc()
}

// ClientConnected adjusts the connected-clients gauge.
func (m *Metrics) ClientConnected(delta float64) {
	if m == nil {
		return
	}
	m.ConnectedClients.Add(delta)
}

// ClientBlocked adjusts the blocked-clients gauge.
func (m *Metrics) ClientBlocked(delta float64) {
	if m == nil {
		return
	}
	m.BlockedClients.Add(delta)
}

// Expired counts keys removed by expiry.
func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredKeysTotal.Add(float64(n))
}

// Published counts delivered pub/sub messages.
func (m *Metrics) Published(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PubSubMessages.Add(float64(n))
}

// SetKeys records the key count of one database.
func (m *Metrics) SetKeys(db string, n int) {
	if m == nil {
		return
	}
	m.KeysTotal.WithLabelValues(db).Set(float64(n))
}
