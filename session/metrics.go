package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jrsteele09/go-tab-session/tabsync"
)

const metricsNamespace = "tabsession"

// Metrics counts session activity. A nil *Metrics records nothing.
type Metrics struct {
	signIns    *prometheus.CounterVec
	renewals   *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	syncEvents *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by result.",
		}, []string{"result"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "renewals_total",
			Help:      "Credential renewals by result.",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Tab-sync events sent by kind.",
		}, []string{"kind"}),
		syncEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sync_events_total",
			Help:      "Tab-sync events received from other tabs by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.signIns, m.renewals, m.broadcasts, m.syncEvents)
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) signIn(ok bool) {
	if m != nil {
		m.signIns.WithLabelValues(result(ok)).Inc()
	}
}

func (m *Metrics) renewal(ok bool) {
	if m != nil {
		m.renewals.WithLabelValues(result(ok)).Inc()
	}
}

func (m *Metrics) broadcast(kind tabsync.Kind) {
	if m != nil {
		m.broadcasts.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) received(kind tabsync.Kind) {
	if m != nil {
		m.syncEvents.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) SignIns() *prometheus.CounterVec { return m.signIns }

func (m *Metrics) Renewals() *prometheus.CounterVec { return m.renewals }

func (m *Metrics) Broadcasts() *prometheus.CounterVec { return m.broadcasts }

func (m *Metrics) SyncEvents() *prometheus.CounterVec { return m.syncEvents }
