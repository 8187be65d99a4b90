package csrf

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts token lifecycle events. A nil *Metrics records nothing.
type Metrics struct {
	Issued   prometheus.Counter
	Consumed prometheus.Counter
	Evicted  prometheus.Counter
	Rejected *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csrf_tokens_issued_total",
			Help: "Total number of CSRF tokens issued",
		}),
		Consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csrf_tokens_consumed_total",
			Help: "Total number of CSRF tokens consumed by accepted requests",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csrf_tokens_evicted_total",
			Help: "Total number of CSRF tokens evicted because a session exceeded its limit",
		}),
		Rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csrf_requests_rejected_total",
				Help: "Total number of requests rejected by the CSRF guard",
			},
			[]string{"reason"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Issued, m.Consumed, m.Evicted, m.Rejected)
	}
	return m
}

func (m *Metrics) issued() {
	if m != nil {
		m.Issued.Inc()
	}
}

func (m *Metrics) consumed() {
	if m != nil {
		m.Consumed.Inc()
	}
}

func (m *Metrics) evicted(n int) {
	if m != nil {
		m.Evicted.Add(float64(n))
	}
}

func (m *Metrics) rejected(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}
