package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the webhook pipeline.
type PipelineMetrics struct {
	inboundTotal   *prometheus.CounterVec
	repliesTotal   *prometheus.CounterVec
	replyLatency   *prometheus.HistogramVec
	filteredTotal  prometheus.Counter
	authRejections prometheus.Counter
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bubashvabe",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound carrier webhooks",
		}, []string{"status"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bubashvabe",
			Subsystem: "webhook",
			Name:      "replies_total",
			Help:      "Total replies by generating code path",
		}, []string{"source"}),
		replyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bubashvabe",
			Subsystem: "webhook",
			Name:      "reply_latency_seconds",
			Help:      "Latency of reply generation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		filteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bubashvabe",
			Subsystem: "webhook",
			Name:      "filtered_total",
			Help:      "Messages short-circuited by the content filter",
		}),
		authRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bubashvabe",
			Subsystem: "webhook",
			Name:      "auth_rejections_total",
			Help:      "Requests rejected by signature verification",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.repliesTotal, m.replyLatency, m.filteredTotal, m.authRejections)
	return m
}

func (m *PipelineMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveReply(source string, seconds float64) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(source).Inc()
	m.replyLatency.WithLabelValues(source).Observe(seconds)
}

func (m *PipelineMetrics) ObserveFiltered() {
	if m == nil {
		return
	}
	m.filteredTotal.Inc()
}

func (m *PipelineMetrics) ObserveAuthRejection() {
	if m == nil {
		return
	}
	m.authRejections.Inc()
}
