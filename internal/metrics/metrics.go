// Package metrics holds the Prometheus collectors of the service and a
// rolling latency window for the stats endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wtselser"

// Metrics is the set of collectors the pipeline and API report to.
type Metrics struct {
	conversions        *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	faults             *prometheus.CounterVec
	normalizations     *prometheus.CounterVec
	importJobs         *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	httpRequests       *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "HTML to wikitext conversions by mode and outcome",
		}, []string{"mode", "status"}),

		conversionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Conversion duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),

		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serializer_faults_total",
			Help:      "Recovered serializer faults by kind",
		}, []string{"kind"}),

		normalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizations_total",
			Help:      "Verified normalizer rewrites by rule and outcome",
		}, []string{"rule", "outcome"}),

		importJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_jobs_total",
			Help:      "Finished import jobs by outcome",
		}, []string{"status"}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "import_queue_depth",
			Help:      "Import jobs waiting for a worker",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class",
		}, []string{"route", "code"}),
	}
}

func mode(selser bool) string {
	if selser {
		return "selser"
	}
	return "full"
}

// ObserveConversion records one conversion.
func (m *Metrics) ObserveConversion(selser bool, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.conversions.WithLabelValues(mode(selser), status).Inc()
	m.conversionDuration.WithLabelValues(mode(selser)).Observe(d.Seconds())
}

// ObserveFault counts a recovered serializer fault.
func (m *Metrics) ObserveFault(kind string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(kind).Inc()
}

// RecordNormalization counts a verified rewrite. It satisfies
// normalize.Recorder.
func (m *Metrics) RecordNormalization(rule string, committed bool) {
	if m == nil {
		return
	}
	outcome := "reverted"
	if committed {
		outcome = "committed"
	}
	m.normalizations.WithLabelValues(rule, outcome).Inc()
}

// ObserveJob counts a finished import job.
func (m *Metrics) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.importJobs.WithLabelValues(status).Inc()
}

// SetQueueDepth reports the number of queued import jobs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveRequest counts an HTTP request.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, statusClass(code)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
