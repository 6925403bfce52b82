package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusExporter bridges the Collector's global rollup onto the
// Prometheus client_golang registry, for the operational scrape
// surface alongside the in-process getMetrics query API.
type PrometheusExporter struct {
	collector *Collector

	requestsTotal *prometheus.Desc
	errorsTotal   *prometheus.Desc
	latencySum    *prometheus.Desc
	latencyCount  *prometheus.Desc
}

// NewPrometheusExporter builds an exporter over collector. Register it
// with a prometheus.Registry to expose /metrics.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		requestsTotal: prometheus.NewDesc(
			"edgemesh_requests_total", "Total requests observed by the edge router.", nil, nil),
		errorsTotal: prometheus.NewDesc(
			"edgemesh_request_errors_total", "Requests with status >= 400.", nil, nil),
		latencySum: prometheus.NewDesc(
			"edgemesh_request_latency_ms_sum", "Sum of observed non-zero request latency in milliseconds.", nil, nil),
		latencyCount: prometheus.NewDesc(
			"edgemesh_request_latency_ms_count", "Count of non-zero latency samples.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.requestsTotal
	ch <- e.errorsTotal
	ch <- e.latencySum
	ch <- e.latencyCount
}

// Collect implements prometheus.Collector, snapshotting the global
// dimension on every scrape.
func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	g := e.collector.Global()
	ch <- prometheus.MustNewConstMetric(e.requestsTotal, prometheus.CounterValue, float64(g.RequestCount))
	ch <- prometheus.MustNewConstMetric(e.errorsTotal, prometheus.CounterValue, float64(g.ErrorCount))
	ch <- prometheus.MustNewConstMetric(e.latencySum, prometheus.CounterValue, g.LatencySum)
	ch <- prometheus.MustNewConstMetric(e.latencyCount, prometheus.CounterValue, float64(g.NonZeroLatencyCount))
}
