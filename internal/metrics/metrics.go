// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// HTTPRequests counts API requests by method, route pattern and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "najem_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes request latency by method and route pattern.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "najem_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// LowStockAlerts counts LOW_INVENTORY_ALERT audit entries.
	LowStockAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "najem_low_stock_alerts_total",
			Help: "Number of low inventory alerts raised",
		},
	)

	// ReportGenerations counts PDF renders by outcome (ok, error).
	ReportGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "najem_report_generations_total",
			Help: "Number of report PDF generations",
		},
		[]string{"result"},
	)

	// ReportGenerationDuration observes how long one PDF render takes.
	ReportGenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "najem_report_generation_duration_seconds",
			Help:    "Report PDF generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReportEmails counts report emails by outcome (ok, error).
	ReportEmails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "najem_report_emails_total",
			Help: "Number of report emails sent",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPDuration,
		LowStockAlerts,
		ReportGenerations,
		ReportGenerationDuration,
		ReportEmails,
	)
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
