package tidal

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the plugin's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	SearchesTotal       *prometheus.CounterVec
	APIRequestsTotal    *prometheus.CounterVec
	APIRequestDuration  *prometheus.HistogramVec
	TokenRefreshesTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tidalresolver_searches_total",
				Help: "Total number of TIDAL URL searches",
			},
			[]string{"kind", "outcome"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tidalresolver_api_requests_total",
				Help: "Total number of TIDAL catalog API requests",
			},
			[]string{"endpoint", "status"},
		),
		APIRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tidalresolver_api_request_duration_seconds",
				Help:    "Time spent waiting on the TIDAL catalog API",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		TokenRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tidalresolver_token_refreshes_total",
				Help: "Total number of web player token scrapes",
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.SearchesTotal,
			m.APIRequestsTotal,
			m.APIRequestDuration,
			m.TokenRefreshesTotal,
		)
	}

	return m
}

func (m *Metrics) recordSearch(kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) recordAPIRequest(endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequestsTotal.WithLabelValues(endpoint, label).Inc()
	m.APIRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) recordTokenRefresh(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.TokenRefreshesTotal.WithLabelValues(outcome).Inc()
}
