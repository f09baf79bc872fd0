package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// proxyMetrics is safe to use through a nil pointer; every recorder is a
// no-op in that case so tests can skip wiring a registry.
type proxyMetrics struct {
	registry       *prometheus.Registry
	probes         *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	toolCallTime   *prometheus.HistogramVec
	catalogChanges prometheus.Counter
	endpointPort   prometheus.Gauge
}

func newProxyMetrics() *proxyMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &proxyMetrics{
		registry: registry,
		probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ide_proxy_probes_total",
				Help: "Health probes against candidate IDE endpoints",
			},
			[]string{"result"},
		),
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ide_proxy_resolutions_total",
				Help: "Endpoint resolution attempts by outcome",
			},
			[]string{"outcome"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ide_proxy_tool_calls_total",
				Help: "Tool calls forwarded to the IDE by outcome",
			},
			[]string{"outcome"},
		),
		toolCallTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ide_proxy_tool_call_duration_seconds",
				Help:    "Duration of tool calls forwarded to the IDE",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		catalogChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "ide_proxy_catalog_changes_total",
			Help: "Detected changes of the IDE tool catalog",
		}),
		endpointPort: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ide_proxy_endpoint_port",
			Help: "Port of the cached IDE endpoint, 0 when none",
		}),
	}
}

func (m *proxyMetrics) observeProbe(result string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(result).Inc()
}

func (m *proxyMetrics) observeResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *proxyMetrics) observeToolCall(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(outcome).Inc()
	m.toolCallTime.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *proxyMetrics) observeCatalogChange() {
	if m == nil {
		return
	}
	m.catalogChanges.Inc()
}

func (m *proxyMetrics) setEndpointPort(port int) {
	if m == nil {
		return
	}
	m.endpointPort.Set(float64(port))
}

func (m *proxyMetrics) handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
