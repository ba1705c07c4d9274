package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lesion"

// Metrics owns a private registry so tests can create as many instances as
// they need.
type Metrics struct {
	registry *prom.Registry

	predictions *prom.CounterVec
	latency     prom.Histogram
	cacheHits   prom.Counter
	modelReady  *prom.GaugeVec
}

func New() *Metrics {
	registry := prom.NewRegistry()
	m := &Metrics{
		registry: registry,
		predictions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		latency: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent normalizing, running and ranking one image.",
			Buckets:   prom.ExponentialBuckets(0.005, 2, 12),
		}),
		cacheHits: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_hits_total",
			Help:      "Predictions served from the result cache.",
		}),
		modelReady: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "model_ready",
			Help:      "1 when a model is loaded, labelled by loading strategy.",
		}, []string{"provenance"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.predictions,
		m.latency,
		m.cacheHits,
		m.modelReady,
	)

	return m
}

// ObservePrediction records one request. outcome is "ok" or an error kind.
func (m *Metrics) ObservePrediction(outcome string, elapsed time.Duration) {
	m.predictions.WithLabelValues(outcome).Inc()
	m.latency.Observe(elapsed.Seconds())
}

func (m *Metrics) CacheHit() {
	m.cacheHits.Inc()
}

func (m *Metrics) SetModel(provenance string, ready bool) {
	m.modelReady.Reset()
	value := 0.0
	if ready {
		value = 1
	}
	m.modelReady.WithLabelValues(provenance).Set(value)
}

func (m *Metrics) Registry() *prom.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
