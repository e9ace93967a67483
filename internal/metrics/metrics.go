// Package metrics exports simulation and delivery measurements to
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/tycoon/internal/engine"
	"github.com/talgya/tycoon/internal/webhook"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	phaseDuration *prometheus.HistogramVec
	phaseFailures *prometheus.CounterVec
	dayDuration   prometheus.Histogram
	day           prometheus.Gauge
	season        prometheus.Gauge
	prices        *prometheus.GaugeVec
	bankruptcies  prometheus.Counter
	defaults      prometheus.Counter
	layoffs       prometheus.Counter
	webhooks      *prometheus.CounterVec
}

// New registers every collector, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tycoon",
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each daily phase.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"phase"}),
		phaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tycoon",
			Name:      "phase_failures_total",
			Help:      "Phases that returned an error or panicked.",
		}, []string{"phase"}),
		dayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tycoon",
			Name:      "day_duration_seconds",
			Help:      "Wall-clock time to run one simulated day.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		day: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tycoon",
			Name:      "day",
			Help:      "Last completed simulated day.",
		}),
		season: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tycoon",
			Name:      "season",
			Help:      "Current season number.",
		}),
		prices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tycoon",
			Name:      "item_price",
			Help:      "Current market price per item.",
		}, []string{"item"}),
		bankruptcies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycoon",
			Name:      "bankruptcies_total",
			Help:      "Agents flagged bankrupt.",
		}),
		defaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycoon",
			Name:      "loans_defaulted_total",
			Help:      "Loans moved to defaulted.",
		}),
		layoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycoon",
			Name:      "layoffs_total",
			Help:      "Workers laid off for unpaid wages or shrinking population.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tycoon",
			Name:      "webhook_events_total",
			Help:      "Outbox events by delivery outcome.",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.phaseDuration, m.phaseFailures, m.dayDuration, m.day, m.season,
		m.prices, m.bankruptcies, m.defaults, m.layoffs, m.webhooks,
	)
	return m
}

// ObservePhase implements engine.Observer.
func (m *Metrics) ObservePhase(name string, d time.Duration, err error) {
	m.phaseDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		m.phaseFailures.WithLabelValues(name).Inc()
	}
}

// ObserveDay implements engine.Observer.
func (m *Metrics) ObserveDay(r *engine.Report) {
	m.dayDuration.Observe(r.Duration.Seconds())
	m.day.Set(float64(r.Day))
	m.season.Set(float64(r.Season))
	for item, p := range r.Prices {
		m.prices.WithLabelValues(string(item)).Set(float64(p))
	}
	m.bankruptcies.Add(float64(r.Bankruptcies))
	m.defaults.Add(float64(r.LoansDefaulted))
	m.layoffs.Add(float64(r.Layoffs))
}

// ObserveWebhook counts a delivered, retried or dropped batch.
func (m *Metrics) ObserveWebhook(o webhook.Outcome, events int) {
	m.webhooks.WithLabelValues(string(o)).Add(float64(events))
}

// WatchOutbox exports the undelivered event count, read on each scrape.
func (m *Metrics) WatchOutbox(depth func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tycoon",
		Name:      "outbox_depth",
		Help:      "Events waiting for webhook delivery.",
	}, depth))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

var _ engine.Observer = (*Metrics)(nil)
