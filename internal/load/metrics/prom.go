package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom mirrors engine measurements into Prometheus collectors.
//
// Collectors live in a private registry, not the default registerer.
type Prom struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ChecksTotal     *prometheus.CounterVec
	IterationsTotal *prometheus.CounterVec
	VirtualUsers    prometheus.Gauge
}

// NewProm creates and registers the collectors.
func NewProm() *Prom {
	reg := prometheus.NewRegistry()

	p := &Prom{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askload_http_reqs_total",
				Help: "Total HTTP requests issued",
			},
			[]string{"name", "success"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "askload_http_req_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"name"},
		),
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askload_checks_total",
				Help: "Check evaluations by result",
			},
			[]string{"check", "result"},
		),
		IterationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askload_iterations_total",
				Help: "Completed iterations by outcome",
			},
			[]string{"outcome"},
		),
		VirtualUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "askload_vus",
				Help: "Currently active virtual users",
			},
		),
	}

	reg.MustRegister(p.RequestsTotal, p.RequestDuration, p.ChecksTotal, p.IterationsTotal, p.VirtualUsers)
	return p
}

// Registry returns the registry holding the collectors.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler exposing the collectors.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prom) observeRequest(name string, d time.Duration, success bool) {
	if name == "" {
		name = "default"
	}
	p.RequestsTotal.WithLabelValues(name, strconv.FormatBool(success)).Inc()
	p.RequestDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (p *Prom) observeCheck(name string, ok bool) {
	result := "fail"
	if ok {
		result = "pass"
	}
	p.ChecksTotal.WithLabelValues(name, result).Inc()
}

func (p *Prom) observeIteration(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.IterationsTotal.WithLabelValues(outcome).Inc()
}
