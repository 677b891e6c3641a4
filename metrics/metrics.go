// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exports the tunnel's lifecycle counters to
// Prometheus. Recorder implements tunnel.Observer; the daemon serves
// the registry over /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/causeway-foundation/causeway/membus"
	"github.com/causeway-foundation/causeway/tunnel"
)

// Recorder translates tunnel lifecycle callbacks into Prometheus
// series. Create one per daemon with NewRecorder.
type Recorder struct {
	registry *prometheus.Registry

	tunneledServices    *prometheus.GaugeVec
	servicesBridged     *prometheus.CounterVec
	discoveryRuns       *prometheus.CounterVec
	propagationFailures prometheus.Counter
}

var _ tunnel.Observer = (*Recorder)(nil)

// NewRecorder builds a recorder backed by its own registry, so two
// daemons in one process (as in tests) never collide.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	recorder := &Recorder{
		registry: registry,
		tunneledServices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "causeway_tunneled_services",
			Help: "Services currently bridged, by messaging pattern.",
		}, []string{"pattern"}),
		servicesBridged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causeway_services_bridged_total",
			Help: "Bridges built, by messaging pattern and discovery source.",
		}, []string{"pattern", "source"}),
		discoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causeway_discovery_runs_total",
			Help: "Discovery passes per domain and outcome.",
		}, []string{"scope", "result"}),
		propagationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "causeway_propagation_failures_total",
			Help: "Bridge propagation calls that returned an error.",
		}),
	}

	registry.MustRegister(
		recorder.tunneledServices,
		recorder.servicesBridged,
		recorder.discoveryRuns,
		recorder.propagationFailures,
	)
	return recorder
}

// Handler returns the HTTP handler serving this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) DiscoveryRan(scope tunnel.Scope, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.discoveryRuns.WithLabelValues(scope.String(), result).Inc()
}

func (r *Recorder) ServiceBridged(service membus.ServiceConfig, source tunnel.Scope) {
	r.servicesBridged.WithLabelValues(service.Pattern.String(), source.String()).Inc()
}

func (r *Recorder) ServiceRemoved(service membus.ServiceConfig) {}

func (r *Recorder) PropagationFailure(service membus.ServiceConfig, err error) {
	r.propagationFailures.Inc()
}

func (r *Recorder) TunneledCount(pattern membus.MessagingPattern, count int) {
	r.tunneledServices.WithLabelValues(pattern.String()).Set(float64(count))
}
