// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package metrics exposes the state of the tracking sessions as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/arrival-alarm/internal/geobus"
	"github.com/wneessen/arrival-alarm/internal/logger"
)

const (
	namespace       = "arrival_alarm"
	collectorBuffer = 128
	shutdownTimeout = time.Second * 5
)

// Collector bundles the metrics fed by the session events of a bus.
type Collector struct {
	gatherer prometheus.Gatherer

	Events        *prometheus.CounterVec
	ActiveSession *prometheus.GaugeVec
	Distance      *prometheus.GaugeVec
	PollInterval  *prometheus.GaugeVec
	FixAccuracy   prometheus.Histogram
}

// New registers the metrics against reg, defaulting to the global registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Session events, labeled by target and kind.",
		}, []string{"target", "kind"}),
		ActiveSession: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a session is tracking the target.",
		}, []string{"target"}),
		Distance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distance_meters",
			Help:      "Last known distance to the target.",
		}, []string{"target"}),
		PollInterval: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_interval_seconds",
			Help:      "Interval of the current polling directive, 0 while sampling by distance.",
		}, []string{"target"}),
		FixAccuracy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fix_accuracy_meters",
			Help:      "Reported horizontal accuracy of accepted fixes.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
	}
	for _, col := range []prometheus.Collector{c.Events, c.ActiveSession, c.Distance, c.PollInterval, c.FixAccuracy} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return c, nil
}

// Observe updates the metrics for a single event.
func (c *Collector) Observe(e geobus.Event) {
	c.Events.WithLabelValues(e.Key, e.Kind.String()).Inc()
	switch e.Kind {
	case geobus.KindStarted:
		c.ActiveSession.WithLabelValues(e.Key).Set(1)
	case geobus.KindArrived, geobus.KindStopped:
		c.ActiveSession.WithLabelValues(e.Key).Set(0)
	case geobus.KindUpdate:
		c.Distance.WithLabelValues(e.Key).Set(e.Distance)
		if e.Fix.HasAccuracy() {
			c.FixAccuracy.Observe(e.Fix.Accuracy)
		}
	}
	c.PollInterval.WithLabelValues(e.Key).Set(e.Directive.Interval.Seconds())
}

// Run observes events until ctx is cancelled or the channel is closed.
func (c *Collector) Run(ctx context.Context, events <-chan geobus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

// Subscribe registers the collector on bus.
func (c *Collector) Subscribe(bus *geobus.GeoBus) (<-chan geobus.Event, func()) {
	return bus.SubscribeAll(collectorBuffer)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes the metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	log.Info("serving prometheus metrics", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server exited", logger.Err(err))
	}
}
