// Package metrics turns event bus traffic into Prometheus series.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"habitbot/internal/dispatch"
	"habitbot/internal/eventbus"
)

const namespace = "habitbot"

// Collector owns a private Prometheus registry.
type Collector struct {
	reg *prometheus.Registry

	timerEvents   *prometheus.CounterVec
	firings       *prometheus.CounterVec
	firingSeconds *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	items         *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		timerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_events_total",
			Help:      "Timer registry events by kind.",
		}, []string{"event"}),
		firings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firings_total",
			Help:      "Timer firings handled by the dispatcher, by purpose and result.",
		}, []string{"purpose", "result"}),
		firingSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "firing_duration_seconds",
			Help:      "Handler run time per firing.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"purpose"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outgoing messages by result.",
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_transitions_total",
			Help:      "Items completed by the user or expired by the deadline engine.",
		}, []string{"event"}),
	}
	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.timerEvents,
		c.firings,
		c.firingSeconds,
		c.notifications,
		c.items,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Gauge registers a gauge sampled from fn on every scrape.
func (c *Collector) Gauge(name, help string, fn func() float64) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Observe records one bus event. Unknown types are ignored.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeTimerRegistered:
		c.timerEvents.WithLabelValues("registered").Inc()
	case eventbus.TypeTimerCancelled:
		c.timerEvents.WithLabelValues("cancelled").Inc()
	case eventbus.TypeTimerFired:
		c.timerEvents.WithLabelValues("fired").Inc()

	case eventbus.TypeTaskFinished:
		c.firing(e, "ok")
	case eventbus.TypeTaskFailed:
		c.firing(e, "failed")
	case eventbus.TypeTaskSkipped:
		c.firing(e, "skipped")

	case eventbus.TypeNotifySent:
		c.notifications.WithLabelValues("sent").Inc()
	case eventbus.TypeNotifyFailed:
		c.notifications.WithLabelValues("failed").Inc()

	case eventbus.TypeItemCompleted:
		c.items.WithLabelValues("completed").Inc()
	case eventbus.TypeItemExpired:
		c.items.WithLabelValues("expired").Inc()
	}
}

func (c *Collector) firing(e eventbus.Event, result string) {
	purpose := "unknown"
	te, ok := e.Data.(dispatch.TaskEvent)
	if ok && te.Purpose != "" {
		purpose = string(te.Purpose)
	}
	c.firings.WithLabelValues(purpose, result).Inc()
	if ok && result != "skipped" {
		c.firingSeconds.WithLabelValues(purpose).Observe(te.Duration.Seconds())
	}
}

// Run feeds bus events into the collector until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(512)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}
