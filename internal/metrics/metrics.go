// Package metrics exposes Prometheus instruments for the ledger, its event
// pipeline and the HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "easybet"

// Metrics bundles every instrument the service records.
type Metrics struct {
	registry *prometheus.Registry

	commands         *prometheus.CounterVec
	commandLatency   *prometheus.HistogramVec
	eventsDelivered  *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	outboxDepth      prometheus.Gauge
	outboxDropped    prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	snapshots        *prometheus.CounterVec
	commandSeq       prometheus.Gauge
}

// New registers all instruments on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Ledger commands by operation and result code.",
		}, []string{"op", "code"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time to validate, journal and apply a ledger command.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events delivered per sink.",
		}, []string{"sink"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_delivery_failures_total",
			Help:      "Event batches a sink gave up on after retries.",
		}, []string{"sink"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_depth",
			Help:      "Events waiting for delivery.",
		}),
		outboxDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_dropped_total",
			Help:      "Events dropped because the outbox was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Ledger snapshot archive runs by result.",
		}, []string{"result"}),
		commandSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "command_seq",
			Help:      "Sequence number of the last applied command.",
		}),
	}

	reg.MustRegister(
		m.commands, m.commandLatency,
		m.eventsDelivered, m.deliveryFailures, m.outboxDepth, m.outboxDropped,
		m.httpRequests, m.httpLatency,
		m.snapshots, m.commandSeq,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCommand records one ledger command. code is "OK" on success.
func (m *Metrics) ObserveCommand(op, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(op, code).Inc()
	m.commandLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) SetCommandSeq(seq uint64) {
	if m == nil {
		return
	}
	m.commandSeq.Set(float64(seq))
}

func (m *Metrics) EventsDelivered(sink string, n int) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(sink).Add(float64(n))
}

func (m *Metrics) DeliveryFailed(sink string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetOutboxDepth(n int) {
	if m == nil {
		return
	}
	m.outboxDepth.Set(float64(n))
}

func (m *Metrics) OutboxDropped(n int) {
	if m == nil {
		return
	}
	m.outboxDropped.Add(float64(n))
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) SnapshotArchived(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.snapshots.WithLabelValues(result).Inc()
}

// LedgerTotals is a point-in-time summary of ledger state, in whole tokens
// for the amounts.
type LedgerTotals struct {
	Supply         float64
	Escrow         float64
	Projects       int
	ActiveProjects int
}

// WatchLedger registers gauges that read totals at scrape time, so they are
// never stale and cost nothing between scrapes.
func (m *Metrics) WatchLedger(totals func() LedgerTotals) {
	if m == nil {
		return
	}
	gauge := func(name, help string, pick func(LedgerTotals) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return pick(totals()) })
	}
	m.registry.MustRegister(
		gauge("token_supply", "Total bet token supply in whole tokens.",
			func(t LedgerTotals) float64 { return t.Supply }),
		gauge("escrow_total", "Tokens held in project prize pools, in whole tokens.",
			func(t LedgerTotals) float64 { return t.Escrow }),
		gauge("projects", "Projects ever created.",
			func(t LedgerTotals) float64 { return float64(t.Projects) }),
		gauge("active_projects", "Projects currently selling tickets.",
			func(t LedgerTotals) float64 { return float64(t.ActiveProjects) }),
	)
}
