package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the store and sync metrics on its own registry.
type Collector struct {
	Registry *prometheus.Registry

	mutations       *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	persistFailures prometheus.Counter
	version         prometheus.Gauge
	items           *prometheus.GaugeVec
	webhookFailures prometheus.Counter
}

// New registers the hub metrics on a fresh registry.
func New() *Collector {
	c := &Collector{Registry: prometheus.NewRegistry()}
	c.mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_store_mutations_total",
		Help: "Committed store mutations by operation",
	}, []string{"op"})
	c.reconciliations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_sync_reconciliations_total",
		Help: "Remote snapshot reconciliation outcomes",
	}, []string{"outcome"})
	c.persistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_store_persist_failures_total",
		Help: "Local durable storage writes that failed",
	})
	c.version = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_store_version",
		Help: "Current dataset version counter",
	})
	c.items = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hub_store_items",
		Help: "Items held in the store by type",
	}, []string{"type"})
	c.webhookFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_webhook_delivery_failures_total",
		Help: "Webhook deliveries that failed",
	})
	c.Registry.MustRegister(c.mutations, c.reconciliations, c.persistFailures, c.version, c.items, c.webhookFailures)
	return c
}

// Nil receivers are valid everywhere so callers can leave metrics unset.

func (c *Collector) Mutation(op string) {
	if c == nil {
		return
	}
	c.mutations.WithLabelValues(op).Inc()
}

func (c *Collector) Reconciliation(outcome string) {
	if c == nil {
		return
	}
	c.reconciliations.WithLabelValues(outcome).Inc()
}

func (c *Collector) PersistFailure() {
	if c == nil {
		return
	}
	c.persistFailures.Inc()
}

func (c *Collector) WebhookFailure() {
	if c == nil {
		return
	}
	c.webhookFailures.Inc()
}

// Observe records the version and per-type item counts after a commit.
func (c *Collector) Observe(version int64, byType map[string]int) {
	if c == nil {
		return
	}
	c.version.Set(float64(version))
	c.items.Reset()
	for t, n := range byType {
		c.items.WithLabelValues(t).Set(float64(n))
	}
}
