package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := New()
	c.Mutation("item.created")
	c.Mutation("item.created")
	c.Reconciliation("stale")
	c.PersistFailure()
	c.Observe(7, map[string]int{"twitter": 3, "podcast": 1})
	c.Observe(8, map[string]int{"twitter": 2})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.mutations.WithLabelValues("item.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconciliations.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.persistFailures))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.version))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.items.WithLabelValues("twitter")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.items))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Mutation("x")
		c.Reconciliation("adopted")
		c.PersistFailure()
		c.WebhookFailure()
		c.Observe(1, nil)
	})
}
