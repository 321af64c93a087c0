package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsSyncAndCheckouts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSync("partial", 3, 1, 200*time.Millisecond)
	m.ObserveSync("succeeded", 2, 0, 50*time.Millisecond)
	m.SetPending(1)
	m.IncCheckout("queued")
	m.IncCheckout("online")
	m.IncCheckout("online")
	m.SetCartLines(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncPasses.WithLabelValues("partial")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.syncEntries.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncEntries.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkouts.WithLabelValues("online")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.cartItems))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "pos_sync_duration_seconds")
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSync("succeeded", 1, 0, time.Second)
	m.SetPending(3)
	m.IncCheckout("online")

	New(nil).SetCartLines(2)
}
