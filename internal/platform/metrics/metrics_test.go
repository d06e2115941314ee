package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommand("warn", ResultOK, 20*time.Millisecond)
	m.ObserveCommand("warn", ResultOK, 30*time.Millisecond)
	m.ObserveCommand("hire", ResultRejected, time.Millisecond)
	m.FlushFailed()
	m.Recovered()
	m.Recovered()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("warn", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("hire", ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreFlushFails))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreRecoveries))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CommandDuration))
}
