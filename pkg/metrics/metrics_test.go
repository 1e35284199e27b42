package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDisabledMetricsAreNilSafe(t *testing.T) {
	require.False(t, IsEnabled())

	tm := NewTransferMetrics()
	require.Nil(t, tm)
	// Every method must tolerate a nil receiver.
	tm.SetQueueDepth("put", 3)
	tm.ObserveJob("put", "done", 128)
	tm.ObservePutRetry()

	cm := NewCatalogMetrics()
	require.Nil(t, cm)
	cm.ObserveOperation("find", time.Millisecond, nil)
}

func TestTransferMetricsRecordsObservations(t *testing.T) {
	InitRegistry(true)
	t.Cleanup(func() { InitRegistry(false) })

	tm := NewTransferMetrics()
	require.NotNil(t, tm)

	tm.SetQueueDepth("put", 5)
	require.Equal(t, float64(5), testutil.ToFloat64(tm.queueDepth.WithLabelValues("put")))

	tm.ObserveJob("put", "done", 256)
	require.Equal(t, float64(1), testutil.ToFloat64(tm.jobsTotal.WithLabelValues("put", "done")))
	require.Equal(t, float64(256), testutil.ToFloat64(tm.bytesTotal.WithLabelValues("put")))

	tm.ObservePutRetry()
	require.Equal(t, float64(1), testutil.ToFloat64(tm.putRetries))
}

func TestCatalogMetricsRecordsOutcome(t *testing.T) {
	InitRegistry(true)
	t.Cleanup(func() { InitRegistry(false) })

	cm := NewCatalogMetrics()
	require.NotNil(t, cm)

	cm.ObserveOperation("find", 5*time.Millisecond, nil)
	require.Equal(t, float64(1), testutil.ToFloat64(cm.opsTotal.WithLabelValues("find", "ok")))

	cm.ObserveOperation("find", time.Millisecond, errors.New("boom"))
	require.Equal(t, float64(1), testutil.ToFloat64(cm.opsTotal.WithLabelValues("find", "error")))
}
