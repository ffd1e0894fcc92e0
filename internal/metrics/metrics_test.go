package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilRegistererDisables(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// All recorders are no-ops on nil.
	m.CacheLookup(true)
	m.Observe("create_segment", StatusOK, time.Now())
	m.Repaired("orphaned_relation", 3)
	m.HealthScore(90)
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues(CacheHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues(CacheMiss)))

	m.Observe("merge_segments", StatusPartial, time.Now())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("merge_segments", StatusPartial)))

	m.Repaired("orphaned_relation", 2)
	m.Repaired("orphaned_relation", 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.repairedRows.WithLabelValues("orphaned_relation")))

	m.HealthScore(85)
	assert.Equal(t, 85.0, testutil.ToFloat64(m.healthScore))
}

func TestNew_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.NoError(t, err, "already registered collectors are tolerated")
}
