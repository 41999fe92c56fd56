package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Observe("insert", "person", 2*time.Millisecond, nil)
	m.Observe("insert", "person", 3*time.Millisecond, errors.New("boom"))
	m.Observe("get_all", "person", time.Millisecond, nil)

	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("insert", "person")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.errors.WithLabelValues("get_all", "person")))
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	second.Observe("delete", "note", time.Millisecond, errors.New("x"))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.errors.WithLabelValues("delete", "note")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Observe("insert", "x", time.Second, nil) })

	unregistered, err := New(nil)
	require.NoError(t, err)
	assert.Len(t, unregistered.Collectors(), 2)
}
