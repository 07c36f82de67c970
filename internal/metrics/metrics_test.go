package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestManagerRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewManager(WithRegisterer(reg), WithNamespace("bm_test"))

	m.ObserveMeasurement("waist_circumference", OutcomeValue, nil, false, time.Millisecond)
	m.ObserveMeasurement("waist_circumference", OutcomeDegenerate, []string{"EMPTY_CANDIDATES"}, false, time.Millisecond)
	m.ObserveMeasurement("shoulder_width", OutcomeValue, []string{"CAP_FALLBACK"}, true, time.Millisecond)
	m.ObserveMismatch("shoulder_width")
	m.ObserveSweepPoint("shoulder_width")
	m.ObserveSweepPoint("shoulder_width")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.measurements.WithLabelValues("waist_circumference", OutcomeValue)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.measurements.WithLabelValues("waist_circumference", OutcomeDegenerate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warnings.WithLabelValues("waist_circumference", "EMPTY_CANDIDATES")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("shoulder_width")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mismatches.WithLabelValues("shoulder_width")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweepPoints.WithLabelValues("shoulder_width")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["bm_test_measure_duration_seconds"])
}

func TestNilManagerIsNoop(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.ObserveMeasurement("k", OutcomeValue, []string{"X"}, true, time.Second)
		m.ObserveMismatch("k")
		m.ObserveSweepPoint("k")
	})
}
