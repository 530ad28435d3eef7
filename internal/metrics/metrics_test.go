package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersEveryMetricAndLabelsApply(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RSOccupancy.WithLabelValues("RS-ALU").Set(3)
	m.DispatchStalls.WithLabelValues("tag").Inc()
	m.PacketsEmitted.WithLabelValues("normal").Add(2)

	require.Equal(t, float64(3), testutil.ToFloat64(m.RSOccupancy.WithLabelValues("RS-ALU")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.DispatchStalls.WithLabelValues("tag")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.PacketsEmitted.WithLabelValues("normal")))
}

func TestCallingNewTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) }, "MustRegister panics on duplicate registration")
}
