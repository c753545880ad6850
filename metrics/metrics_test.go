package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestCountersIncrement(t *testing.T) {
	c := SourceAttemptsTotal.WithLabelValues("timedtext_manual", StatusFailed)
	before := counterValue(t, c)
	c.Inc()
	assert.Equal(t, before+1, counterValue(t, c))

	hits := CacheOperationsTotal.WithLabelValues(CacheOpGet, StatusHit)
	hits.Inc()
	assert.GreaterOrEqual(t, counterValue(t, hits), float64(1))
}
