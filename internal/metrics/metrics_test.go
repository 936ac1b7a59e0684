package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	before := testutil.ToFloat64(Rollovers.WithLabelValues(RolloverClosed))
	Rollovers.WithLabelValues(RolloverClosed).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Rollovers.WithLabelValues(RolloverClosed)))

	assert.Panics(t, func() { Register(reg) }, "collectors register once per registry")
}
