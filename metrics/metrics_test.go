package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCycle(t *testing.T) {
	HysteresisTimer.Reset()

	RecordCycle(15.5, true, 4, 0)
	assert.Equal(t, 15.5, testutil.ToFloat64(AggregateMetric))
	assert.Equal(t, 1.0, testutil.ToFloat64(Limited))
	assert.Equal(t, 4.0, testutil.ToFloat64(HysteresisTimer.WithLabelValues("on")))
	assert.Equal(t, 0.0, testutil.ToFloat64(HysteresisTimer.WithLabelValues("off")))

	RecordCycle(0, false, 0, 2)
	assert.Equal(t, 0.0, testutil.ToFloat64(Limited))
	assert.Equal(t, 2.0, testutil.ToFloat64(HysteresisTimer.WithLabelValues("off")))
}

func TestRecordCollection(t *testing.T) {
	CollectionsTotal.Reset()
	SourceConnections.Reset()

	RecordCollection("home", true, 7, 0.02)
	RecordCollection("home", false, 0, 6)
	RecordCollection("home", true, 3, 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(CollectionsTotal.WithLabelValues("home", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(CollectionsTotal.WithLabelValues("home", StatusFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(SourceConnections.WithLabelValues("home")))
}

func TestRecordActuationAndFailures(t *testing.T) {
	ActuationsTotal.Reset()
	FailureRecordsTotal.Reset()
	TransitionsTotal.Reset()

	RecordActuation("qb", "limit", true)
	RecordActuation("qb", "limit", false)
	RecordActuation("qb", "limit", false)
	RecordFailure("qb", "limit")
	RecordTransition("limited")

	assert.Equal(t, 1.0, testutil.ToFloat64(ActuationsTotal.WithLabelValues("qb", "limit", StatusSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(ActuationsTotal.WithLabelValues("qb", "limit", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(FailureRecordsTotal.WithLabelValues("qb", "limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(TransitionsTotal.WithLabelValues("limited")))
}
