package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestCollector() *Collector {
	return NewCollectorWithRegistry("test", prometheus.NewRegistry())
}

func TestRecordCacheLookup(t *testing.T) {
	c := newTestCollector()

	c.RecordCacheLookup(true)
	c.RecordCacheLookup(false)
	c.RecordCacheLookup(false)
	c.RecordCacheLookup(true)

	assert.Equal(t, 0.5, testutil.ToFloat64(c.StatsCacheHitRatio))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.statsCacheLookups))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.statsCacheHits))
}

func TestRecordStageAndClassified(t *testing.T) {
	c := newTestCollector()

	c.RecordStage("validate", 10, 8)
	c.RecordStage("validate", 5, 5)
	c.RecordClassified("anomalous", 3)
	c.RecordMalformed("missing_timestamp")

	assert.Equal(t, 15.0, testutil.ToFloat64(c.PipelineStageRecords.WithLabelValues("validate", "in")))
	assert.Equal(t, 13.0, testutil.ToFloat64(c.PipelineStageRecords.WithLabelValues("validate", "out")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ReadingsByClass.WithLabelValues("anomalous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.MalformedTotal.WithLabelValues("missing_timestamp")))
}

func TestRecordRun(t *testing.T) {
	c := newTestCollector()

	c.RecordRun("failed")
	assert.Zero(t, testutil.ToFloat64(c.LastRunTimestamp))

	c.RecordRun("success")
	assert.Positive(t, testutil.ToFloat64(c.LastRunTimestamp))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PipelineRunsTotal.WithLabelValues("success")))
}

func TestCollectorsAreIsolatedPerRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestCollector()
		newTestCollector()
	})
}

func TestUpdateDBConnectionPool(t *testing.T) {
	c := newTestCollector()
	c.UpdateDBConnectionPool(3, 2, 5)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("in_use")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("total")))
}
