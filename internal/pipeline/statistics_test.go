package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-platform/internal/models"
)

func imputed(turbine string, power *float64) models.ImputedRecord {
	return models.ImputedRecord{TurbineID: turbine, EventDate: day1, ImputedPowerOutput: power}
}

func TestComputeDailyStatistics_SampleStdDev(t *testing.T) {
	stats := ComputeDailyStatistics([]models.ImputedRecord{
		imputed("T1", models.Float(10)),
		imputed("T1", models.Float(15)),
		imputed("T1", models.Float(20)),
	})

	require.Len(t, stats, 1)
	s := stats[0]
	assert.Equal(t, "T1", s.TurbineID)
	assert.Equal(t, day1, s.EventDate)
	assert.Equal(t, 10.0, *s.MinPower)
	assert.Equal(t, 20.0, *s.MaxPower)
	assert.Equal(t, 15.0, *s.AvgPower)
	require.NotNil(t, s.StdDevPower)
	assert.InDelta(t, 5.0, *s.StdDevPower, 1e-12)
	assert.Equal(t, 3, s.ObservationCount)
	assert.Zero(t, s.UnresolvedCount)
}

func TestComputeDailyStatistics_SingleObservationHasNoStdDev(t *testing.T) {
	stats := ComputeDailyStatistics([]models.ImputedRecord{imputed("T1", models.Float(12))})

	require.Len(t, stats, 1)
	assert.Nil(t, stats[0].StdDevPower, "stddev must be undefined, not zero")
	assert.Equal(t, 12.0, *stats[0].AvgPower)
	assert.Equal(t, 1, stats[0].ObservationCount)
}

func TestComputeDailyStatistics_OneRowPerGroupOrdered(t *testing.T) {
	stats := ComputeDailyStatistics([]models.ImputedRecord{
		{TurbineID: "T2", EventDate: day1, ImputedPowerOutput: models.Float(1)},
		{TurbineID: "T1", EventDate: day2, ImputedPowerOutput: models.Float(2)},
		{TurbineID: "T1", EventDate: day1, ImputedPowerOutput: models.Float(3)},
		{TurbineID: "T1", EventDate: day2, ImputedPowerOutput: models.Float(4)},
	})

	require.Len(t, stats, 3)
	assert.Equal(t, models.TurbineDay{TurbineID: "T1", EventDate: day1}, stats[0].Key())
	assert.Equal(t, models.TurbineDay{TurbineID: "T1", EventDate: day2}, stats[1].Key())
	assert.Equal(t, models.TurbineDay{TurbineID: "T2", EventDate: day1}, stats[2].Key())
	assert.Equal(t, 3.0, *stats[1].AvgPower)
}

func TestComputeDailyStatistics_UnresolvedGroupIsIsolated(t *testing.T) {
	stats := ComputeDailyStatistics([]models.ImputedRecord{
		imputed("T1", models.Float(10)),
		imputed("T1", models.Float(30)),
		imputed("T3", nil),
		imputed("T3", nil),
	})

	require.Len(t, stats, 2)

	healthy := stats[0]
	assert.Equal(t, 20.0, *healthy.AvgPower)
	assert.Equal(t, 2, healthy.ObservationCount)

	broken := stats[1]
	assert.Equal(t, "T3", broken.TurbineID)
	assert.Nil(t, broken.MinPower)
	assert.Nil(t, broken.MaxPower)
	assert.Nil(t, broken.AvgPower)
	assert.Nil(t, broken.StdDevPower)
	assert.Zero(t, broken.ObservationCount)
	assert.Equal(t, 2, broken.UnresolvedCount)
}

func TestSampleStdDev(t *testing.T) {
	assert.Nil(t, SampleStdDev(nil, 0))
	assert.Nil(t, SampleStdDev([]float64{5}, 5))
	assert.InDelta(t, 100.0, *SampleStdDev([]float64{100, 200, 300}, 200), 1e-12)
	assert.Equal(t, 0.0, *SampleStdDev([]float64{4, 4}, 4))
}
