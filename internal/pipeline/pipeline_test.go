package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-platform/internal/models"
)

func TestRun_EndToEnd(t *testing.T) {
	input := []models.RawRecord{
		raw(models.String("T1"), models.String("2022-03-01 00:00:00"), models.Float(100)),
		raw(models.String("T1"), models.String("2022-03-01 01:00:00"), nil),
		raw(models.String("T1"), models.String("2022-03-01 02:00:00"), models.Float(300)),
		raw(nil, models.String("2022-03-01 03:00:00"), models.Float(999)),
	}

	var stages []string
	res, err := Run(context.Background(), input, Options{}, func(stage string, in, out int) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{StageValidate, StageImpute, StageStats, StageClassify}, stages)
	assert.Len(t, res.Malformed, 1)
	assert.Equal(t, 3, res.ValidCount)
	assert.Equal(t, []*float64{models.Float(100), models.Float(200), models.Float(300)}, powers(res.Imputed))
	assert.Equal(t, 1, res.FilledCount())

	require.Len(t, res.Statistics, 1)
	s := res.Statistics[0]
	assert.Equal(t, 200.0, *s.AvgPower)
	assert.InDelta(t, 100.0, *s.StdDevPower, 1e-9)

	assert.Len(t, res.Normal, 3)
	assert.Empty(t, res.Anomalous)
	assert.Empty(t, res.Unresolved)
	assert.Zero(t, res.Unmatched)
}

func TestRun_CompletesWithDataLevelConditions(t *testing.T) {
	input := []models.RawRecord{
		raw(models.String("T1"), models.String("2022-03-01 00:00:00"), models.Float(50)),
		raw(models.String("T2"), models.String("2022-03-01 00:00:00"), nil),
		raw(models.String(" "), nil, nil),
	}

	res, err := Run(context.Background(), input, Options{UndefinedStdDevPolicy: PolicyExact}, nil)
	require.NoError(t, err)

	assert.Len(t, res.Malformed, 1)
	assert.Len(t, res.Statistics, 2)
	assert.Len(t, res.Normal, 1, "single observation equals its own mean")
	assert.Len(t, res.Unresolved, 1)
	assert.Equal(t, "T2", res.Unresolved[0].TurbineID)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, nil, Options{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
