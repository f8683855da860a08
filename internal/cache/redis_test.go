package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
)

var day = time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

// unreachable returns a cache whose client fails fast
func unreachable(t *testing.T) *StatsCache {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return NewStatsCacheFromClient(rdb, time.Hour, "")
}

// inMemory returns a cache backed by an in-process Redis server
func inMemory(t *testing.T) (*StatsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStatsCacheFromClient(rdb, time.Hour, "stats"), mr
}

func sampleStats(turbineID string, avg float64) models.DailyTurbineStats {
	return models.DailyTurbineStats{
		TurbineID:        turbineID,
		EventDate:        day,
		MinPower:         models.Float(avg - 10),
		MaxPower:         models.Float(avg + 10),
		AvgPower:         models.Float(avg),
		ObservationCount: 2,
	}
}

func TestKey(t *testing.T) {
	c := NewStatsCacheFromClient(nil, time.Hour, "stats")
	assert.Equal(t, "stats:run-1:T1:2022-03-01", c.Key("run-1", "T1", day))

	c = NewStatsCacheFromClient(nil, time.Hour, "")
	assert.Equal(t, "turbine:stats:run-1:T1:2022-03-01", c.Key("run-1", "T1", day))
}

func TestName(t *testing.T) {
	assert.Equal(t, "redis", NewStatsCacheFromClient(nil, time.Hour, "").Name())
}

func TestWrite_StoresEveryRowUnderTheRun(t *testing.T) {
	c, mr := inMemory(t)
	result := &pipeline.Result{
		Statistics: []models.DailyTurbineStats{sampleStats("T1", 15), sampleStats("T2", 40)},
	}

	require.NoError(t, c.Write(context.Background(), &models.PipelineRun{ID: "run-1"}, result))

	assert.Equal(t, []string{"stats:run-1:T1:2022-03-01", "stats:run-1:T2:2022-03-01"}, mr.Keys())
	assert.Equal(t, time.Hour, mr.TTL("stats:run-1:T1:2022-03-01"))

	raw, err := mr.Get("stats:run-1:T2:2022-03-01")
	require.NoError(t, err)
	var stored models.DailyTurbineStats
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "T2", stored.TurbineID)
	assert.Equal(t, 40.0, *stored.AvgPower)
	assert.Nil(t, stored.StdDevPower)
}

func TestGet_ReadsOnlyTheRequestedRun(t *testing.T) {
	c, _ := inMemory(t)
	ctx := context.Background()

	old := &pipeline.Result{Statistics: []models.DailyTurbineStats{sampleStats("T1", 15)}}
	require.NoError(t, c.Write(ctx, &models.PipelineRun{ID: "run-1"}, old))

	stats, hit, err := c.Get(ctx, "run-1", "T1", day)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 15.0, *stats.AvgPower)

	stats, hit, err = c.Get(ctx, "run-2", "T1", day)
	require.NoError(t, err)
	assert.False(t, hit, "a newer run never sees an older run's row")
	assert.Nil(t, stats)
}

func TestSet_RoundTripsAndExpires(t *testing.T) {
	c, mr := inMemory(t)
	ctx := context.Background()
	row := sampleStats("T1", 15)

	require.NoError(t, c.Set(ctx, "run-1", &row))

	stats, hit, err := c.Get(ctx, "run-1", "T1", day)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, row, *stats)

	mr.FastForward(2 * time.Hour)

	_, hit, err = c.Get(ctx, "run-1", "T1", day)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGet_CorruptEntry(t *testing.T) {
	c, mr := inMemory(t)
	require.NoError(t, mr.Set("stats:run-1:T1:2022-03-01", "{not json"))

	_, hit, err := c.Get(context.Background(), "run-1", "T1", day)
	require.Error(t, err)
	assert.False(t, hit)
	assert.Contains(t, err.Error(), "corrupt cache entry")
}

func TestGet_ConnectionErrorIsNotAMiss(t *testing.T) {
	c := unreachable(t)

	stats, hit, err := c.Get(context.Background(), "run-1", "T1", day)
	require.Error(t, err)
	assert.False(t, hit)
	assert.Nil(t, stats)
}

func TestWrite_EmptyResultSkipsRedis(t *testing.T) {
	c := unreachable(t)

	err := c.Write(context.Background(), &models.PipelineRun{ID: "run-1"}, &pipeline.Result{})
	assert.NoError(t, err)
}

func TestWrite_ReportsFailure(t *testing.T) {
	c := unreachable(t)
	result := &pipeline.Result{
		Statistics: []models.DailyTurbineStats{{TurbineID: "T1", EventDate: day, AvgPower: models.Float(1)}},
	}

	err := c.Write(context.Background(), &models.PipelineRun{ID: "run-1"}, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statistics cache")
}
