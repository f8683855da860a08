package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/retry"
)

// Options configures the statistics cache
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
	Retry    retry.Config
}

// StatsCache keeps daily turbine statistics in Redis keyed by run and turbine-day
type StatsCache struct {
	client redis.Cmdable
	closer io.Closer
	ttl    time.Duration
	prefix string
}

// NewStatsCache connects to Redis, retrying the initial ping with backoff
func NewStatsCache(ctx context.Context, opts Options, logger *logging.StructuredLogger) (*StatsCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	err := retry.Do(ctx, opts.Retry, func() error {
		return rdb.Ping(ctx).Err()
	}, func(err error, wait time.Duration) {
		logger.Warn(ctx, "[CACHE_RETRY] Redis not reachable, retrying", logging.Fields{
			"addr":    opts.Addr,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info(ctx, "[CACHE_INIT] Redis connection established", logging.Fields{
		"addr": opts.Addr,
		"db":   opts.DB,
		"ttl":  opts.TTL.String(),
	})

	c := NewStatsCacheFromClient(rdb, opts.TTL, opts.Prefix)
	c.closer = rdb
	return c, nil
}

// NewStatsCacheFromClient wraps an existing client
func NewStatsCacheFromClient(client redis.Cmdable, ttl time.Duration, prefix string) *StatsCache {
	if prefix == "" {
		prefix = "turbine:stats"
	}
	return &StatsCache{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}
}

// Close closes the underlying client if this cache opened it
func (c *StatsCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Key returns the Redis key of a turbine-day within a run
func (c *StatsCache) Key(runID, turbineID string, date time.Time) string {
	return c.prefix + ":" + runID + ":" + turbineID + ":" + date.Format(models.EventDateLayout)
}

// Get returns the cached row of a run; the bool is false on a miss
func (c *StatsCache) Get(ctx context.Context, runID, turbineID string, date time.Time) (*models.DailyTurbineStats, bool, error) {
	val, err := c.client.Get(ctx, c.Key(runID, turbineID, date)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats models.DailyTurbineStats
	if err := json.Unmarshal(val, &stats); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry: %w", err)
	}

	return &stats, true, nil
}

// Set stores one row of a run with the configured TTL
func (c *StatsCache) Set(ctx context.Context, runID string, stats *models.DailyTurbineStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(runID, stats.TurbineID, stats.EventDate), data, c.ttl).Err()
}

// Name returns the sink name
func (c *StatsCache) Name() string {
	return "redis"
}

// Write stores every statistics row of a run in one pipeline
// Rows are keyed by run so readers only see the run they ask for
func (c *StatsCache) Write(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error {
	if len(result.Statistics) == 0 {
		return nil
	}

	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range result.Statistics {
			s := &result.Statistics[i]
			data, err := json.Marshal(s)
			if err != nil {
				return err
			}
			pipe.Set(ctx, c.Key(run.ID, s.TurbineID, s.EventDate), data, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write statistics cache: %w", err)
	}

	return nil
}
