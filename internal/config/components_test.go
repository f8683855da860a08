package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-platform/internal/pipeline"
)

func TestComponentSettings(t *testing.T) {
	t.Setenv("RETRY_MAX_ELAPSED_TIME", "5s")
	t.Setenv("PIPELINE_DEVIATION_SIGMA", "3")
	t.Setenv("PIPELINE_UNDEFINED_STDDEV_POLICY", "exact")
	t.Setenv("KAFKA_ANOMALY_TOPIC", "alerts")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	retryPolicy := cfg.RetryPolicy()
	assert.Equal(t, 5*time.Second, retryPolicy.MaxElapsedTime)
	assert.Equal(t, 2.0, retryPolicy.Multiplier)

	db := cfg.PostgresConfig()
	assert.Equal(t, "turbine_platform", db.Database)
	assert.Equal(t, retryPolicy, db.Retry)
	assert.Contains(t, db.DSN(), "dbname=turbine_platform")

	opts, err := cfg.PipelineOptions()
	require.NoError(t, err)
	assert.Equal(t, 3.0, opts.DeviationSigma)
	assert.Equal(t, pipeline.PolicyExact, opts.UndefinedStdDevPolicy)

	producer := cfg.ProducerConfig()
	assert.Equal(t, "alerts", producer.Topic)
	assert.Equal(t, 3.0, producer.DeviationSigma)

	assert.Equal(t, "turbine:stats", cfg.CacheOptions().Prefix)
	assert.Equal(t, "turbine-readings", cfg.InfluxConfig().Bucket)
	assert.Equal(t, "info", cfg.LoggerOptions().Level)
}

func TestPipelineOptions_InvalidPolicy(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.Pipeline.UndefinedStdDevPolicy = "ignore"

	_, err = cfg.PipelineOptions()
	assert.Error(t, err)
}
