package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data_group_*.csv", cfg.Pipeline.FilePattern)
	assert.Equal(t, 2.0, cfg.Pipeline.DeviationSigma)
	assert.Equal(t, "normal", cfg.Pipeline.UndefinedStdDevPolicy)
	assert.Equal(t, 5, cfg.Pipeline.ShowRows)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.InfluxDB.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PIPELINE_DEVIATION_SIGMA", "3")
	t.Setenv("PIPELINE_TIMESTAMP_LAYOUTS", "2006-01-02, 02/01/2006 ,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_TTL", "30m")
	t.Setenv("DB_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3.0, cfg.Pipeline.DeviationSigma)
	assert.Equal(t, []string{"2006-01-02", "02/01/2006"}, cfg.Pipeline.TimestampLayouts)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Minute, cfg.Redis.TTL)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("REDIS_TTL", "forever")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"db disabled skips db checks", func(c *Config) { c.Database.Enabled = false; c.Database.Host = "" }, ""},
		{"bad log output", func(c *Config) { c.Logging.Output = "syslog" }, "invalid log output"},
		{"zero sigma", func(c *Config) { c.Pipeline.DeviationSigma = 0 }, "deviation sigma"},
		{"bad policy", func(c *Config) { c.Pipeline.UndefinedStdDevPolicy = "guess" }, "undefined stddev policy"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "kafka broker"},
		{"influx without bucket", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "" }, "influxdb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
