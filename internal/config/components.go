package config

import (
	"turbine-platform/internal/cache"
	"turbine-platform/internal/influxdb"
	"turbine-platform/internal/kafka"
	"turbine-platform/internal/pipeline"
	"turbine-platform/pkg/database"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/retry"
)

// RetryPolicy returns the backoff settings used for every outbound connection
func (c *Config) RetryPolicy() retry.Config {
	policy := retry.DefaultConfig()
	policy.InitialInterval = c.Retry.InitialInterval
	policy.MaxInterval = c.Retry.MaxInterval
	policy.MaxElapsedTime = c.Retry.MaxElapsedTime
	return policy
}

// LoggerOptions returns the logger settings
func (c *Config) LoggerOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// PostgresConfig returns the database connection settings
func (c *Config) PostgresConfig() *database.Config {
	return &database.Config{
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		Retry:           c.RetryPolicy(),
	}
}

// PipelineOptions returns the core stage settings
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	policy, err := pipeline.ParseUndefinedStdDevPolicy(c.Pipeline.UndefinedStdDevPolicy)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		TimestampLayouts:      c.Pipeline.TimestampLayouts,
		DeviationSigma:        c.Pipeline.DeviationSigma,
		UndefinedStdDevPolicy: policy,
	}, nil
}

// CacheOptions returns the daily statistics cache settings
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TTL:      c.Redis.TTL,
		Prefix:   c.Redis.Prefix,
		Retry:    c.RetryPolicy(),
	}
}

// ProducerConfig returns the anomaly publisher settings
func (c *Config) ProducerConfig() kafka.Config {
	return kafka.Config{
		Brokers:           c.Kafka.Brokers,
		Topic:             c.Kafka.AnomalyTopic,
		ClientID:          c.Kafka.ClientID,
		PublishUnresolved: c.Kafka.PublishUnresolved,
		DeviationSigma:    c.Pipeline.DeviationSigma,
		Retry:             c.RetryPolicy(),
	}
}

// InfluxConfig returns the time-series export settings
func (c *Config) InfluxConfig() influxdb.Config {
	return influxdb.Config{
		URL:    c.InfluxDB.URL,
		Org:    c.InfluxDB.Org,
		Token:  c.InfluxDB.Token,
		Bucket: c.InfluxDB.Bucket,
		Retry:  c.RetryPolicy(),
	}
}
