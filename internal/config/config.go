package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Pipeline PipelineConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	InfluxDB InfluxDBConfig
	Retry    RetryConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BatchSize       int
	MigrationsDir   string
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level      string
	Format     string
	Output     string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// PipelineConfig holds batch pipeline configuration
type PipelineConfig struct {
	DataDir               string
	FilePattern           string
	TimestampLayouts      []string
	DeviationSigma        float64
	UndefinedStdDevPolicy string
	ShowRows              int
}

// RedisConfig holds daily statistics cache configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// KafkaConfig holds anomaly publisher configuration
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	AnomalyTopic      string
	ClientID          string
	PublishUnresolved bool
}

// InfluxDBConfig holds time-series export configuration
type InfluxDBConfig struct {
	Enabled bool
	URL     string
	Org     string
	Token   string
	Bucket  string
}

// RetryConfig holds connection backoff configuration
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_ENABLED", true),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "turbine_platform"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", time.Minute),
			BatchSize:       getEnvInt("DB_BATCH_SIZE", 1000),
			MigrationsDir:   getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/turbine-platform.log"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Pipeline: PipelineConfig{
			DataDir:               getEnv("PIPELINE_DATA_DIR", "data"),
			FilePattern:           getEnv("PIPELINE_FILE_PATTERN", "data_group_*.csv"),
			TimestampLayouts:      getEnvStringSlice("PIPELINE_TIMESTAMP_LAYOUTS", nil),
			DeviationSigma:        getEnvFloat("PIPELINE_DEVIATION_SIGMA", 2.0),
			UndefinedStdDevPolicy: getEnv("PIPELINE_UNDEFINED_STDDEV_POLICY", "normal"),
			ShowRows:              getEnvInt("PIPELINE_SHOW_ROWS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_TTL", 24*time.Hour),
			Prefix:   getEnv("REDIS_PREFIX", "turbine:stats"),
		},
		Kafka: KafkaConfig{
			Enabled:           getEnvBool("KAFKA_ENABLED", false),
			Brokers:           getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			AnomalyTopic:      getEnv("KAFKA_ANOMALY_TOPIC", "turbine-anomalies"),
			ClientID:          getEnv("KAFKA_CLIENT_ID", "turbine-pipeline"),
			PublishUnresolved: getEnvBool("KAFKA_PUBLISH_UNRESOLVED", true),
		},
		InfluxDB: InfluxDBConfig{
			Enabled: getEnvBool("INFLUXDB_ENABLED", false),
			URL:     getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Org:     getEnv("INFLUXDB_ORG", "operations"),
			Token:   getEnv("INFLUXDB_TOKEN", ""),
			Bucket:  getEnv("INFLUXDB_BUCKET", "turbine-readings"),
		},
		Retry: RetryConfig{
			InitialInterval: getEnvDuration("RETRY_INITIAL_INTERVAL", 500*time.Millisecond),
			MaxInterval:     getEnvDuration("RETRY_MAX_INTERVAL", 10*time.Second),
			MaxElapsedTime:  getEnvDuration("RETRY_MAX_ELAPSED_TIME", time.Minute),
		},
	}, nil
}

// Validate checks the configuration for values that would fail at runtime
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database max open connections must be positive")
		}
		if c.Database.BatchSize <= 0 {
			return fmt.Errorf("database batch size must be positive")
		}
	}

	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("log file path is required when LOG_OUTPUT=file")
		}
	default:
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.Pipeline.DeviationSigma <= 0 {
		return fmt.Errorf("deviation sigma must be positive, got %v", c.Pipeline.DeviationSigma)
	}
	switch c.Pipeline.UndefinedStdDevPolicy {
	case "normal", "exact":
	default:
		return fmt.Errorf("invalid undefined stddev policy: %s", c.Pipeline.UndefinedStdDevPolicy)
	}
	if c.Pipeline.ShowRows < 0 {
		return fmt.Errorf("show rows cannot be negative")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("at least one kafka broker is required when kafka is enabled")
		}
		if c.Kafka.AnomalyTopic == "" {
			return fmt.Errorf("kafka anomaly topic is required when kafka is enabled")
		}
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" || c.InfluxDB.Org == "" {
			return fmt.Errorf("influxdb url, org and bucket are required when influxdb is enabled")
		}
	}

	return nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
