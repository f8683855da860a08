package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/retry"
)

// Measurement names
const (
	MeasurementReadings   = "turbine_readings"
	MeasurementDailyStats = "turbine_daily_stats"
)

// Config holds InfluxDB connection settings
type Config struct {
	URL    string
	Org    string
	Token  string
	Bucket string
	Retry  retry.Config
}

// PointWriter is the subset of api.WriteAPIBlocking used by the sink
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Client exports classified readings and daily statistics to InfluxDB v2
type Client struct {
	client   influxdb2.Client
	writeAPI PointWriter
	config   Config
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(ctx context.Context, cfg Config, logger *logging.StructuredLogger) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	err := retry.Do(ctx, cfg.Retry, func() error {
		_, err := client.Health(ctx)
		return err
	}, func(err error, wait time.Duration) {
		logger.Warn(ctx, "[INFLUX_RETRY] InfluxDB not reachable, retrying", logging.Fields{
			"url":     cfg.URL,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	logger.Info(ctx, "[INFLUX_INIT] InfluxDB connection verified", logging.Fields{
		"url":    cfg.URL,
		"org":    cfg.Org,
		"bucket": cfg.Bucket,
	})

	return &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		config:   cfg,
	}, nil
}

// NewClientWithWriter creates a sink over an existing writer
func NewClientWithWriter(writer PointWriter) *Client {
	return &Client{writeAPI: writer}
}

// Name returns the sink name
func (c *Client) Name() string {
	return "influxdb"
}

// Write exports one point per classified reading and one per statistics row
func (c *Client) Write(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error {
	points := make([]*write.Point, 0, len(result.Normal)+len(result.Anomalous)+len(result.Unresolved)+len(result.Statistics))

	points = appendReadings(points, run.ID, models.ClassNormal, result.Normal)
	points = appendReadings(points, run.ID, models.ClassAnomalous, result.Anomalous)
	points = appendReadings(points, run.ID, models.ClassUnresolved, result.Unresolved)

	for _, s := range result.Statistics {
		fields := map[string]interface{}{
			"observation_count": s.ObservationCount,
			"unresolved_count":  s.UnresolvedCount,
		}
		addField(fields, "min_power", s.MinPower)
		addField(fields, "max_power", s.MaxPower)
		addField(fields, "avg_power", s.AvgPower)
		addField(fields, "stddev_power", s.StdDevPower)

		points = append(points, write.NewPoint(
			MeasurementDailyStats,
			map[string]string{
				"turbine_id": s.TurbineID,
				"run_id":     run.ID,
			},
			fields,
			s.EventDate,
		))
	}

	if len(points) == 0 {
		return nil
	}

	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write %d points: %w", len(points), err)
	}

	return nil
}

// Close closes the InfluxDB client
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Readings of one turbine-day share event_date, so the row index keeps points distinct
func appendReadings(points []*write.Point, runID string, class models.Classification, rows []models.ClassifiedRecord) []*write.Point {
	for i, r := range rows {
		fields := map[string]interface{}{
			"was_imputed": r.WasImputed,
		}
		addField(fields, "imputed_power_output", r.ImputedPowerOutput)
		addField(fields, "wind_speed", r.WindSpeed)
		addField(fields, "wind_direction", r.WindDirection)
		addField(fields, "avg_power", r.AvgPower)
		addField(fields, "stddev_power", r.StdDevPower)

		points = append(points, write.NewPoint(
			MeasurementReadings,
			map[string]string{
				"turbine_id":     r.TurbineID,
				"classification": string(class),
				"run_id":         runID,
			},
			fields,
			r.EventDate.Add(time.Duration(i)),
		))
	}
	return points
}

func addField(fields map[string]interface{}, key string, v *float64) {
	if v != nil {
		fields[key] = *v
	}
}
