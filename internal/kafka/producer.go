package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/retry"
)

// Config holds anomaly publisher configuration
type Config struct {
	Brokers           []string
	Topic             string
	ClientID          string
	PublishUnresolved bool
	DeviationSigma    float64
	Retry             retry.Config
}

// Alert is the JSON payload published for a flagged reading
type Alert struct {
	RunID              string                `json:"run_id"`
	Classification     models.Classification `json:"classification"`
	TurbineID          string                `json:"turbine_id"`
	EventDate          string                `json:"event_date"`
	ImputedPowerOutput *float64              `json:"imputed_power_output"`
	WasImputed         bool                  `json:"was_imputed"`
	WindSpeed          *float64              `json:"wind_speed"`
	WindDirection      *float64              `json:"wind_direction"`
	AvgPower           *float64              `json:"avg_power"`
	StdDevPower        *float64              `json:"stddev_power"`
	BandLower          *float64              `json:"band_lower,omitempty"`
	BandUpper          *float64              `json:"band_upper,omitempty"`
}

// Producer publishes anomalous and unresolved readings to Kafka
type Producer struct {
	producer          sarama.SyncProducer
	topic             string
	publishUnresolved bool
	sigma             float64
}

// NewProducer connects a synchronous producer, retrying with backoff
func NewProducer(ctx context.Context, cfg Config, logger *logging.StructuredLogger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	var producer sarama.SyncProducer
	err := retry.Do(ctx, cfg.Retry, func() error {
		p, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
		if err != nil {
			return err
		}
		producer = p
		return nil
	}, func(err error, wait time.Duration) {
		logger.Warn(ctx, "[KAFKA_RETRY] Kafka brokers not reachable, retrying", logging.Fields{
			"brokers": cfg.Brokers,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info(ctx, "[KAFKA_INIT] Kafka producer connected", logging.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	})

	return NewProducerFromSync(producer, cfg), nil
}

// NewProducerFromSync wraps an existing sarama.SyncProducer
func NewProducerFromSync(producer sarama.SyncProducer, cfg Config) *Producer {
	sigma := cfg.DeviationSigma
	if sigma <= 0 {
		sigma = pipeline.DefaultDeviationSigma
	}
	return &Producer{
		producer:          producer,
		topic:             cfg.Topic,
		publishUnresolved: cfg.PublishUnresolved,
		sigma:             sigma,
	}
}

// Name returns the sink name
func (p *Producer) Name() string {
	return "kafka"
}

// Write publishes one keyed message per flagged reading
func (p *Producer) Write(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(result.Anomalous)+len(result.Unresolved))

	for _, r := range result.Anomalous {
		msg, err := p.message(run.ID, models.ClassAnomalous, r)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if p.publishUnresolved {
		for _, r := range result.Unresolved {
			msg, err := p.message(run.ID, models.ClassUnresolved, r)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("failed to publish %d alerts: %w", len(msgs), err)
	}

	return nil
}

// Close closes the underlying producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

func (p *Producer) message(runID string, class models.Classification, r models.ClassifiedRecord) (*sarama.ProducerMessage, error) {
	alert := NewAlert(runID, class, r, p.sigma)

	data, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(r.TurbineID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("classification"), Value: []byte(class)},
			{Key: []byte("run_id"), Value: []byte(runID)},
		},
	}, nil
}

// NewAlert builds the payload of a flagged reading; the band is set only when defined
func NewAlert(runID string, class models.Classification, r models.ClassifiedRecord, sigma float64) Alert {
	alert := Alert{
		RunID:              runID,
		Classification:     class,
		TurbineID:          r.TurbineID,
		EventDate:          r.EventDate.Format(models.EventDateLayout),
		ImputedPowerOutput: r.ImputedPowerOutput,
		WasImputed:         r.WasImputed,
		WindSpeed:          r.WindSpeed,
		WindDirection:      r.WindDirection,
		AvgPower:           r.AvgPower,
		StdDevPower:        r.StdDevPower,
	}

	if r.AvgPower != nil && r.StdDevPower != nil {
		lo, hi := pipeline.Band(*r.AvgPower, *r.StdDevPower, sigma)
		alert.BandLower = &lo
		alert.BandUpper = &hi
	}

	return alert
}
