package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
	"turbine-platform/internal/repository"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

// ResultSink receives the complete result of a pipeline run
type ResultSink interface {
	Name() string
	Write(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error
}

// RunStatusRecorder is implemented by sinks that track the final status of a run
type RunStatusRecorder interface {
	RecordStatus(ctx context.Context, run *models.PipelineRun) error
}

// SinkError reports which sink failed to accept a run
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Source selects the files of a run: explicit Paths win over Dir and Pattern
type Source struct {
	Dir     string
	Pattern string
	Paths   []string
}

// PipelineService runs ingestion, the core stages and the result sinks
type PipelineService struct {
	ingestion *IngestionService
	options   pipeline.Options
	sinks     []ResultSink
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(ingestion *IngestionService, options pipeline.Options, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, sinks ...ResultSink) *PipelineService {
	return &PipelineService{
		ingestion: ingestion,
		options:   options,
		sinks:     sinks,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// Run executes one batch over the given source and publishes the result to every sink
func (s *PipelineService) Run(ctx context.Context, src Source) (*models.PipelineRun, *pipeline.Result, error) {
	run := &models.PipelineRun{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.WithRunID(ctx, run.ID)

	s.logger.Info(ctx, "[PIPELINE_START] Starting pipeline run", logging.Fields{
		"data_dir": src.Dir,
		"pattern":  src.Pattern,
		"paths":    src.Paths,
		"sinks":    s.sinkNames(),
	})

	var (
		ingested *IngestionResult
		err      error
	)
	if len(src.Paths) > 0 {
		ingested, err = s.ingestion.IngestFiles(ctx, src.Paths)
	} else {
		ingested, err = s.ingestion.IngestDirectory(ctx, src.Dir, src.Pattern)
	}
	if err != nil {
		s.metrics.RecordRun("failed")
		return nil, nil, fmt.Errorf("ingestion failed: %w", err)
	}

	run.SourceFiles = ingested.Files
	run.RawRecords = ingested.TotalRecords
	run.DuplicateRecords = ingested.DuplicateRecords

	result, err := s.Process(ctx, ingested.Records)
	if err != nil {
		s.metrics.RecordRun("failed")
		return nil, nil, err
	}

	Summarize(run, result)
	run.FinishedAt = time.Now().UTC()
	run.Status = models.RunPending

	publishErr := s.publish(ctx, run, result)
	run.Status = models.RunSucceeded
	if publishErr != nil {
		run.Status = models.RunFailed
	}
	statusErr := s.recordStatus(ctx, run, publishErr)

	if publishErr != nil {
		s.metrics.RecordRun("failed")
		s.logger.Error(ctx, "[PIPELINE_SINK_ERROR] Result publication failed", logging.Fields{}, publishErr)
		return run, result, publishErr
	}

	// A run whose success was not recorded is never served as the latest run
	if statusErr != nil {
		run.Status = models.RunPending
		s.metrics.RecordRun("failed")
		s.logger.Error(ctx, "[PIPELINE_STATUS_ERROR] Run status not recorded", logging.Fields{}, statusErr)
		return run, result, statusErr
	}

	s.metrics.RecordRun("success")

	s.logger.Info(ctx, "[PIPELINE_COMPLETE] Pipeline run completed", logging.Fields{
		"raw_records":        run.RawRecords,
		"duplicate_records":  run.DuplicateRecords,
		"valid_records":      run.ValidRecords,
		"malformed_records":  run.MalformedRecords,
		"filled_records":     run.FilledRecords,
		"unresolved_records": run.UnresolvedRecords,
		"statistics_groups":  run.StatisticsGroups,
		"normal_records":     run.NormalRecords,
		"anomalous_records":  run.AnomalousRecords,
		"duration_seconds":   run.FinishedAt.Sub(run.StartedAt).Seconds(),
	})

	return run, result, nil
}

// Process runs the core stages over already ingested records
func (s *PipelineService) Process(ctx context.Context, raw []models.RawRecord) (*pipeline.Result, error) {
	stageStart := time.Now()

	result, err := pipeline.Run(ctx, raw, s.options, func(stage string, in, out int) {
		duration := time.Since(stageStart)
		stageStart = time.Now()

		s.metrics.PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
		s.metrics.RecordStage(stage, in, out)

		s.logger.Info(ctx, "[PIPELINE_STAGE] Stage completed", logging.Fields{
			"stage":       stage,
			"records_in":  in,
			"records_out": out,
			"duration_ms": duration.Milliseconds(),
		})
	})
	if err != nil {
		return nil, err
	}

	for _, m := range result.Malformed {
		s.metrics.RecordMalformed(string(m.Reason))
	}
	s.metrics.RecordClassified(string(models.ClassNormal), len(result.Normal))
	s.metrics.RecordClassified(string(models.ClassAnomalous), len(result.Anomalous))
	s.metrics.RecordClassified(string(models.ClassUnresolved), len(result.Unresolved))
	s.metrics.UnresolvedReadings.Add(float64(len(result.Unresolved)))

	if len(result.Unresolved) > 0 {
		s.logger.Warn(ctx, "[PIPELINE_UNRESOLVED] Readings left without power output", logging.Fields{
			"unresolved_records": len(result.Unresolved),
		})
	}
	if result.Unmatched > 0 {
		s.logger.Warn(ctx, "[PIPELINE_UNMATCHED] Readings without a statistics row", logging.Fields{
			"unmatched_records": result.Unmatched,
		})
	}

	return result, nil
}

// Summarize copies result counts onto run
func Summarize(run *models.PipelineRun, result *pipeline.Result) {
	run.ValidRecords = result.ValidCount
	run.MalformedRecords = len(result.Malformed)
	run.ImputedRecords = len(result.Imputed)
	run.FilledRecords = result.FilledCount()
	run.UnresolvedRecords = len(result.Unresolved)
	run.StatisticsGroups = len(result.Statistics)
	run.NormalRecords = len(result.Normal)
	run.AnomalousRecords = len(result.Anomalous)
}

// publish writes the result to every sink concurrently
// The first failure cancels the others and is returned as a SinkError
func (s *PipelineService) publish(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, sink := range s.sinks {
		sink := sink
		g.Go(func() error {
			timer := s.metrics.NewTimer(s.metrics.SinkWriteDuration.WithLabelValues(sink.Name()))
			err := sink.Write(gctx, run, result)
			duration := timer.ObserveDuration()

			if err != nil {
				s.metrics.RecordSinkError(sink.Name())
				var sinkErr *SinkError
				if errors.As(err, &sinkErr) {
					return err
				}
				return &SinkError{Sink: sink.Name(), Err: err}
			}

			s.logger.Info(gctx, "[PIPELINE_SINK] Result written", logging.Fields{
				"sink":        sink.Name(),
				"duration_ms": duration.Milliseconds(),
			})
			return nil
		})
	}

	return g.Wait()
}

// recordStatus hands the final run status to every sink that tracks it
// Sinks that failed the publication are skipped
func (s *PipelineService) recordStatus(ctx context.Context, run *models.PipelineRun, publishErr error) error {
	var failed *SinkError
	errors.As(publishErr, &failed)

	var firstErr error
	for _, sink := range s.sinks {
		recorder, ok := sink.(RunStatusRecorder)
		if !ok {
			continue
		}
		if failed != nil && failed.Sink == sink.Name() {
			continue
		}

		if err := recorder.RecordStatus(ctx, run); err != nil {
			s.metrics.RecordSinkError(sink.Name())
			s.logger.Warn(ctx, "[PIPELINE_STATUS] Sink did not record run status", logging.Fields{
				"sink":   sink.Name(),
				"status": string(run.Status),
				"error":  err.Error(),
			})
			if firstErr == nil {
				firstErr = &SinkError{Sink: sink.Name(), Err: err}
			}
		}
	}

	return firstErr
}

func (s *PipelineService) sinkNames() []string {
	names := make([]string, 0, len(s.sinks))
	for _, sink := range s.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// RepositorySink persists runs through a TurbineRepository
type RepositorySink struct {
	repo repository.TurbineRepository
}

// NewRepositorySink creates a sink backed by repo
func NewRepositorySink(repo repository.TurbineRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

// Name returns the sink name
func (r *RepositorySink) Name() string {
	return "postgres"
}

// Write saves the run and its result sets
func (r *RepositorySink) Write(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error {
	return r.repo.SaveRun(ctx, run, result)
}

// RecordStatus stores the final status of a saved run
func (r *RepositorySink) RecordStatus(ctx context.Context, run *models.PipelineRun) error {
	return r.repo.UpdateRunStatus(ctx, run.ID, run.Status)
}
