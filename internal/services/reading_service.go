package services

import (
	"context"

	"turbine-platform/internal/models"
	"turbine-platform/internal/repository"
	"turbine-platform/pkg/logging"
)

// ReadingService handles classified reading and run queries
type ReadingService struct {
	repo   repository.TurbineRepository
	logger *logging.StructuredLogger
}

// NewReadingService creates a new reading service
func NewReadingService(repo repository.TurbineRepository, logger *logging.StructuredLogger) *ReadingService {
	return &ReadingService{
		repo:   repo,
		logger: logger,
	}
}

// GetReadings retrieves readings of one classification with filtering
func (s *ReadingService) GetReadings(ctx context.Context, classification models.Classification, filter repository.ReadingFilter) ([]*models.ClassifiedRecord, int, error) {
	readings, total, err := s.repo.GetReadings(ctx, classification, filter)
	if err != nil {
		return nil, 0, err
	}

	s.logger.Debug(ctx, "[READINGS_QUERY] Classified readings retrieved", logging.Fields{
		"classification": string(classification),
		"returned":       len(readings),
		"total":          total,
	})

	return readings, total, nil
}

// GetMalformed retrieves rows held back for reprocessing
func (s *ReadingService) GetMalformed(ctx context.Context, filter repository.MalformedFilter) ([]*models.MalformedRecord, int, error) {
	malformed, total, err := s.repo.GetMalformed(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	s.logger.Debug(ctx, "[READINGS_MALFORMED_QUERY] Malformed readings retrieved", logging.Fields{
		"returned": len(malformed),
		"total":    total,
	})

	return malformed, total, nil
}

// ListRuns retrieves pipeline runs, most recent first
func (s *ReadingService) ListRuns(ctx context.Context, limit, offset int) ([]*models.PipelineRun, int, error) {
	return s.repo.ListRuns(ctx, limit, offset)
}

// GetRun retrieves one pipeline run
func (s *ReadingService) GetRun(ctx context.Context, runID string) (*models.PipelineRun, error) {
	return s.repo.GetRun(ctx, runID)
}

// HealthCheck checks the backing store
func (s *ReadingService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		s.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Backing store unavailable", logging.Fields{
			"error": err.Error(),
		})
		return err
	}
	return nil
}
