package services

import (
	"context"
	"fmt"
	"time"

	"turbine-platform/internal/models"
	"turbine-platform/internal/repository"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

// StatisticsCache stores daily statistics rows by run and turbine-day
type StatisticsCache interface {
	Get(ctx context.Context, runID, turbineID string, date time.Time) (*models.DailyTurbineStats, bool, error)
	Set(ctx context.Context, runID string, stats *models.DailyTurbineStats) error
}

// StatisticsService serves daily turbine statistics
type StatisticsService struct {
	repo    repository.TurbineRepository
	cache   StatisticsCache
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service; cache may be nil
func NewStatisticsService(repo repository.TurbineRepository, cache StatisticsCache, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		cache:   cache,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetStatistics retrieves statistics with filtering
func (s *StatisticsService) GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.DailyTurbineStats, int, error) {
	return s.repo.GetDailyStatistics(ctx, filter)
}

// GetTurbineDay retrieves one turbine-day of the latest succeeded run, reading through the cache
// Cache entries are scoped by run so a superseded run is never served
// Cache failures are logged and fall back to the database
func (s *StatisticsService) GetTurbineDay(ctx context.Context, turbineID string, date time.Time) (*models.DailyTurbineStats, error) {
	date = models.TruncateToDate(date)

	runID, err := s.repo.LatestRunID(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		stats, hit, err := s.cache.Get(ctx, runID, turbineID, date)
		if err != nil {
			s.logger.Warn(ctx, "[STATS_CACHE_ERROR] Cache lookup failed", logging.Fields{
				"run_id":     runID,
				"turbine_id": turbineID,
				"event_date": date.Format(models.EventDateLayout),
				"error":      err.Error(),
			})
		}
		s.metrics.RecordCacheLookup(hit)
		if hit {
			return stats, nil
		}
	}

	stats, err := s.repo.GetTurbineDayStatistics(ctx, runID, turbineID, date)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, runID, stats); err != nil {
			s.logger.Warn(ctx, "[STATS_CACHE_ERROR] Cache fill failed", logging.Fields{
				"run_id":     runID,
				"turbine_id": turbineID,
				"error":      err.Error(),
			})
		}
	}

	return stats, nil
}

// ParseEventDate parses a YYYY-MM-DD date
func ParseEventDate(s string) (time.Time, error) {
	t, err := time.Parse(models.EventDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
