// Package repositorytest provides a testify mock of repository.TurbineRepository
package repositorytest

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
	"turbine-platform/internal/repository"
)

var _ repository.TurbineRepository = (*MockRepository)(nil)

// MockRepository is a mock implementation of repository.TurbineRepository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) SaveRun(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error {
	args := m.Called(ctx, run, result)
	return args.Error(0)
}

func (m *MockRepository) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error {
	args := m.Called(ctx, runID, status)
	return args.Error(0)
}

func (m *MockRepository) GetRun(ctx context.Context, runID string) (*models.PipelineRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PipelineRun), args.Error(1)
}

func (m *MockRepository) ListRuns(ctx context.Context, limit, offset int) ([]*models.PipelineRun, int, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.PipelineRun), args.Int(1), args.Error(2)
}

func (m *MockRepository) LatestRunID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) GetDailyStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.DailyTurbineStats, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.DailyTurbineStats), args.Int(1), args.Error(2)
}

func (m *MockRepository) GetTurbineDayStatistics(ctx context.Context, runID, turbineID string, date time.Time) (*models.DailyTurbineStats, error) {
	args := m.Called(ctx, runID, turbineID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DailyTurbineStats), args.Error(1)
}

func (m *MockRepository) GetReadings(ctx context.Context, classification models.Classification, filter repository.ReadingFilter) ([]*models.ClassifiedRecord, int, error) {
	args := m.Called(ctx, classification, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.ClassifiedRecord), args.Int(1), args.Error(2)
}

func (m *MockRepository) GetMalformed(ctx context.Context, filter repository.MalformedFilter) ([]*models.MalformedRecord, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.MalformedRecord), args.Int(1), args.Error(2)
}

func (m *MockRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
