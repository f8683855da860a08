package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"turbine-platform/internal/models"
	"turbine-platform/internal/repository"
	"turbine-platform/internal/repository/repositorytest"
	"turbine-platform/pkg/logging"
)

func newBufferedService(repo repository.TurbineRepository) (*ReadingService, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLogger("services-test", "test", logging.DebugLevel)
	logger.SetOutput(&buf)
	return NewReadingService(repo, logger), &buf
}

func TestReadingService_GetReadings(t *testing.T) {
	repo := &repositorytest.MockRepository{}
	filter := repository.ReadingFilter{Limit: 10}
	rows := []*models.ClassifiedRecord{{ImputedRecord: models.ImputedRecord{TurbineID: "T1"}}}
	repo.On("GetReadings", mock.Anything, models.ClassAnomalous, filter).Return(rows, 4, nil)

	svc, buf := newBufferedService(repo)

	readings, total, err := svc.GetReadings(context.Background(), models.ClassAnomalous, filter)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, readings, 1)
	assert.Contains(t, buf.String(), "[READINGS_QUERY]")
	assert.Contains(t, buf.String(), "anomalous")
	repo.AssertExpectations(t)
}

func TestReadingService_GetReadings_Error(t *testing.T) {
	repo := &repositorytest.MockRepository{}
	repo.On("GetReadings", mock.Anything, models.ClassNormal, mock.Anything).Return(nil, 0, errors.New("connection reset"))

	svc, buf := newBufferedService(repo)

	readings, total, err := svc.GetReadings(context.Background(), models.ClassNormal, repository.ReadingFilter{})
	require.Error(t, err)
	assert.Nil(t, readings)
	assert.Zero(t, total)
	assert.NotContains(t, buf.String(), "[READINGS_QUERY]")
}

func TestReadingService_GetMalformed(t *testing.T) {
	repo := &repositorytest.MockRepository{}
	rows := []*models.MalformedRecord{{Reason: models.ReasonMissingTimestamp}}
	repo.On("GetMalformed", mock.Anything, mock.Anything).Return(rows, 1, nil)

	svc, buf := newBufferedService(repo)

	malformed, total, err := svc.GetMalformed(context.Background(), repository.MalformedFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, malformed, 1)
	assert.Contains(t, buf.String(), "[READINGS_MALFORMED_QUERY]")
}

func TestReadingService_HealthCheckFailureIsLogged(t *testing.T) {
	repo := &repositorytest.MockRepository{}
	repo.On("HealthCheck", mock.Anything).Return(errors.New("database unavailable")).Once()
	repo.On("HealthCheck", mock.Anything).Return(nil).Once()

	svc, buf := newBufferedService(repo)

	require.Error(t, svc.HealthCheck(context.Background()))
	assert.Contains(t, buf.String(), "[HEALTH_CHECK_FAILED]")
	assert.Contains(t, buf.String(), "database unavailable")

	buf.Reset()
	require.NoError(t, svc.HealthCheck(context.Background()))
	assert.Empty(t, buf.String())
}
