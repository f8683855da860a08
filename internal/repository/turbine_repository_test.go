package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
	"turbine-platform/pkg/database"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

func newTestRepository(t *testing.T) (TurbineRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logging.NewStructuredLogger("repository-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())

	pg := database.NewFromDB(sqlx.NewDb(db, "postgres"), nil, logger, collector)
	return NewTurbineRepository(pg, logger, collector, 2), mock
}

var day = time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func sampleRun() (*models.PipelineRun, *pipeline.Result) {
	run := &models.PipelineRun{
		ID:          "6f1c1f43-8a43-4a3b-9d77-0d1c2a0b7c11",
		StartedAt:   day,
		FinishedAt:  day.Add(time.Minute),
		SourceFiles: []string{"data_group_1.csv"},
		RawRecords:  4,
	}
	imputed := []models.ImputedRecord{
		{EventDate: day, TurbineID: "T1", ImputedPowerOutput: models.Float(10)},
		{EventDate: day, TurbineID: "T1", ImputedPowerOutput: models.Float(20), WasImputed: true},
	}
	result := &pipeline.Result{
		Malformed: []models.MalformedRecord{
			{RawRecord: models.RawRecord{Timestamp: models.String("2022-03-01 00:00:00")}, Reason: models.ReasonMissingTurbineID},
		},
		Imputed: imputed,
		Statistics: []models.DailyTurbineStats{
			{TurbineID: "T1", EventDate: day, MinPower: models.Float(10), MaxPower: models.Float(20),
				AvgPower: models.Float(15), StdDevPower: models.Float(7.07), ObservationCount: 2},
		},
		Normal: []models.ClassifiedRecord{
			{ImputedRecord: imputed[0], AvgPower: models.Float(15), StdDevPower: models.Float(7.07)},
			{ImputedRecord: imputed[1], AvgPower: models.Float(15), StdDevPower: models.Float(7.07)},
		},
	}
	return run, result
}

func TestSaveRun_WritesEveryResultSetInOneTransaction(t *testing.T) {
	repo, mock := newTestRepository(t)
	run, result := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pipeline_runs").
		WithArgs(anyArgs(15)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	malformed := mock.ExpectPrepare("INSERT INTO malformed_readings")
	malformed.ExpectExec().
		WithArgs(run.ID, nil, "2022-03-01 00:00:00", nil, nil, nil, "missing_turbine_id").
		WillReturnResult(sqlmock.NewResult(1, 1))

	imputed := mock.ExpectPrepare("INSERT INTO imputed_readings")
	imputed.ExpectExec().WithArgs(run.ID, day, "T1", nil, nil, 10.0, false).WillReturnResult(sqlmock.NewResult(1, 1))
	imputed.ExpectExec().WithArgs(run.ID, day, "T1", nil, nil, 20.0, true).WillReturnResult(sqlmock.NewResult(2, 1))

	stats := mock.ExpectPrepare("INSERT INTO daily_turbine_stats")
	stats.ExpectExec().WithArgs(anyArgs(9)...).WillReturnResult(sqlmock.NewResult(0, 1))

	normal := mock.ExpectPrepare("INSERT INTO normal_readings")
	normal.ExpectExec().WithArgs(anyArgs(9)...).WillReturnResult(sqlmock.NewResult(1, 1))
	normal.ExpectExec().WithArgs(anyArgs(9)...).WillReturnResult(sqlmock.NewResult(2, 1))

	mock.ExpectCommit()

	require.NoError(t, repo.SaveRun(context.Background(), run, result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_RollsBackOnFailure(t *testing.T) {
	repo, mock := newTestRepository(t)
	run, result := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pipeline_runs").
		WithArgs(anyArgs(15)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare("INSERT INTO malformed_readings").
		ExpectExec().
		WithArgs(anyArgs(7)...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.SaveRun(context.Background(), run, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed_readings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_StoresStatus(t *testing.T) {
	repo, mock := newTestRepository(t)
	run, _ := sampleRun()

	args := anyArgs(15)
	args[14] = "pending"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pipeline_runs").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveRun(context.Background(), run, &pipeline.Result{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunStatus(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET status = \$1 WHERE id = \$2`).
		WithArgs("succeeded", "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateRunStatus(context.Background(), "run-1", models.RunSucceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunStatus_NotFound(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectExec("UPDATE pipeline_runs").
		WithArgs("failed", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateRunStatus(context.Background(), "missing", models.RunFailed)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ID)
}

func TestLatestRunID_OnlySucceededRuns(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`FROM pipeline_runs WHERE status = 'succeeded' ORDER BY finished_at DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-2"))

	runID, err := repo.LatestRunID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-2", runID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRunID_NoSucceededRun(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery("FROM pipeline_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.LatestRunID(context.Background())

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "latest", notFound.ID)
}

func TestGetTurbineDayStatistics_ScopedToRun(t *testing.T) {
	repo, mock := newTestRepository(t)

	cols := []string{"turbine_id", "event_date", "min_power", "max_power", "avg_power", "stddev_power",
		"observation_count", "unresolved_count"}
	mock.ExpectQuery(`FROM daily_turbine_stats\s+WHERE run_id = \$1 AND turbine_id = \$2 AND event_date = \$3`).
		WithArgs("run-2", "T1", day).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("T1", day, 10.0, 20.0, 15.0, 7.07, 2, 0))

	stats, err := repo.GetTurbineDayStatistics(context.Background(), "run-2", "T1", day)
	require.NoError(t, err)
	assert.Equal(t, 7.07, *stats.StdDevPower)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTurbineDayStatistics_NotFound(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery("FROM daily_turbine_stats").
		WithArgs("run-2", "T9", day).
		WillReturnRows(sqlmock.NewRows([]string{"turbine_id"}))

	_, err := repo.GetTurbineDayStatistics(context.Background(), "run-2", "T9", day)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "T9@2022-03-01", notFound.ID)
}

func TestGetRun(t *testing.T) {
	repo, mock := newTestRepository(t)

	cols := []string{"id", "started_at", "finished_at", "source_files",
		"raw_records", "duplicate_records", "valid_records", "malformed_records",
		"imputed_records", "filled_records", "unresolved_records", "statistics_groups",
		"normal_records", "anomalous_records", "status"}

	mock.ExpectQuery("FROM pipeline_runs").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("run-1", day, day, "{data_group_1.csv,data_group_2.csv}", 10, 1, 8, 1, 8, 2, 0, 3, 7, 1, "failed"))

	run, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, []string{"data_group_1.csv", "data_group_2.csv"}, run.SourceFiles)
	assert.Equal(t, 7, run.NormalRecords)
	assert.Equal(t, 1, run.AnomalousRecords)
	assert.Equal(t, models.RunFailed, run.Status)
}

func TestGetRun_NotFound(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery("FROM pipeline_runs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetRun(context.Background(), "missing")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "pipeline_run", notFound.Resource)
	assert.False(t, notFound.IsTransient())
}

func TestGetDailyStatistics_DefaultsToLatestRun(t *testing.T) {
	repo, mock := newTestRepository(t)
	turbine := "T1"

	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\) FROM \(.*WHERE status = 'succeeded' ORDER BY finished_at DESC LIMIT 1\)`).
		WithArgs("T1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{"turbine_id", "event_date", "min_power", "max_power", "avg_power", "stddev_power",
		"observation_count", "unresolved_count"}
	mock.ExpectQuery("FROM daily_turbine_stats").
		WithArgs("T1", 10, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("T1", day, 10.0, 20.0, 15.0, nil, 1, 0))

	stats, total, err := repo.GetDailyStatistics(context.Background(), StatisticsFilter{
		TurbineID: &turbine,
		Limit:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, stats, 1)
	assert.Equal(t, 15.0, *stats[0].AvgPower)
	assert.Nil(t, stats[0].StdDevPower)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReadings(t *testing.T) {
	repo, mock := newTestRepository(t)
	runID := "run-1"
	start := day

	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\) FROM \(.*FROM anomalous_readings`).
		WithArgs("run-1", start).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{"event_date", "turbine_id", "wind_speed", "wind_direction",
		"imputed_power_output", "was_imputed", "avg_power", "stddev_power"}
	mock.ExpectQuery("FROM anomalous_readings").
		WithArgs("run-1", start, 50, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(day, "T1", 11.5, 270.0, 500.0, false, 32.86, 107.19))

	readings, total, err := repo.GetReadings(context.Background(), models.ClassAnomalous, ReadingFilter{
		RunID:     &runID,
		StartDate: &start,
		Limit:     50,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, readings, 1)
	assert.Equal(t, 500.0, *readings[0].ImputedPowerOutput)
	assert.Equal(t, 107.19, *readings[0].StdDevPower)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReadings_UnknownClassification(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, _, err := repo.GetReadings(context.Background(), models.Classification("suspicious"), ReadingFilter{Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown classification")
}

func TestGetMalformed_FiltersByReason(t *testing.T) {
	repo, mock := newTestRepository(t)
	reason := models.ReasonMissingTimestamp

	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\) FROM \(.*FROM malformed_readings`).
		WithArgs("missing_timestamp").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{"turbine_id", "raw_timestamp", "power_output", "wind_speed", "wind_direction", "reason"}
	mock.ExpectQuery("FROM malformed_readings").
		WithArgs("missing_timestamp", 20, 0).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("T9", nil, 1.5, nil, nil, "missing_timestamp"))

	malformed, total, err := repo.GetMalformed(context.Background(), MalformedFilter{Reason: &reason, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, malformed, 1)
	assert.Equal(t, "T9", *malformed[0].TurbineID)
	assert.Nil(t, malformed[0].Timestamp)
	assert.Equal(t, models.ReasonMissingTimestamp, malformed[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}
