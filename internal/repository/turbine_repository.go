package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
	"turbine-platform/pkg/database"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

// TurbineRepository provides data access for pipeline results
type TurbineRepository interface {
	// Write operations
	SaveRun(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error
	UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error

	// Run operations
	GetRun(ctx context.Context, runID string) (*models.PipelineRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*models.PipelineRun, int, error)
	LatestRunID(ctx context.Context) (string, error)

	// Result operations
	GetDailyStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.DailyTurbineStats, int, error)
	GetTurbineDayStatistics(ctx context.Context, runID, turbineID string, date time.Time) (*models.DailyTurbineStats, error)
	GetReadings(ctx context.Context, classification models.Classification, filter ReadingFilter) ([]*models.ClassifiedRecord, int, error)
	GetMalformed(ctx context.Context, filter MalformedFilter) ([]*models.MalformedRecord, int, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// StatisticsFilter defines filters for querying daily statistics
// A nil RunID selects the most recent succeeded run
type StatisticsFilter struct {
	RunID     *string
	TurbineID *string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// ReadingFilter defines filters for querying classified readings
type ReadingFilter struct {
	RunID     *string
	TurbineID *string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// MalformedFilter defines filters for querying malformed readings
type MalformedFilter struct {
	RunID  *string
	Reason *models.MalformedReason
	Limit  int
	Offset int
}

var readingTables = map[models.Classification]string{
	models.ClassNormal:     "normal_readings",
	models.ClassAnomalous:  "anomalous_readings",
	models.ClassUnresolved: "unresolved_readings",
}

const latestRunSelect = `SELECT id FROM pipeline_runs WHERE status = 'succeeded' ORDER BY finished_at DESC LIMIT 1`

const latestRunQuery = `(` + latestRunSelect + `)`

const runColumns = `id, started_at, finished_at, source_files,
		       raw_records, duplicate_records, valid_records, malformed_records,
		       imputed_records, filled_records, unresolved_records, statistics_groups,
		       normal_records, anomalous_records, status`

const statsColumns = `turbine_id, event_date, min_power, max_power, avg_power, stddev_power,
		       observation_count, unresolved_count`

const readingColumns = `event_date, turbine_id, wind_speed, wind_direction,
		       imputed_power_output, was_imputed, avg_power, stddev_power`

// runRow maps the source_files array column
type runRow struct {
	models.PipelineRun
	SourceFiles pq.StringArray `db:"source_files"`
}

func (r runRow) toModel() *models.PipelineRun {
	run := r.PipelineRun
	run.SourceFiles = []string(r.SourceFiles)
	return &run
}

// turbineRepository implements TurbineRepository
type turbineRepository struct {
	db        *database.PostgresDB
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	batchSize int
}

// NewTurbineRepository creates a new turbine repository
// batchSize bounds the number of rows logged per insert batch
func NewTurbineRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, batchSize int) TurbineRepository {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &turbineRepository{
		db:        db,
		logger:    logger,
		metrics:   metricsCollector,
		batchSize: batchSize,
	}
}

// SaveRun writes a run and all of its result sets in a single transaction
// A run without a status is stored as pending
func (r *turbineRepository) SaveRun(ctx context.Context, run *models.PipelineRun, result *pipeline.Result) error {
	timer := time.Now()

	status := run.Status
	if status == "" {
		status = models.RunPending
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_runs (
			id, started_at, finished_at, source_files,
			raw_records, duplicate_records, valid_records, malformed_records,
			imputed_records, filled_records, unresolved_records, statistics_groups,
			normal_records, anomalous_records, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		pq.Array(run.SourceFiles),
		run.RawRecords,
		run.DuplicateRecords,
		run.ValidRecords,
		run.MalformedRecords,
		run.ImputedRecords,
		run.FilledRecords,
		run.UnresolvedRecords,
		run.StatisticsGroups,
		run.NormalRecords,
		run.AnomalousRecords,
		string(status),
	)
	if err != nil {
		r.metrics.RecordDBError("insert_run_error")
		return fmt.Errorf("failed to insert pipeline run: %w", err)
	}

	err = r.insertRows(ctx, tx, "malformed_readings", `
		INSERT INTO malformed_readings (
			run_id, turbine_id, raw_timestamp, power_output, wind_speed, wind_direction, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, len(result.Malformed), func(i int) []interface{} {
		m := result.Malformed[i]
		return []interface{}{run.ID, m.TurbineID, m.Timestamp, m.PowerOutput, m.WindSpeed, m.WindDirection, string(m.Reason)}
	})
	if err != nil {
		return err
	}

	err = r.insertRows(ctx, tx, "imputed_readings", `
		INSERT INTO imputed_readings (
			run_id, event_date, turbine_id, wind_speed, wind_direction, imputed_power_output, was_imputed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, len(result.Imputed), func(i int) []interface{} {
		rec := result.Imputed[i]
		return []interface{}{run.ID, rec.EventDate, rec.TurbineID, rec.WindSpeed, rec.WindDirection, rec.ImputedPowerOutput, rec.WasImputed}
	})
	if err != nil {
		return err
	}

	err = r.insertRows(ctx, tx, "daily_turbine_stats", `
		INSERT INTO daily_turbine_stats (
			run_id, turbine_id, event_date, min_power, max_power, avg_power, stddev_power,
			observation_count, unresolved_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, len(result.Statistics), func(i int) []interface{} {
		s := result.Statistics[i]
		return []interface{}{run.ID, s.TurbineID, s.EventDate, s.MinPower, s.MaxPower, s.AvgPower, s.StdDevPower, s.ObservationCount, s.UnresolvedCount}
	})
	if err != nil {
		return err
	}

	classified := []struct {
		class models.Classification
		rows  []models.ClassifiedRecord
	}{
		{models.ClassNormal, result.Normal},
		{models.ClassAnomalous, result.Anomalous},
		{models.ClassUnresolved, result.Unresolved},
	}
	for _, c := range classified {
		rows := c.rows
		table := readingTables[c.class]
		err = r.insertRows(ctx, tx, table, fmt.Sprintf(`
		INSERT INTO %s (
			run_id, event_date, turbine_id, wind_speed, wind_direction,
			imputed_power_output, was_imputed, avg_power, stddev_power
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, table), len(rows), func(i int) []interface{} {
			rec := rows[i]
			return []interface{}{run.ID, rec.EventDate, rec.TurbineID, rec.WindSpeed, rec.WindDirection,
				rec.ImputedPowerOutput, rec.WasImputed, rec.AvgPower, rec.StdDevPower}
		})
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("transaction_commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info(ctx, "[REPO_SAVE_RUN] Pipeline run persisted", logging.Fields{
		"run_id":      run.ID,
		"statistics":  len(result.Statistics),
		"imputed":     len(result.Imputed),
		"malformed":   len(result.Malformed),
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return nil
}

// UpdateRunStatus records the final status of a saved run
func (r *turbineRepository) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error {
	res, err := r.db.ExecContext(ctx, "update_run_status",
		"UPDATE pipeline_runs SET status = $1 WHERE id = $2", string(status), runID)
	if err != nil {
		return fmt.Errorf("failed to update pipeline run status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update pipeline run status: %w", err)
	}
	if affected == 0 {
		return &NotFoundError{
			Resource: "pipeline_run",
			ID:       runID,
		}
	}

	r.logger.Info(ctx, "[REPO_RUN_STATUS] Pipeline run status recorded", logging.Fields{
		"run_id": runID,
		"status": string(status),
	})

	return nil
}

// insertRows executes one prepared statement per row of a result set
func (r *turbineRepository) insertRows(ctx context.Context, tx *sqlx.Tx, table, query string, n int, args func(i int) []interface{}) error {
	if n == 0 {
		return nil
	}

	timer := r.metrics.NewTimer(r.metrics.DBQueryDuration.WithLabelValues("insert_" + table))
	defer timer.ObserveDuration()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		r.metrics.RecordDBError("prepare_error")
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			r.metrics.RecordDBError("insert_error")
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		if (i+1)%r.batchSize == 0 || i == n-1 {
			batch := (i % r.batchSize) + 1
			r.metrics.IngestionBatchSize.Observe(float64(batch))
			r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
				"table":   table,
				"count":   batch,
				"written": i + 1,
				"total":   n,
			})
		}
	}

	return nil
}

// GetRun retrieves a pipeline run by ID
func (r *turbineRepository) GetRun(ctx context.Context, runID string) (*models.PipelineRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE id = $1
	`

	var row runRow
	err := r.db.GetContext(ctx, "get_run", &row, query, runID)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "pipeline_run",
			ID:       runID,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}

	return row.toModel(), nil
}

// ListRuns retrieves pipeline runs, most recent first
func (r *turbineRepository) ListRuns(ctx context.Context, limit, offset int) ([]*models.PipelineRun, int, error) {
	var totalCount int
	err := r.db.GetContext(ctx, "count_runs", &totalCount, "SELECT COUNT(*) FROM pipeline_runs")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count pipeline runs: %w", err)
	}

	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		ORDER BY finished_at DESC
		LIMIT $1 OFFSET $2
	`

	var rows []runRow
	if err := r.db.SelectContext(ctx, "list_runs", &rows, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list pipeline runs: %w", err)
	}

	runs := make([]*models.PipelineRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toModel())
	}

	return runs, totalCount, nil
}

// LatestRunID returns the ID of the most recent succeeded run
func (r *turbineRepository) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := r.db.GetContext(ctx, "latest_run", &runID, latestRunSelect)

	if err == sql.ErrNoRows {
		return "", &NotFoundError{
			Resource: "pipeline_run",
			ID:       "latest",
		}
	}

	if err != nil {
		return "", fmt.Errorf("failed to get latest pipeline run: %w", err)
	}

	return runID, nil
}

// GetDailyStatistics retrieves daily statistics with filtering and pagination
func (r *turbineRepository) GetDailyStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.DailyTurbineStats, int, error) {
	query := `
		SELECT ` + statsColumns + `
		FROM daily_turbine_stats
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	query, args, argNum = whereRun(query, args, argNum, filter.RunID)

	if filter.TurbineID != nil {
		query += fmt.Sprintf(" AND turbine_id = $%d", argNum)
		args = append(args, *filter.TurbineID)
		argNum++
	}

	query, args, argNum = whereDates(query, args, argNum, filter.StartDate, filter.EndDate)

	// Get total count
	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_statistics", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count statistics: %w", err)
	}

	// Add ordering and pagination
	query += " ORDER BY turbine_id, event_date"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var statistics []*models.DailyTurbineStats
	err = r.db.SelectContext(ctx, "get_statistics", &statistics, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get statistics: %w", err)
	}

	return statistics, totalCount, nil
}

// GetTurbineDayStatistics retrieves one turbine-day row of a run
func (r *turbineRepository) GetTurbineDayStatistics(ctx context.Context, runID, turbineID string, date time.Time) (*models.DailyTurbineStats, error) {
	query := `
		SELECT ` + statsColumns + `
		FROM daily_turbine_stats
		WHERE run_id = $1 AND turbine_id = $2 AND event_date = $3
	`

	var stats models.DailyTurbineStats
	err := r.db.GetContext(ctx, "get_turbine_day_statistics", &stats, query, runID, turbineID, date)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "daily_turbine_stats",
			ID:       models.TurbineDay{TurbineID: turbineID, EventDate: date}.String(),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get turbine-day statistics: %w", err)
	}

	return &stats, nil
}

// GetReadings retrieves classified readings of one classification
func (r *turbineRepository) GetReadings(ctx context.Context, classification models.Classification, filter ReadingFilter) ([]*models.ClassifiedRecord, int, error) {
	table, ok := readingTables[classification]
	if !ok {
		return nil, 0, fmt.Errorf("unknown classification: %q", classification)
	}

	query := `
		SELECT ` + readingColumns + `
		FROM ` + table + `
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	query, args, argNum = whereRun(query, args, argNum, filter.RunID)

	if filter.TurbineID != nil {
		query += fmt.Sprintf(" AND turbine_id = $%d", argNum)
		args = append(args, *filter.TurbineID)
		argNum++
	}

	query, args, argNum = whereDates(query, args, argNum, filter.StartDate, filter.EndDate)

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_"+table, &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count %s readings: %w", classification, err)
	}

	query += " ORDER BY turbine_id, event_date, id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var readings []*models.ClassifiedRecord
	err = r.db.SelectContext(ctx, "get_"+table, &readings, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get %s readings: %w", classification, err)
	}

	return readings, totalCount, nil
}

// GetMalformed retrieves raw rows held back for reprocessing
func (r *turbineRepository) GetMalformed(ctx context.Context, filter MalformedFilter) ([]*models.MalformedRecord, int, error) {
	query := `
		SELECT turbine_id, raw_timestamp, power_output, wind_speed, wind_direction, reason
		FROM malformed_readings
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	query, args, argNum = whereRun(query, args, argNum, filter.RunID)

	if filter.Reason != nil {
		query += fmt.Sprintf(" AND reason = $%d", argNum)
		args = append(args, string(*filter.Reason))
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_malformed", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count malformed readings: %w", err)
	}

	query += " ORDER BY id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var malformed []*models.MalformedRecord
	err = r.db.SelectContext(ctx, "get_malformed", &malformed, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get malformed readings: %w", err)
	}

	return malformed, totalCount, nil
}

// HealthCheck performs a repository health check
func (r *turbineRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func whereRun(query string, args []interface{}, argNum int, runID *string) (string, []interface{}, int) {
	if runID == nil {
		return query + " AND run_id = " + latestRunQuery, args, argNum
	}
	query += fmt.Sprintf(" AND run_id = $%d", argNum)
	return query, append(args, *runID), argNum + 1
}

func whereDates(query string, args []interface{}, argNum int, start, end *time.Time) (string, []interface{}, int) {
	if start != nil {
		query += fmt.Sprintf(" AND event_date >= $%d", argNum)
		args = append(args, *start)
		argNum++
	}
	if end != nil {
		query += fmt.Sprintf(" AND event_date <= $%d", argNum)
		args = append(args, *end)
		argNum++
	}
	return query, args, argNum
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
