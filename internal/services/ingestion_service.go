package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"turbine-platform/internal/models"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

// Column names of a turbine data file
const (
	ColumnTurbineID     = "turbine_id"
	ColumnTimestamp     = "timestamp"
	ColumnPowerOutput   = "power_output"
	ColumnWindSpeed     = "wind_speed"
	ColumnWindDirection = "wind_direction"
)

// RequiredColumns lists the header every data file must carry
var RequiredColumns = []string{ColumnTurbineID, ColumnTimestamp, ColumnPowerOutput, ColumnWindSpeed, ColumnWindDirection}

// NaNMarkers are numeric cell values read as missing
var NaNMarkers = []string{"NA", "NaN", "<nil>", "null", "NULL"}

// IngestionService reads turbine data files into raw records
type IngestionService struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	Files            []string
	Records          []models.RawRecord
	TotalRecords     int
	DuplicateRecords int
	Duration         time.Duration
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestDirectory ingests every file in dataDir matching pattern
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir, pattern string) (*IngestionResult, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no data files matching %q found in %s", pattern, dataDir)
	}

	sort.Strings(files)

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"data_dir":   dataDir,
		"pattern":    pattern,
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	return s.IngestFiles(ctx, files)
}

// IngestFiles reads all files, unions their rows and removes exact duplicates
// Any unreadable file or schema mismatch aborts the whole ingestion
func (s *IngestionService) IngestFiles(ctx context.Context, files []string) (*IngestionResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"file_count": len(files),
		"stage":      "INITIALIZATION",
	})

	result := &IngestionResult{Files: files}
	var union []models.RawRecord

	for _, filePath := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := s.ingestFile(filePath)
		if err != nil {
			s.metrics.RecordIngestionError("file_error")
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			return nil, fmt.Errorf("failed to ingest %s: %w", filePath, err)
		}

		union = append(union, records...)

		s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested successfully", logging.Fields{
			"file_path":     filePath,
			"total_records": len(records),
			"stage":         "FILE_COMPLETE",
		})
	}

	result.TotalRecords = len(union)
	result.Records, result.DuplicateRecords = Deduplicate(union)
	result.Duration = time.Since(startTime)

	s.metrics.IngestionRecordsTotal.Add(float64(result.TotalRecords))
	s.metrics.IngestionDuplicates.Add(float64(result.DuplicateRecords))
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":       len(files),
		"total_records":     result.TotalRecords,
		"duplicate_records": result.DuplicateRecords,
		"distinct_records":  len(result.Records),
		"duration_seconds":  result.Duration.Seconds(),
		"stage":             "COMPLETE",
	})

	return result, nil
}

func (s *IngestionService) ingestFile(filePath string) ([]models.RawRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ReadRecords(file)
}

// ReadRecords parses one delimited turbine data file
// The header is always checked; a header without data rows yields no records
// Blank or NaN-marked numeric cells become nil; other unparseable cells are a schema mismatch
func ReadRecords(r io.Reader) ([]models.RawRecord, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	if len(rows) == 0 {
		return nil, &models.ValidationError{
			Field:   "header",
			Message: "file is empty: missing header row",
		}
	}

	columns, err := resolveColumns(rows[0])
	if err != nil {
		return nil, err
	}

	if len(rows) == 1 {
		return nil, nil
	}

	// Markers are matched per numeric cell so identity columns keep their text
	df := dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{}),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", df.Err)
	}

	cols := make(map[string]series.Series, len(columns))
	for name, actual := range columns {
		col := df.Col(actual)
		if col.Err != nil {
			return nil, fmt.Errorf("failed to read column %s: %w", actual, col.Err)
		}
		cols[name] = col
	}

	n := df.Nrow()
	records := make([]models.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := models.RawRecord{
			TurbineID: stringCell(cols[ColumnTurbineID].Elem(i)),
			Timestamp: stringCell(cols[ColumnTimestamp].Elem(i)),
		}

		// Data rows start on line 2
		line := i + 2
		if rec.PowerOutput, err = floatCell(cols[ColumnPowerOutput].Elem(i), ColumnPowerOutput, line); err != nil {
			return nil, err
		}
		if rec.WindSpeed, err = floatCell(cols[ColumnWindSpeed].Elem(i), ColumnWindSpeed, line); err != nil {
			return nil, err
		}
		if rec.WindDirection, err = floatCell(cols[ColumnWindDirection].Elem(i), ColumnWindDirection, line); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, nil
}

// resolveColumns maps required column names to the header as written
func resolveColumns(names []string) (map[string]string, error) {
	byName := make(map[string]string, len(names))
	for _, name := range names {
		byName[strings.ToLower(strings.TrimSpace(name))] = name
	}

	columns := make(map[string]string, len(RequiredColumns))
	var missing []string
	for _, required := range RequiredColumns {
		actual, ok := byName[required]
		if !ok {
			missing = append(missing, required)
			continue
		}
		columns[required] = actual
	}

	if len(missing) > 0 {
		return nil, &models.ValidationError{
			Field:   "header",
			Value:   strings.Join(names, ","),
			Message: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}

	return columns, nil
}

// stringCell returns the cell as written; gota reports a literal NaN as NA
func stringCell(e series.Element) *string {
	s := e.String()
	return &s
}

func floatCell(e series.Element, field string, line int) (*float64, error) {
	raw := strings.TrimSpace(e.String())
	if raw == "" || isNaNMarker(raw) {
		return nil, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &models.ValidationError{
			Field:   field,
			Value:   raw,
			Message: fmt.Sprintf("line %d: %s is not numeric: %q", line, field, raw),
		}
	}

	return &v, nil
}

func isNaNMarker(s string) bool {
	for _, m := range NaNMarkers {
		if s == m {
			return true
		}
	}
	return false
}

// Deduplicate removes exact duplicate rows, keeping first occurrences in order
func Deduplicate(records []models.RawRecord) ([]models.RawRecord, int) {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.RawRecord, 0, len(records))

	for _, rec := range records {
		key := rec.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}

	return out, len(records) - len(out)
}
