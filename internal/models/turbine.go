package models

import (
	"strconv"
	"strings"
	"time"
)

// EventDateLayout is the canonical text form of an event date
const EventDateLayout = "2006-01-02"

// RawRecord represents a single row read from a turbine data file
// Every field may be missing; NULL cells are nil pointers
type RawRecord struct {
	TurbineID     *string  `json:"turbine_id" db:"turbine_id"`
	Timestamp     *string  `json:"timestamp" db:"raw_timestamp"`
	PowerOutput   *float64 `json:"power_output" db:"power_output"`
	WindSpeed     *float64 `json:"wind_speed" db:"wind_speed"`
	WindDirection *float64 `json:"wind_direction" db:"wind_direction"`
}

// DedupKey returns a key identifying the full row value
// Two records with equal keys are exact duplicates
func (r RawRecord) DedupKey() string {
	var b strings.Builder
	writeString(&b, r.TurbineID)
	writeString(&b, r.Timestamp)
	writeFloat(&b, r.PowerOutput)
	writeFloat(&b, r.WindSpeed)
	writeFloat(&b, r.WindDirection)
	return b.String()
}

// MalformedReason explains why a raw record was routed away from the pipeline
type MalformedReason string

const (
	ReasonMissingTurbineID     MalformedReason = "missing_turbine_id"
	ReasonMissingTimestamp     MalformedReason = "missing_timestamp"
	ReasonUnparseableTimestamp MalformedReason = "unparseable_timestamp"
)

// MalformedRecord is a raw record held back for upstream reprocessing
// The embedded raw values are never repaired
type MalformedRecord struct {
	RawRecord
	Reason MalformedReason `json:"reason" db:"reason"`
}

// ValidRecord is a raw record with both identity fields present
type ValidRecord struct {
	TurbineID     string    `json:"turbine_id"`
	EventDate     time.Time `json:"event_date"`
	PowerOutput   *float64  `json:"power_output,omitempty"`
	WindSpeed     *float64  `json:"wind_speed,omitempty"`
	WindDirection *float64  `json:"wind_direction,omitempty"`
}

// Key returns the turbine-day group of the record
func (v ValidRecord) Key() TurbineDay {
	return TurbineDay{TurbineID: v.TurbineID, EventDate: v.EventDate}
}

// ImputedRecord is a valid record whose power output has been repaired
// ImputedPowerOutput is nil only when the whole turbine-day had no reading
type ImputedRecord struct {
	EventDate          time.Time `json:"event_date" db:"event_date"`
	TurbineID          string    `json:"turbine_id" db:"turbine_id"`
	WindSpeed          *float64  `json:"wind_speed" db:"wind_speed"`
	WindDirection      *float64  `json:"wind_direction" db:"wind_direction"`
	ImputedPowerOutput *float64  `json:"imputed_power_output" db:"imputed_power_output"`
	WasImputed         bool      `json:"was_imputed" db:"was_imputed"`
}

// Key returns the turbine-day group of the record
func (r ImputedRecord) Key() TurbineDay {
	return TurbineDay{TurbineID: r.TurbineID, EventDate: r.EventDate}
}

// Resolved reports whether the record carries a power value
func (r ImputedRecord) Resolved() bool {
	return r.ImputedPowerOutput != nil
}

// DailyTurbineStats holds the power statistics of one turbine-day
// StdDevPower is nil when fewer than two resolved readings exist
type DailyTurbineStats struct {
	TurbineID        string    `json:"turbine_id" db:"turbine_id"`
	EventDate        time.Time `json:"event_date" db:"event_date"`
	MinPower         *float64  `json:"min_power" db:"min_power"`
	MaxPower         *float64  `json:"max_power" db:"max_power"`
	AvgPower         *float64  `json:"avg_power" db:"avg_power"`
	StdDevPower      *float64  `json:"stddev_power" db:"stddev_power"`
	ObservationCount int       `json:"observation_count" db:"observation_count"`
	UnresolvedCount  int       `json:"unresolved_count" db:"unresolved_count"`
}

// Key returns the turbine-day group of the statistics row
func (s DailyTurbineStats) Key() TurbineDay {
	return TurbineDay{TurbineID: s.TurbineID, EventDate: s.EventDate}
}

// ClassifiedRecord is an imputed reading joined with its daily statistics
type ClassifiedRecord struct {
	ImputedRecord
	AvgPower    *float64 `json:"avg_power" db:"avg_power"`
	StdDevPower *float64 `json:"stddev_power" db:"stddev_power"`
}

// Classification labels a classified record
type Classification string

const (
	ClassNormal     Classification = "normal"
	ClassAnomalous  Classification = "anomalous"
	ClassUnresolved Classification = "unresolved"
)

// Valid reports whether c is a known classification
func (c Classification) Valid() bool {
	switch c {
	case ClassNormal, ClassAnomalous, ClassUnresolved:
		return true
	}
	return false
}

// TurbineDay is the grouping key shared by every aggregation and join
type TurbineDay struct {
	TurbineID string
	EventDate time.Time
}

// String returns "turbine_id@YYYY-MM-DD"
func (k TurbineDay) String() string {
	return k.TurbineID + "@" + k.EventDate.Format(EventDateLayout)
}

// Less orders keys by turbine then date
func (k TurbineDay) Less(o TurbineDay) bool {
	if k.TurbineID != o.TurbineID {
		return k.TurbineID < o.TurbineID
	}
	return k.EventDate.Before(o.EventDate)
}

// TruncateToDate returns the wall-clock calendar date of t at midnight UTC
func TruncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to s
func String(s string) *string {
	return &s
}

// RunStatus tracks whether every sink accepted a run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// PipelineRun describes one batch execution and its stage counts
// Only succeeded runs are served as the latest run
type PipelineRun struct {
	ID                string    `json:"id" db:"id"`
	StartedAt         time.Time `json:"started_at" db:"started_at"`
	FinishedAt        time.Time `json:"finished_at" db:"finished_at"`
	SourceFiles       []string  `json:"source_files" db:"-"`
	RawRecords        int       `json:"raw_records" db:"raw_records"`
	DuplicateRecords  int       `json:"duplicate_records" db:"duplicate_records"`
	ValidRecords      int       `json:"valid_records" db:"valid_records"`
	MalformedRecords  int       `json:"malformed_records" db:"malformed_records"`
	ImputedRecords    int       `json:"imputed_records" db:"imputed_records"`
	FilledRecords     int       `json:"filled_records" db:"filled_records"`
	UnresolvedRecords int       `json:"unresolved_records" db:"unresolved_records"`
	StatisticsGroups  int       `json:"statistics_groups" db:"statistics_groups"`
	NormalRecords     int       `json:"normal_records" db:"normal_records"`
	AnomalousRecords  int       `json:"anomalous_records" db:"anomalous_records"`
	Status            RunStatus `json:"status" db:"status"`
}

// ValidationError represents a structural problem with input data
// Such errors abort a run; data-level gaps are never reported this way
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

func writeString(b *strings.Builder, s *string) {
	if s == nil {
		b.WriteString("\x00N")
	} else {
		b.WriteString("\x00S")
		b.WriteString(*s)
	}
}

func writeFloat(b *strings.Builder, f *float64) {
	if f == nil {
		b.WriteString("\x00N")
		return
	}
	b.WriteString("\x00F")
	b.WriteString(strconv.FormatFloat(*f, 'g', -1, 64))
}
