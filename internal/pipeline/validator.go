// Package pipeline implements the turbine data-quality core: partitioning raw
// readings, imputing missing power output, computing daily statistics and
// classifying readings against a deviation band.
//
// Every stage is a total function over an immutable slice. Stages never share
// mutable state and each one fully materialises its output before the next
// one starts.
package pipeline

import (
	"strings"
	"time"

	"turbine-platform/internal/models"
)

// DefaultTimestampLayouts are tried in order when parsing raw timestamps
var DefaultTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// Validator splits raw records into valid and malformed sets
type Validator struct {
	layouts []string
}

// NewValidator creates a validator; without layouts the defaults are used
func NewValidator(layouts ...string) *Validator {
	if len(layouts) == 0 {
		layouts = DefaultTimestampLayouts
	}
	return &Validator{layouts: layouts}
}

// Partition routes every raw record to exactly one of the returned sets
func (v *Validator) Partition(records []models.RawRecord) ([]models.ValidRecord, []models.MalformedRecord) {
	valid := make([]models.ValidRecord, 0, len(records))
	var malformed []models.MalformedRecord

	for _, rec := range records {
		vr, reason, ok := v.validate(rec)
		if !ok {
			malformed = append(malformed, models.MalformedRecord{RawRecord: rec, Reason: reason})
			continue
		}
		valid = append(valid, vr)
	}

	return valid, malformed
}

func (v *Validator) validate(rec models.RawRecord) (models.ValidRecord, models.MalformedReason, bool) {
	if isBlank(rec.TurbineID) {
		return models.ValidRecord{}, models.ReasonMissingTurbineID, false
	}
	if isBlank(rec.Timestamp) {
		return models.ValidRecord{}, models.ReasonMissingTimestamp, false
	}

	ts, ok := v.parseTimestamp(strings.TrimSpace(*rec.Timestamp))
	if !ok {
		return models.ValidRecord{}, models.ReasonUnparseableTimestamp, false
	}

	return models.ValidRecord{
		TurbineID:     *rec.TurbineID,
		EventDate:     models.TruncateToDate(ts),
		PowerOutput:   rec.PowerOutput,
		WindSpeed:     rec.WindSpeed,
		WindDirection: rec.WindDirection,
	}, "", true
}

func (v *Validator) parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range v.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
