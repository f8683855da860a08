package pipeline

import (
	"turbine-platform/internal/models"
)

// DailyDefaults computes the mean present power output of every turbine-day
// Groups without any present value have no entry
func DailyDefaults(records []models.ValidRecord) map[models.TurbineDay]float64 {
	type acc struct {
		sum   float64
		count int
	}

	groups := make(map[models.TurbineDay]*acc)
	for _, rec := range records {
		if rec.PowerOutput == nil {
			continue
		}
		a, ok := groups[rec.Key()]
		if !ok {
			a = &acc{}
			groups[rec.Key()] = a
		}
		a.sum += *rec.PowerOutput
		a.count++
	}

	defaults := make(map[models.TurbineDay]float64, len(groups))
	for key, a := range groups {
		defaults[key] = a.sum / float64(a.count)
	}
	return defaults
}

// Impute fills missing power output with the turbine-day default
// Output order and cardinality match the input
func Impute(records []models.ValidRecord) []models.ImputedRecord {
	defaults := DailyDefaults(records)

	imputed := make([]models.ImputedRecord, 0, len(records))
	for _, rec := range records {
		out := models.ImputedRecord{
			EventDate:     rec.EventDate,
			TurbineID:     rec.TurbineID,
			WindSpeed:     rec.WindSpeed,
			WindDirection: rec.WindDirection,
		}

		if rec.PowerOutput != nil {
			out.ImputedPowerOutput = models.Float(*rec.PowerOutput)
		} else if def, ok := defaults[rec.Key()]; ok {
			out.ImputedPowerOutput = models.Float(def)
			out.WasImputed = true
		}
		// no default: the reading stays unresolved

		imputed = append(imputed, out)
	}

	return imputed
}
