package pipeline

import (
	"math"
	"sort"

	"turbine-platform/internal/models"
)

// ComputeDailyStatistics returns one row per turbine-day present in records,
// ordered by turbine and date. Unresolved readings are counted but never
// aggregated.
func ComputeDailyStatistics(records []models.ImputedRecord) []models.DailyTurbineStats {
	values := make(map[models.TurbineDay][]float64)
	unresolved := make(map[models.TurbineDay]int)
	keys := make([]models.TurbineDay, 0)

	for _, rec := range records {
		key := rec.Key()
		if _, seen := values[key]; !seen {
			values[key] = nil
			keys = append(keys, key)
		}
		if !rec.Resolved() {
			unresolved[key]++
			continue
		}
		values[key] = append(values[key], *rec.ImputedPowerOutput)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	stats := make([]models.DailyTurbineStats, 0, len(keys))
	for _, key := range keys {
		row := summarize(values[key])
		row.TurbineID = key.TurbineID
		row.EventDate = key.EventDate
		row.UnresolvedCount = unresolved[key]
		stats = append(stats, row)
	}
	return stats
}

func summarize(vals []float64) models.DailyTurbineStats {
	row := models.DailyTurbineStats{ObservationCount: len(vals)}
	if len(vals) == 0 {
		return row
	}

	minV, maxV, sum := vals[0], vals[0], 0.0
	for _, v := range vals {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
		sum += v
	}
	mean := sum / float64(len(vals))

	row.MinPower = models.Float(minV)
	row.MaxPower = models.Float(maxV)
	row.AvgPower = models.Float(mean)
	row.StdDevPower = SampleStdDev(vals, mean)
	return row
}

// SampleStdDev returns the N-1 standard deviation of vals around mean,
// or nil when fewer than two values are given
func SampleStdDev(vals []float64, mean float64) *float64 {
	if len(vals) < 2 {
		return nil
	}
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return models.Float(math.Sqrt(ss / float64(len(vals)-1)))
}
