package pipeline

import (
	"fmt"

	"turbine-platform/internal/models"
)

// DefaultDeviationSigma is the half-width of the deviation band in standard deviations
const DefaultDeviationSigma = 2.0

// UndefinedStdDevPolicy decides readings of turbine-days without a sample deviation
type UndefinedStdDevPolicy string

const (
	// PolicyNormal treats every reading of such a day as normal
	PolicyNormal UndefinedStdDevPolicy = "normal"
	// PolicyExact collapses the band to avg_power
	PolicyExact UndefinedStdDevPolicy = "exact"
)

// ParseUndefinedStdDevPolicy validates a policy name
func ParseUndefinedStdDevPolicy(s string) (UndefinedStdDevPolicy, error) {
	switch p := UndefinedStdDevPolicy(s); p {
	case PolicyNormal, PolicyExact:
		return p, nil
	}
	return "", fmt.Errorf("unknown undefined-stddev policy %q, expected %q or %q", s, PolicyNormal, PolicyExact)
}

// Classification holds the disjoint partitions of the joined readings
type Classification struct {
	Normal     []models.ClassifiedRecord
	Anomalous  []models.ClassifiedRecord
	Unresolved []models.ClassifiedRecord
	// Unmatched counts readings dropped by the inner join
	Unmatched int
}

// Total returns the number of classified rows
func (c *Classification) Total() int {
	return len(c.Normal) + len(c.Anomalous) + len(c.Unresolved)
}

// Classifier labels readings against their turbine-day deviation band
type Classifier struct {
	sigma  float64
	policy UndefinedStdDevPolicy
}

// NewClassifier creates a classifier; a non-positive sigma selects the default
func NewClassifier(sigma float64, policy UndefinedStdDevPolicy) *Classifier {
	if sigma <= 0 {
		sigma = DefaultDeviationSigma
	}
	if policy == "" {
		policy = PolicyNormal
	}
	return &Classifier{sigma: sigma, policy: policy}
}

// Classify joins records with stats on turbine-day and partitions the result
func (c *Classifier) Classify(records []models.ImputedRecord, stats []models.DailyTurbineStats) *Classification {
	byKey := make(map[models.TurbineDay]models.DailyTurbineStats, len(stats))
	for _, s := range stats {
		byKey[s.Key()] = s
	}

	out := &Classification{}
	for _, rec := range records {
		s, ok := byKey[rec.Key()]
		if !ok {
			out.Unmatched++
			continue
		}

		row := models.ClassifiedRecord{
			ImputedRecord: rec,
			AvgPower:      s.AvgPower,
			StdDevPower:   s.StdDevPower,
		}

		switch c.Label(row) {
		case models.ClassNormal:
			out.Normal = append(out.Normal, row)
		case models.ClassAnomalous:
			out.Anomalous = append(out.Anomalous, row)
		default:
			out.Unresolved = append(out.Unresolved, row)
		}
	}
	return out
}

// Label derives the classification of a joined row
func (c *Classifier) Label(row models.ClassifiedRecord) models.Classification {
	if row.ImputedPowerOutput == nil || row.AvgPower == nil {
		return models.ClassUnresolved
	}

	v, avg := *row.ImputedPowerOutput, *row.AvgPower

	if row.StdDevPower == nil {
		if c.policy == PolicyExact && v != avg {
			return models.ClassAnomalous
		}
		return models.ClassNormal
	}

	lo, hi := Band(avg, *row.StdDevPower, c.sigma)
	if v >= lo && v <= hi {
		return models.ClassNormal
	}
	return models.ClassAnomalous
}

// Band returns the closed interval [avg - sigma*sd, avg + sigma*sd]
func Band(avg, sd, sigma float64) (float64, float64) {
	return avg - sigma*sd, avg + sigma*sd
}
