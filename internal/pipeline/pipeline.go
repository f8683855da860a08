package pipeline

import (
	"context"
	"fmt"

	"turbine-platform/internal/models"
)

// Options configures a core run
type Options struct {
	TimestampLayouts      []string
	DeviationSigma        float64
	UndefinedStdDevPolicy UndefinedStdDevPolicy
}

// Result carries every result set of a run
type Result struct {
	Malformed  []models.MalformedRecord
	Imputed    []models.ImputedRecord
	Statistics []models.DailyTurbineStats
	Normal     []models.ClassifiedRecord
	Anomalous  []models.ClassifiedRecord
	Unresolved []models.ClassifiedRecord

	ValidCount int
	Unmatched  int
}

// FilledCount returns how many readings received a daily default
func (r *Result) FilledCount() int {
	n := 0
	for _, rec := range r.Imputed {
		if rec.WasImputed {
			n++
		}
	}
	return n
}

// Stage names, in execution order
const (
	StageValidate = "validate"
	StageImpute   = "impute"
	StageStats    = "statistics"
	StageClassify = "classify"
)

// StageHook observes the end of each stage
type StageHook func(stage string, in, out int)

// Run executes all four stages over raw. ctx is checked between stages only.
func Run(ctx context.Context, raw []models.RawRecord, opts Options, hook StageHook) (*Result, error) {
	if hook == nil {
		hook = func(string, int, int) {}
	}
	res := &Result{}

	valid, malformed := NewValidator(opts.TimestampLayouts...).Partition(raw)
	res.Malformed = malformed
	res.ValidCount = len(valid)
	hook(StageValidate, len(raw), len(valid))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline aborted after %s: %w", StageValidate, err)
	}

	res.Imputed = Impute(valid)
	hook(StageImpute, len(valid), len(res.Imputed))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline aborted after %s: %w", StageImpute, err)
	}

	res.Statistics = ComputeDailyStatistics(res.Imputed)
	hook(StageStats, len(res.Imputed), len(res.Statistics))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline aborted after %s: %w", StageStats, err)
	}

	cls := NewClassifier(opts.DeviationSigma, opts.UndefinedStdDevPolicy).Classify(res.Imputed, res.Statistics)
	res.Normal = cls.Normal
	res.Anomalous = cls.Anomalous
	res.Unresolved = cls.Unresolved
	res.Unmatched = cls.Unmatched
	hook(StageClassify, len(res.Imputed), cls.Total())

	return res, nil
}
