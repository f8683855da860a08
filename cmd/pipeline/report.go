package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"turbine-platform/internal/models"
	"turbine-platform/internal/pipeline"
)

func printReport(w io.Writer, run *models.PipelineRun, result *pipeline.Result, show int) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "PIPELINE RUN COMPLETE")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Run ID:             %s\n", run.ID)
	fmt.Fprintf(w, "Status:             %s\n", run.Status)
	fmt.Fprintf(w, "Files:              %d\n", len(run.SourceFiles))
	fmt.Fprintf(w, "Raw Records:        %d\n", run.RawRecords)
	fmt.Fprintf(w, "Duplicates Removed: %d\n", run.DuplicateRecords)
	fmt.Fprintf(w, "Valid Records:      %d\n", run.ValidRecords)
	fmt.Fprintf(w, "Malformed Records:  %d\n", run.MalformedRecords)
	fmt.Fprintf(w, "Filled Records:     %d\n", run.FilledRecords)
	fmt.Fprintf(w, "Unresolved Records: %d\n", run.UnresolvedRecords)
	fmt.Fprintf(w, "Turbine-Days:       %d\n", run.StatisticsGroups)
	fmt.Fprintf(w, "Normal Readings:    %d\n", run.NormalRecords)
	fmt.Fprintf(w, "Anomalous Readings: %d\n", run.AnomalousRecords)
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration:           %v\n", run.FinishedAt.Sub(run.StartedAt))
	}

	if result == nil || show == 0 {
		return
	}

	printMalformed(w, result.Malformed, show)
	printImputed(w, result.Imputed, show)
	printStatistics(w, result.Statistics, show)
	printClassified(w, "NORMAL READINGS", result.Normal, show)
	printClassified(w, "ANOMALOUS READINGS", result.Anomalous, show)
	if len(result.Unresolved) > 0 {
		printClassified(w, "UNRESOLVED READINGS", result.Unresolved, show)
	}
}

func section(w io.Writer, title string, total, show int) *tabwriter.Writer {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%s (showing %d of %d)\n", title, min(show, total), total)
	fmt.Fprintln(w, strings.Repeat("=", 80))
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printMalformed(w io.Writer, rows []models.MalformedRecord, show int) {
	tw := section(w, "MALFORMED RECORDS", len(rows), show)
	fmt.Fprintln(tw, "turbine_id\ttimestamp\tpower_output\twind_speed\twind_direction\treason")
	for _, r := range rows[:min(show, len(rows))] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			str(r.TurbineID), str(r.Timestamp), num(r.PowerOutput), num(r.WindSpeed), num(r.WindDirection), r.Reason)
	}
	tw.Flush()
}

func printImputed(w io.Writer, rows []models.ImputedRecord, show int) {
	tw := section(w, "IMPUTED READINGS", len(rows), show)
	fmt.Fprintln(tw, "event_date\tturbine_id\twind_speed\twind_direction\timputed_power_output\twas_imputed")
	for _, r := range rows[:min(show, len(rows))] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			r.EventDate.Format(models.EventDateLayout), r.TurbineID, num(r.WindSpeed), num(r.WindDirection), num(r.ImputedPowerOutput), r.WasImputed)
	}
	tw.Flush()
}

func printStatistics(w io.Writer, rows []models.DailyTurbineStats, show int) {
	tw := section(w, "DAILY TURBINE STATISTICS", len(rows), show)
	fmt.Fprintln(tw, "turbine_id\tevent_date\tmin_power\tmax_power\tavg_power\tstddev_power")
	for _, r := range rows[:min(show, len(rows))] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.TurbineID, r.EventDate.Format(models.EventDateLayout), num(r.MinPower), num(r.MaxPower), num(r.AvgPower), num(r.StdDevPower))
	}
	tw.Flush()
}

func printClassified(w io.Writer, title string, rows []models.ClassifiedRecord, show int) {
	tw := section(w, title, len(rows), show)
	fmt.Fprintln(tw, "event_date\tturbine_id\twind_speed\twind_direction\timputed_power_output\twas_imputed\tavg_power\tstddev_power")
	for _, r := range rows[:min(show, len(rows))] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			r.EventDate.Format(models.EventDateLayout), r.TurbineID, num(r.WindSpeed), num(r.WindDirection),
			num(r.ImputedPowerOutput), r.WasImputed, num(r.AvgPower), num(r.StdDevPower))
	}
	tw.Flush()
}

func str(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}

func num(f *float64) string {
	if f == nil {
		return "null"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
