// Package workload classifies how full each forecasted day is.
package workload

import (
	"math"
	"sort"

	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/forecast"
	"github.com/fentz26/potok/internal/models"
)

// Analyzer classifies days against the configured thresholds.
type Analyzer struct {
	cfg config.WorkloadConfig
}

// New creates an analyzer.
func New(cfg *config.Config) *Analyzer {
	return &Analyzer{cfg: cfg.Workload}
}

// Analyze returns one entry per projected day, sorted by date.
func (a *Analyzer) Analyze(set *forecast.Set) []models.WorkloadAnalysis {
	if set == nil {
		return nil
	}
	out := make([]models.WorkloadAnalysis, 0, len(set.Days))
	for _, d := range set.Days {
		out = append(out, a.Day(d.Date, d.Workload.ScheduledMinutes, d.Workload.AvailableMinutes))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Day classifies a single day.
func (a *Analyzer) Day(date string, used, available int) models.WorkloadAnalysis {
	pct := Percentage(used, available)
	return models.WorkloadAnalysis{
		Date:             date,
		ScheduledMinutes: used,
		AvailableMinutes: available,
		Percentage:       pct,
		Level:            a.Level(pct),
		IsOverloaded:     pct > a.cfg.OverloadThreshold,
	}
}

// Level bands a load percentage.
func (a *Analyzer) Level(pct float64) models.WorkloadLevel {
	switch {
	case pct < a.cfg.UnderloadThreshold:
		return models.WorkloadUnderload
	case pct < a.cfg.OptimalMax:
		return models.WorkloadOptimal
	case pct < a.cfg.OverloadThreshold:
		return models.WorkloadLoaded
	default:
		return models.WorkloadOverload
	}
}

// Statistics aggregates analyses. No days yields the zero value.
func (a *Analyzer) Statistics(analyses []models.WorkloadAnalysis) models.WorkloadStatistics {
	if len(analyses) == 0 {
		return models.WorkloadStatistics{}
	}
	stats := models.WorkloadStatistics{
		MaxPercentage: math.Inf(-1),
		MinPercentage: math.Inf(1),
	}
	var sum float64
	for _, w := range analyses {
		sum += w.Percentage
		stats.MaxPercentage = math.Max(stats.MaxPercentage, w.Percentage)
		stats.MinPercentage = math.Min(stats.MinPercentage, w.Percentage)
		if w.IsOverloaded {
			stats.OverloadedDays++
		}
		if w.Level == models.WorkloadOptimal {
			stats.OptimalDays++
		}
	}
	stats.AveragePercentage = round2(sum / float64(len(analyses)))
	return stats
}

// Percentage is used/available in percent, rounded to 2 decimals. A day
// without working time counts as 0% when empty and full otherwise.
func Percentage(used, available int) float64 {
	if used < 0 {
		used = 0
	}
	if available <= 0 {
		if used == 0 {
			return 0
		}
		return 100
	}
	return round2(float64(used) / float64(available) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
