// Package circadian models daily and weekly productivity rhythms.
package circadian

import (
	"time"

	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/models"
)

// Interruptions is the expected disruption of one calendar day.
type Interruptions struct {
	Expected         int `json:"expected_interruptions"`
	ExpectedDuration int `json:"expected_interruption_duration"` // minutes
	ExpectedRecovery int `json:"expected_recovery_time"`         // minutes
}

// LostMinutes is the total time interruptions are expected to cost.
func (i Interruptions) LostMinutes() int {
	return i.ExpectedDuration + i.ExpectedRecovery
}

// Model is an immutable set of rhythm lookup tables.
type Model struct {
	hours         [24]float64
	days          [7]float64
	interruptions [7]int
	avgDuration   int
	recovery      int
	peak          float64
}

// New copies the tables out of cfg. Missing entries default to a neutral 1.0
// factor and to cfg.Interruptions.Default interruptions.
func New(cfg *config.Config) *Model {
	m := &Model{
		avgDuration: cfg.Interruptions.AverageDuration,
		recovery:    cfg.Interruptions.RecoveryTime,
		peak:        cfg.PeakFactor,
	}
	for h := 0; h < 24; h++ {
		m.hours[h] = 1
		if f, ok := cfg.CircadianFactors[h]; ok {
			m.hours[h] = f
		}
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		m.days[d] = 1
		if f, ok := cfg.DayOfWeekFactors[d]; ok {
			m.days[d] = f
		}
		m.interruptions[d] = cfg.Interruptions.Default
		if n, ok := cfg.Interruptions.ByWeekday[d]; ok {
			m.interruptions[d] = n
		}
	}
	return m
}

// HourFactor returns the productivity multiplier for an hour of the day.
func (m *Model) HourFactor(hour int) float64 {
	if hour < 0 || hour > 23 {
		return 1
	}
	return m.hours[hour]
}

// DayFactor returns the productivity multiplier for a weekday.
func (m *Model) DayFactor(wd time.Weekday) float64 {
	if wd < time.Sunday || wd > time.Saturday {
		return 1
	}
	return m.days[wd]
}

// Factor returns the hour factor at t.
func (m *Model) Factor(t time.Time) float64 {
	return m.HourFactor(t.Hour())
}

// MeanFactor averages the hour factor over hours. An empty set is neutral.
func (m *Model) MeanFactor(hours []int) float64 {
	if len(hours) == 0 {
		return 1
	}
	var sum float64
	for _, h := range hours {
		sum += m.HourFactor(h)
	}
	return sum / float64(len(hours))
}

// IsPeak reports whether t falls into a peak hour.
func (m *Model) IsPeak(t time.Time) bool {
	return m.Factor(t) >= m.peak
}

// Phase names the band of the curve t falls into.
func (m *Model) Phase(t time.Time) models.CircadianPhase {
	f := m.Factor(t)
	switch {
	case f >= m.peak:
		return models.PhasePeak
	case f >= 1.0:
		return models.PhaseHigh
	case f >= 0.8:
		return models.PhaseNormal
	default:
		return models.PhaseLow
	}
}

// Context builds the circadian descriptor for t.
func (m *Model) Context(t time.Time) models.CircadianContext {
	return models.CircadianContext{
		Phase:  m.Phase(t),
		Factor: m.Factor(t),
		IsPeak: m.IsPeak(t),
	}
}

// InterruptionsFor returns the expected interruptions on the weekday of t.
func (m *Model) InterruptionsFor(wd time.Weekday) Interruptions {
	n := 0
	if wd >= time.Sunday && wd <= time.Saturday {
		n = m.interruptions[wd]
	}
	return Interruptions{
		Expected:         n,
		ExpectedDuration: n * m.avgDuration,
		ExpectedRecovery: n * m.recovery,
	}
}
