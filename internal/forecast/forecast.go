// Package forecast projects energy, workload, interruptions and efficiency
// over the coming days.
package forecast

import (
	"math"
	"time"

	"github.com/fentz26/potok/internal/circadian"
	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/models"
)

// DateLayout keys every per-day forecast.
const DateLayout = "2006-01-02"

// Workload is the scheduled versus available time of one day.
type Workload struct {
	ScheduledMinutes int `json:"scheduled_minutes"`
	ScheduledTasks   int `json:"scheduled_tasks_count"`
	AvailableMinutes int `json:"available_minutes"`
}

// Efficiency holds the multiplicative efficiency factors of one day.
type Efficiency struct {
	DayOfWeek  float64 `json:"day_of_week_factor"`
	Circadian  float64 `json:"circadian_factor"`
	Stress     float64 `json:"stress_factor"`
	Motivation float64 `json:"motivation_factor"`
}

// Day is the projection for one calendar date.
type Day struct {
	Date          string                  `json:"date"`
	Weekday       time.Weekday            `json:"weekday"`
	Energy        [24]float64             `json:"energy"`
	Workload      Workload                `json:"workload"`
	Interruptions circadian.Interruptions `json:"interruptions"`
	Efficiency    Efficiency              `json:"efficiency"`
}

// Set is a multi-day projection. Its lifetime is one scheduling run.
type Set struct {
	Days  []Day
	index map[string]int
	loc   *time.Location
}

// Day looks up the projection for a date key.
func (s *Set) Day(date string) (Day, bool) {
	if s == nil {
		return Day{}, false
	}
	i, ok := s.index[date]
	if !ok {
		return Day{}, false
	}
	return s.Days[i], true
}

// DayOf looks up the projection for the calendar date of t.
func (s *Set) DayOf(t time.Time) (Day, bool) {
	if s == nil {
		return Day{}, false
	}
	return s.Day(s.key(t))
}

// EnergyAt returns the projected energy at t, if t is covered.
func (s *Set) EnergyAt(t time.Time) (float64, bool) {
	d, ok := s.DayOf(t)
	if !ok {
		return 0, false
	}
	return d.Energy[s.local(t).Hour()], true
}

// WithWorkload recounts every day's scheduled minutes from tasks.
func (s *Set) WithWorkload(tasks []models.Task) {
	if s == nil {
		return
	}
	for i := range s.Days {
		s.Days[i].Workload.ScheduledMinutes = 0
		s.Days[i].Workload.ScheduledTasks = 0
	}
	for _, t := range tasks {
		seen := make(map[int]bool)
		for _, occ := range t.ScheduledDates {
			i, ok := s.index[s.key(occ.StartTime)]
			if !ok {
				continue
			}
			s.Days[i].Workload.ScheduledMinutes += occ.Duration
			if !seen[i] {
				s.Days[i].Workload.ScheduledTasks++
				seen[i] = true
			}
		}
	}
}

func (s *Set) local(t time.Time) time.Time {
	if s.loc == nil {
		return t
	}
	return t.In(s.loc)
}

func (s *Set) key(t time.Time) string {
	return s.local(t).Format(DateLayout)
}

// Engine builds forecast sets from the configured rhythm tables.
type Engine struct {
	cfg       *config.Config
	model     *circadian.Model
	window    int
	workHours []int
}

// New creates a forecast engine.
func New(cfg *config.Config, model *circadian.Model) *Engine {
	return &Engine{
		cfg:       cfg,
		model:     model,
		window:    cfg.WorkWindowMinutes(),
		workHours: workingHours(cfg),
	}
}

// Project builds a forecast for daysAhead days starting at the state's
// current day. daysAhead <= 0 uses the configured horizon.
func (e *Engine) Project(state models.UserState, tasks []models.Task, daysAhead int) *Set {
	if daysAhead <= 0 {
		daysAhead = e.cfg.ForecastDays
	}
	now := state.CurrentTime
	set := &Set{
		Days:  make([]Day, 0, daysAhead),
		index: make(map[string]int, daysAhead),
		loc:   now.Location(),
	}

	for day := 0; day < daysAhead; day++ {
		date := now.AddDate(0, 0, day)
		wd := date.Weekday()
		d := Day{
			Date:          date.Format(DateLayout),
			Weekday:       wd,
			Energy:        e.energyForDay(state, wd, day),
			Workload:      Workload{AvailableMinutes: e.available(wd)},
			Interruptions: e.model.InterruptionsFor(wd),
			Efficiency:    e.efficiency(state, wd),
		}
		set.index[d.Date] = len(set.Days)
		set.Days = append(set.Days, d)
	}

	set.WithWorkload(tasks)
	return set
}

// Interruptions returns the expected interruptions for the date of t,
// whether or not t is inside a projection.
func (e *Engine) Interruptions(t time.Time) circadian.Interruptions {
	return e.model.InterruptionsFor(t.Weekday())
}

func (e *Engine) energyForDay(state models.UserState, wd time.Weekday, daysFromNow int) [24]float64 {
	var hourly [24]float64
	base := clamp(state.Energy+state.EnergyTrend*float64(daysFromNow)*5, 0, 100)
	dayFactor := e.model.DayFactor(wd)
	for h := 0; h < 24; h++ {
		hourly[h] = clamp(math.Round(base*e.model.HourFactor(h)*dayFactor), 0, 100)
	}
	return hourly
}

func (e *Engine) available(wd time.Weekday) int {
	if !e.cfg.WorkingSchedule.IsWorkingDay(wd) {
		return 0
	}
	return e.window
}

func (e *Engine) efficiency(state models.UserState, wd time.Weekday) Efficiency {
	return Efficiency{
		DayOfWeek:  e.model.DayFactor(wd),
		Circadian:  e.model.MeanFactor(e.workHours),
		Stress:     math.Max(0, 1-state.Stress/200),
		Motivation: state.Motivation / 100,
	}
}

// workingHours lists the hours that start inside the working window and are
// not entirely covered by a fixed break.
func workingHours(cfg *config.Config) []int {
	start, err := config.ParseClock(cfg.WorkingSchedule.WorkStart)
	if err != nil {
		return nil
	}
	end, err := config.ParseClock(cfg.WorkingSchedule.WorkEnd)
	if err != nil {
		return nil
	}

	var hours []int
	for h := start / 60; h*60 < end && h < 24; h++ {
		from, to := h*60, h*60+60
		covered := false
		for _, b := range cfg.WorkingSchedule.Breaks {
			bs, err1 := config.ParseClock(b.Start)
			be, err2 := config.ParseClock(b.End)
			if err1 == nil && err2 == nil && bs <= from && be >= to {
				covered = true
				break
			}
		}
		if !covered {
			hours = append(hours, h)
		}
	}
	return hours
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
