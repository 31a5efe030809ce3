// Package config holds the tunable algorithm configuration for Potok.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/potok/internal/models"
	"gopkg.in/yaml.v3"
)

// Version is reported in run metadata so results can be traced to a tuning.
const Version = "potok-2.1"

// UrgencyWeights are the tiered urgency coefficients of the normalized priority.
type UrgencyWeights struct {
	Critical float64 `yaml:"critical"` // urgency > thresholds.critical
	High     float64 `yaml:"high"`     // urgency > thresholds.high
	Normal   float64 `yaml:"normal"`
}

// Weights are the normalized-priority weights.
type Weights struct {
	Urgency        UrgencyWeights `yaml:"urgency"`
	Importance     float64        `yaml:"importance"`
	StateMatch     float64        `yaml:"state_match"`
	CompletionProb float64        `yaml:"completion_prob"`
}

// UrgencyThresholds band the urgency score.
type UrgencyThresholds struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// StateMatchConfig tunes the coarse 0-100 state-fit term of the task scorer.
type StateMatchConfig struct {
	EnergyWeight           float64 `yaml:"energy_weight"`
	FocusWeight            float64 `yaml:"focus_weight"`
	StressWeight           float64 `yaml:"stress_weight"`
	ComplexityWeight       float64 `yaml:"complexity_weight"`
	HighStressThreshold    float64 `yaml:"high_stress_threshold"`
	LowComplexityThreshold int     `yaml:"low_complexity_threshold"`
}

// CompletionConfig tunes the completion-probability estimate.
type CompletionConfig struct {
	DurationFitWeight  float64 `yaml:"duration_fit_weight"`
	InterruptionWeight float64 `yaml:"interruption_weight"`
	DeadlineWeight     float64 `yaml:"deadline_weight"`
	BaseProbability    float64 `yaml:"base_probability"`
}

// BreakConfig tunes the break advisories.
type BreakConfig struct {
	MinBreakAfterTask           int `yaml:"min_break_after_task"`
	RecommendedBreakAfterTask   int `yaml:"recommended_break_after_task"`
	MaxFocusTimeWithoutBreak    int `yaml:"max_focus_time_without_break"`
	MandatoryBreakAfterMaxFocus int `yaml:"mandatory_break_after_max_focus"`
	RecoveryAfterInterruption   int `yaml:"recovery_after_interruption"`
}

// WorkloadConfig holds the day-load classification thresholds (percent).
type WorkloadConfig struct {
	UnderloadThreshold float64 `yaml:"underload_threshold"`
	OptimalMax         float64 `yaml:"optimal_max"`
	LoadedMin          float64 `yaml:"loaded_min"`
	OverloadThreshold  float64 `yaml:"overload_threshold"`
}

// InterruptionConfig models expected interruptions per weekday.
type InterruptionConfig struct {
	ByWeekday       map[time.Weekday]int `yaml:"by_weekday"`
	Default         int                  `yaml:"default"`
	AverageDuration int                  `yaml:"average_duration"` // minutes
	RecoveryTime    int                  `yaml:"recovery_time"`    // minutes
}

// StateAlertConfig holds the fixed user-state alert thresholds.
type StateAlertConfig struct {
	LowEnergy     float64 `yaml:"low_energy"`
	HighStress    float64 `yaml:"high_stress"`
	LowFocus      float64 `yaml:"low_focus"`
	LowMotivation float64 `yaml:"low_motivation"`
}

// Config defines the complete algorithm configuration.
type Config struct {
	Weights             Weights                  `yaml:"weights"`
	Urgency             UrgencyThresholds        `yaml:"urgency"`
	WorkingSchedule     models.WorkingSchedule   `yaml:"working_schedule"`
	StateMatch          StateMatchConfig         `yaml:"state_match"`
	Completion          CompletionConfig         `yaml:"completion_probability"`
	Breaks              BreakConfig              `yaml:"breaks"`
	Workload            WorkloadConfig           `yaml:"workload"`
	Interruptions       InterruptionConfig       `yaml:"interruptions"`
	StateAlerts         StateAlertConfig         `yaml:"state_alerts"`
	CategoryBonus       map[models.Category]int  `yaml:"category_bonus"`
	CircadianFactors    map[int]float64          `yaml:"circadian_factors"`
	DayOfWeekFactors    map[time.Weekday]float64 `yaml:"day_of_week_factors"`
	PeakFactor          float64                  `yaml:"peak_factor"`
	CompletionThreshold float64                  `yaml:"completion_threshold"` // fraction of 100
	MaxSearchDays       int                      `yaml:"max_search_days"`
	MinTaskDuration     int                      `yaml:"min_task_duration"`
	SlotStep            int                      `yaml:"slot_step"` // minutes
	ForecastDays        int                      `yaml:"forecast_days"`
}

// DefaultConfig returns the tuned production defaults.
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			Urgency:        UrgencyWeights{Critical: 0.5, High: 0.35, Normal: 0.15},
			Importance:     0.2,
			StateMatch:     0.15,
			CompletionProb: 0.2,
		},
		Urgency: UrgencyThresholds{Critical: 80, High: 50, Medium: 20},
		WorkingSchedule: models.WorkingSchedule{
			WorkStart: "09:00",
			WorkEnd:   "18:00",
			Breaks: []models.BreakTime{
				{Start: "12:00", End: "13:00", Type: "lunch"},
				{Start: "15:30", End: "15:45", Type: "short_break"},
			},
			WorkingDays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			MinBreakDuration: 5,
			MaxFocusTime:     90,
		},
		StateMatch: StateMatchConfig{
			EnergyWeight:           0.25,
			FocusWeight:            0.25,
			StressWeight:           0.25,
			ComplexityWeight:       0.25,
			HighStressThreshold:    70,
			LowComplexityThreshold: 4,
		},
		Completion: CompletionConfig{
			DurationFitWeight:  0.3,
			InterruptionWeight: 0.2,
			DeadlineWeight:     0.3,
			BaseProbability:    20,
		},
		Breaks: BreakConfig{
			MinBreakAfterTask:           5,
			RecommendedBreakAfterTask:   10,
			MaxFocusTimeWithoutBreak:    90,
			MandatoryBreakAfterMaxFocus: 15,
			RecoveryAfterInterruption:   20,
		},
		Workload: WorkloadConfig{
			UnderloadThreshold: 50,
			OptimalMax:         75,
			LoadedMin:          75,
			OverloadThreshold:  85,
		},
		Interruptions: InterruptionConfig{
			ByWeekday: map[time.Weekday]int{
				time.Sunday: 1, time.Monday: 5, time.Tuesday: 4, time.Wednesday: 3,
				time.Thursday: 4, time.Friday: 5, time.Saturday: 2,
			},
			Default:         3,
			AverageDuration: 10,
			RecoveryTime:    20,
		},
		StateAlerts: StateAlertConfig{
			LowEnergy:     30,
			HighStress:    70,
			LowFocus:      40,
			LowMotivation: 40,
		},
		CategoryBonus: map[models.Category]int{
			models.CategoryWork:     10,
			models.CategoryHealth:   15,
			models.CategoryLearning: 5,
			models.CategoryPersonal: 0,
			models.CategorySocial:   -5,
			models.CategoryOther:    0,
		},
		CircadianFactors: map[int]float64{
			0: 0.5, 1: 0.5, 2: 0.5, 3: 0.5, 4: 0.5, 5: 0.6,
			6: 0.7, 7: 0.9, 8: 1.1, 9: 1.3, 10: 1.3, 11: 1.2,
			12: 1.0, 13: 0.9, 14: 0.9, 15: 1.0, 16: 1.1, 17: 1.0,
			18: 0.9, 19: 0.8, 20: 0.7, 21: 0.6, 22: 0.6, 23: 0.5,
		},
		DayOfWeekFactors: map[time.Weekday]float64{
			time.Sunday:    0.8,
			time.Monday:    0.6,
			time.Tuesday:   1.1,
			time.Wednesday: 1.2,
			time.Thursday:  1.1,
			time.Friday:    0.8,
			time.Saturday:  0.7,
		},
		PeakFactor:          1.2,
		CompletionThreshold: 0.6,
		MaxSearchDays:       30,
		MinTaskDuration:     15,
		SlotStep:            15,
		ForecastDays:        7,
	}
}

// LoadConfig loads configuration from a YAML file, overlaying the defaults.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromHome loads configuration from ~/.potok/algorithm.yaml.
func LoadConfigFromHome() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(filepath.Join(home, ".potok", "algorithm.yaml"))
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	start, err := ParseClock(c.WorkingSchedule.WorkStart)
	if err != nil {
		return fmt.Errorf("work_start: %w", err)
	}
	end, err := ParseClock(c.WorkingSchedule.WorkEnd)
	if err != nil {
		return fmt.Errorf("work_end: %w", err)
	}
	if end <= start {
		return fmt.Errorf("work_end %s must be after work_start %s", c.WorkingSchedule.WorkEnd, c.WorkingSchedule.WorkStart)
	}
	for _, b := range c.WorkingSchedule.Breaks {
		bs, err := ParseClock(b.Start)
		if err != nil {
			return fmt.Errorf("break %q start: %w", b.Type, err)
		}
		be, err := ParseClock(b.End)
		if err != nil {
			return fmt.Errorf("break %q end: %w", b.Type, err)
		}
		if be <= bs {
			return fmt.Errorf("break %q ends before it starts", b.Type)
		}
	}

	sm := c.StateMatch
	if sum := sm.EnergyWeight + sm.FocusWeight + sm.StressWeight + sm.ComplexityWeight; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("state_match weights must sum to 1, got %.3f", sum)
	}

	w := c.Weights
	for name, v := range map[string]float64{
		"urgency.critical": w.Urgency.Critical,
		"urgency.high":     w.Urgency.High,
		"urgency.normal":   w.Urgency.Normal,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weights.%s must be within [0,1]", name)
		}
	}
	if sum := w.Importance + w.StateMatch + w.CompletionProb; sum > 1+1e-6 {
		return fmt.Errorf("priority weights must sum to at most 1, got %.3f", sum)
	}

	if c.CompletionThreshold < 0 || c.CompletionThreshold > 1 {
		return fmt.Errorf("completion_threshold must be within [0,1]")
	}
	if c.MaxSearchDays < 1 {
		return fmt.Errorf("max_search_days must be at least 1")
	}
	if c.MinTaskDuration < 1 {
		return fmt.Errorf("min_task_duration must be at least 1")
	}
	if c.SlotStep < 1 {
		return fmt.Errorf("slot_step must be at least 1")
	}
	if c.ForecastDays < 1 {
		return fmt.Errorf("forecast_days must be at least 1")
	}
	if c.Workload.UnderloadThreshold > c.Workload.OptimalMax || c.Workload.OptimalMax > c.Workload.OverloadThreshold {
		return fmt.Errorf("workload thresholds must be ascending")
	}
	return nil
}

// WorkWindowMinutes is the length of the daily working window.
func (c *Config) WorkWindowMinutes() int {
	start, _ := ParseClock(c.WorkingSchedule.WorkStart)
	end, _ := ParseClock(c.WorkingSchedule.WorkEnd)
	if end <= start {
		return 0
	}
	return end - start
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}

// At places a minutes-since-midnight clock value on the calendar day of t,
// in t's location.
func At(t time.Time, minutes int) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, minutes/60, minutes%60, 0, 0, t.Location())
}
