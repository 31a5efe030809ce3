// Package models defines the core domain types for Potok.
package models

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusScheduled  TaskStatus = "scheduled"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusScheduled, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a task in this status still needs work.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

// Category groups tasks for importance weighting.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryHealth   Category = "health"
	CategoryLearning Category = "learning"
	CategoryPersonal Category = "personal"
	CategorySocial   Category = "social"
	CategoryOther    Category = "other"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryWork, CategoryHealth, CategoryLearning, CategoryPersonal, CategorySocial, CategoryOther:
		return true
	}
	return false
}

// Level is a coarse three-band classification used for priority and complexity.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Stage is an ordered sub-step of a task.
type Stage struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Duration  int      `json:"duration"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// ScheduledOccurrence is one placement of a task on the calendar.
type ScheduledOccurrence struct {
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"start_time"`
	Duration  int       `json:"duration"` // minutes
}

// EndTime returns the instant the occurrence finishes.
func (o ScheduledOccurrence) EndTime() time.Time {
	return o.StartTime.Add(time.Duration(o.Duration) * time.Minute)
}

// Task represents a unit of work owned by a single user.
type Task struct {
	ID                string                `json:"id"`
	UserID            string                `json:"user_id"`
	Title             string                `json:"title"`
	Description       string                `json:"description,omitempty"`
	Priority          int                   `json:"priority"`           // 1-5
	Deadline          time.Time             `json:"deadline"`           // zero means none
	EstimatedDuration int                   `json:"estimated_duration"` // minutes
	Category          Category              `json:"category"`
	Complexity        int                   `json:"complexity"`      // 1-10
	RequiredEnergy    int                   `json:"required_energy"` // 1-10
	RequiredFocus     int                   `json:"required_focus"`  // 1-10
	Status            TaskStatus            `json:"status"`
	Stages            []Stage               `json:"stages,omitempty"`
	ScheduledDates    []ScheduledOccurrence `json:"scheduled_dates,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// HasDeadline reports whether the task carries a deadline.
func (t *Task) HasDeadline() bool {
	return !t.Deadline.IsZero()
}

// PriorityLevel maps the numeric priority onto high/medium/low.
func (t *Task) PriorityLevel() Level {
	switch {
	case t.Priority >= 4:
		return LevelHigh
	case t.Priority == 3:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ComplexityLevel maps the numeric complexity onto high/medium/low.
func (t *Task) ComplexityLevel() Level {
	switch {
	case t.Complexity >= 7:
		return LevelHigh
	case t.Complexity >= 4:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Validate checks the task's field ranges.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if t.Priority < 1 || t.Priority > 5 {
		return fmt.Errorf("priority must be between 1 and 5, got %d", t.Priority)
	}
	if t.EstimatedDuration <= 0 {
		return fmt.Errorf("estimated_duration must be positive")
	}
	for name, v := range map[string]int{
		"complexity":      t.Complexity,
		"required_energy": t.RequiredEnergy,
		"required_focus":  t.RequiredFocus,
	} {
		if v < 1 || v > 10 {
			return fmt.Errorf("%s must be between 1 and 10, got %d", name, v)
		}
	}
	if t.Category != "" && !t.Category.IsValid() {
		return fmt.Errorf("unknown category %q", t.Category)
	}
	if t.Status != "" && !t.Status.IsValid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate schedules freely.
func (t Task) Clone() Task {
	c := t
	if t.Stages != nil {
		c.Stages = make([]Stage, len(t.Stages))
		for i, st := range t.Stages {
			st.DependsOn = append([]string(nil), st.DependsOn...)
			c.Stages[i] = st
		}
	}
	if t.ScheduledDates != nil {
		c.ScheduledDates = append([]ScheduledOccurrence(nil), t.ScheduledDates...)
	}
	return c
}

// CircadianPhase names a band of the daily productivity curve.
type CircadianPhase string

const (
	PhasePeak   CircadianPhase = "PEAK"
	PhaseHigh   CircadianPhase = "HIGH"
	PhaseNormal CircadianPhase = "NORMAL"
	PhaseLow    CircadianPhase = "LOW"
)

// CircadianContext describes where "now" sits on the user's daily rhythm.
type CircadianContext struct {
	Phase  CircadianPhase `json:"phase"`
	Factor float64        `json:"current_factor"`
	IsPeak bool           `json:"is_peak_time"`
}

// UserState is a snapshot of the user's capacity at CurrentTime.
type UserState struct {
	UserID         string           `json:"user_id"`
	Energy         float64          `json:"energy"`
	Focus          float64          `json:"focus"`
	Stress         float64          `json:"stress"`
	Motivation     float64          `json:"motivation"`
	EnergyAdjusted float64          `json:"energy_adjusted,omitempty"`
	FocusAdjusted  float64          `json:"focus_adjusted,omitempty"`
	EnergyTrend    float64          `json:"energy_trend,omitempty"`
	FocusTrend     float64          `json:"focus_trend,omitempty"`
	CurrentTime    time.Time        `json:"current_time"`
	Circadian      CircadianContext `json:"circadian"`
}

// Weekday is derived from CurrentTime in its own location.
func (s UserState) Weekday() time.Weekday {
	return s.CurrentTime.Weekday()
}

// Hour is derived from CurrentTime in its own location.
func (s UserState) Hour() int {
	return s.CurrentTime.Hour()
}

// EffectiveEnergy returns the circadian-adjusted energy, falling back to raw.
func (s UserState) EffectiveEnergy() float64 {
	if s.EnergyAdjusted != 0 {
		return s.EnergyAdjusted
	}
	return s.Energy
}

// EffectiveFocus returns the circadian-adjusted focus, falling back to raw.
func (s UserState) EffectiveFocus() float64 {
	if s.FocusAdjusted != 0 {
		return s.FocusAdjusted
	}
	return s.Focus
}

// DefaultUserState is the neutral state substituted when the provider fails.
func DefaultUserState(userID string, now time.Time) UserState {
	return UserState{
		UserID:         userID,
		Energy:         5,
		Focus:          50,
		Motivation:     5,
		Stress:         5,
		EnergyAdjusted: 5,
		FocusAdjusted:  50,
		CurrentTime:    now,
		Circadian: CircadianContext{
			Phase:  PhaseNormal,
			Factor: 1.0,
			IsPeak: false,
		},
	}
}

// TimeSlot is a contiguous free interval on the calendar.
type TimeSlot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration int       `json:"duration"` // minutes
}

// NewTimeSlot builds a slot from its bounds.
func NewTimeSlot(start, end time.Time) TimeSlot {
	return TimeSlot{Start: start, End: end, Duration: int(end.Sub(start) / time.Minute)}
}

// BreakTime is a fixed daily break in "HH:MM" form.
type BreakTime struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
	Type  string `json:"type" yaml:"type"`
}

// WorkingSchedule is the working-hours policy shared by all runs.
type WorkingSchedule struct {
	WorkStart        string         `json:"work_start" yaml:"work_start"`
	WorkEnd          string         `json:"work_end" yaml:"work_end"`
	Breaks           []BreakTime    `json:"breaks" yaml:"breaks"`
	WorkingDays      []time.Weekday `json:"working_days" yaml:"working_days"`
	MinBreakDuration int            `json:"min_break_duration" yaml:"min_break_duration"`
	MaxFocusTime     int            `json:"max_focus_time" yaml:"max_focus_time"`
}

// IsWorkingDay reports whether wd is in the working set.
func (w WorkingSchedule) IsWorkingDay(wd time.Weekday) bool {
	for _, d := range w.WorkingDays {
		if d == wd {
			return true
		}
	}
	return false
}

// TaskScore is the per-task, per-slot scoring output.
type TaskScore struct {
	Task                  Task    `json:"task"`
	Urgency               float64 `json:"urgency"`
	Importance            float64 `json:"importance"`
	StateMatch            float64 `json:"state_match"`
	CompletionProbability float64 `json:"completion_probability"`
	NormalizedPriority    float64 `json:"normalized_priority"`
	Reason                string  `json:"reason"`
}

// UnfeasibleTask is a task the scheduler could not place.
type UnfeasibleTask struct {
	Task   Task   `json:"task"`
	Reason string `json:"reason"`
}

// RecommendationType classifies an advisory.
type RecommendationType string

const (
	RecommendationState      RecommendationType = "state"
	RecommendationBreak      RecommendationType = "break"
	RecommendationWorkload   RecommendationType = "workload"
	RecommendationUnfeasible RecommendationType = "unfeasible"
	RecommendationDeadline   RecommendationType = "deadline"
)

// Severity orders advisories and warnings.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns the sort position of a severity, lower first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Recommendation is a human-readable advisory.
type Recommendation struct {
	Type     RecommendationType `json:"type"`
	Priority Severity           `json:"priority"`
	Message  string             `json:"message"`
	TaskID   string             `json:"task_id,omitempty"`
	Date     string             `json:"date,omitempty"`
}

// Warning is a feasibility-report entry.
type Warning struct {
	TaskID       string   `json:"task_id"`
	TaskTitle    string   `json:"task_title"`
	Level        Severity `json:"level"`
	Message      string   `json:"message"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// WorkloadLevel classifies a day's fullness.
type WorkloadLevel string

const (
	WorkloadUnderload WorkloadLevel = "underload"
	WorkloadOptimal   WorkloadLevel = "optimal"
	WorkloadLoaded    WorkloadLevel = "loaded"
	WorkloadOverload  WorkloadLevel = "overload"
)

// WorkloadAnalysis is the per-day load classification.
type WorkloadAnalysis struct {
	Date             string        `json:"date"`
	ScheduledMinutes int           `json:"scheduled_minutes"`
	AvailableMinutes int           `json:"available_minutes"`
	Percentage       float64       `json:"percentage"`
	Level            WorkloadLevel `json:"level"`
	IsOverloaded     bool          `json:"is_overloaded"`
}

// WorkloadStatistics aggregates WorkloadAnalysis entries.
type WorkloadStatistics struct {
	AveragePercentage float64 `json:"average_percentage"`
	MaxPercentage     float64 `json:"max_percentage"`
	MinPercentage     float64 `json:"min_percentage"`
	OverloadedDays    int     `json:"overloaded_days"`
	OptimalDays       int     `json:"optimal_days"`
}

// FeasibilityReport summarizes what could and could not be placed.
type FeasibilityReport struct {
	TotalTasks      int                `json:"total_tasks"`
	ScheduledCount  int                `json:"scheduled_count"`
	UnfeasibleCount int                `json:"unfeasible_count"`
	Warnings        []Warning          `json:"warnings"`
	Workload        []WorkloadAnalysis `json:"workload_analysis"`
	Statistics      WorkloadStatistics `json:"statistics"`
}

// MitResult is the selected Most Important Task.
type MitResult struct {
	TaskID            string  `json:"task_id"`
	UserID            string  `json:"user_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	PriorityScore     float64 `json:"priority_score"`
	StateMatchScore   float64 `json:"state_match_score"`
	DeadlineUrgency   float64 `json:"deadline_urgency"`
	CircadianBonus    float64 `json:"circadian_bonus"`
	FinalScore        float64 `json:"final_score"`
	Reason            string  `json:"reason"`
	RecommendedTime   string  `json:"recommended_time"`
	EstimatedDuration int     `json:"estimated_duration"`
}

// PrioritizedTask is an entry of the sorted-task list.
type PrioritizedTask struct {
	Task                  Task    `json:"task"`
	CalculatedPriority    float64 `json:"calculated_priority"`
	StateMatchScore       float64 `json:"state_match_score"`
	Recommendation        string  `json:"recommendation"`
	ShouldDefer           bool    `json:"should_defer"`
	CompletionProbability float64 `json:"completion_probability"`
}

// RunMetadata describes one distribution run.
type RunMetadata struct {
	CalculatedAt     time.Time `json:"calculated_at"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CorrelationID    string    `json:"correlation_id"`
	AlgorithmVersion string    `json:"algorithm_version"`
}

// DistributionResult is the aggregate output of a scheduling run.
type DistributionResult struct {
	UserID          string            `json:"user_id"`
	Scheduled       []Task            `json:"scheduled"`
	Unfeasible      []UnfeasibleTask  `json:"unfeasible"`
	MIT             *MitResult        `json:"mit,omitempty"`
	Recommendations []Recommendation  `json:"recommendations"`
	Report          FeasibilityReport `json:"feasibility_report"`
	Metadata        RunMetadata       `json:"metadata"`
}

// RescheduleSuggestion is the outcome of rescheduling one task.
type RescheduleSuggestion struct {
	TaskID        string    `json:"task_id"`
	Title         string    `json:"title"`
	Reason        string    `json:"reason"`
	SuggestedTime string    `json:"suggested_time"`
	SuggestedSlot *TimeSlot `json:"suggested_slot,omitempty"`
}

// EventType names an entry in the per-user event history.
type EventType string

const (
	EventTaskAssigned          EventType = "task_assigned"
	EventTaskCompleted         EventType = "task_completed"
	EventTaskRescheduled       EventType = "task_rescheduled"
	EventMITCalculated         EventType = "mit_calculated"
	EventDistributionCompleted EventType = "distribution_completed"
)

// Event is an audit record of a distribution decision.
type Event struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Type          EventType `json:"event_type"`
	TaskID        string    `json:"task_id,omitempty"`
	Payload       string    `json:"payload,omitempty"` // JSON
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
