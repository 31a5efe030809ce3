package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/fentz26/potok/internal/circadian"
	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/models"
)

// Wednesday
var now = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	cfg := config.DefaultConfig()
	return New(cfg, circadian.New(cfg))
}

func TestProject_EnergyCurve(t *testing.T) {
	e := newEngine()
	state := models.UserState{Energy: 50, EnergyTrend: 0.5, CurrentTime: now}

	set := e.Project(state, nil, 3)
	if len(set.Days) != 3 {
		t.Fatalf("Expected 3 days, got %d", len(set.Days))
	}

	wed, ok := set.Day("2024-03-06")
	if !ok {
		t.Fatal("Expected today to be projected")
	}
	if got := wed.Energy[10]; got != 78 {
		t.Errorf("Expected Wednesday 10:00 energy 78, got %v", got)
	}

	// base 52.5 on Thursday, factor 1.3 * 1.1
	thu, _ := set.Day("2024-03-07")
	if got := thu.Energy[10]; got != 75 {
		t.Errorf("Expected Thursday 10:00 energy 75, got %v", got)
	}
}

func TestProject_EnergyIsClamped(t *testing.T) {
	e := newEngine()
	state := models.UserState{Energy: 100, EnergyTrend: 1, CurrentTime: now}

	set := e.Project(state, nil, 5)
	for _, d := range set.Days {
		for h, v := range d.Energy {
			if v < 0 || v > 100 {
				t.Fatalf("%s hour %d energy %v out of range", d.Date, h, v)
			}
		}
	}
}

func TestProject_Workload(t *testing.T) {
	e := newEngine()
	start := time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)
	tasks := []models.Task{
		{ID: "a", ScheduledDates: []models.ScheduledOccurrence{{Date: start, StartTime: start, Duration: 60}}},
		{ID: "b", ScheduledDates: []models.ScheduledOccurrence{{Date: start, StartTime: start.Add(2 * time.Hour), Duration: 45}}},
	}

	set := e.Project(models.UserState{CurrentTime: now}, tasks, 4)

	thu, _ := set.Day("2024-03-07")
	if thu.Workload.ScheduledMinutes != 105 || thu.Workload.ScheduledTasks != 2 {
		t.Errorf("unexpected Thursday workload: %+v", thu.Workload)
	}
	if thu.Workload.AvailableMinutes != 540 {
		t.Errorf("Expected 540 available minutes, got %d", thu.Workload.AvailableMinutes)
	}

	sat, _ := set.Day("2024-03-09")
	if sat.Workload.AvailableMinutes != 0 {
		t.Errorf("Expected no working time on Saturday, got %d", sat.Workload.AvailableMinutes)
	}

	set.WithWorkload(tasks[:1])
	thu, _ = set.Day("2024-03-07")
	if thu.Workload.ScheduledMinutes != 60 {
		t.Errorf("Expected recount to 60 minutes, got %d", thu.Workload.ScheduledMinutes)
	}
}

func TestProject_InterruptionsAndEfficiency(t *testing.T) {
	e := newEngine()
	state := models.UserState{Stress: 50, Motivation: 40, CurrentTime: now}

	set := e.Project(state, nil, 0)
	if len(set.Days) != 7 {
		t.Fatalf("Expected configured 7-day horizon, got %d", len(set.Days))
	}

	wed := set.Days[0]
	if wed.Interruptions.Expected != 3 || wed.Interruptions.ExpectedDuration != 30 || wed.Interruptions.ExpectedRecovery != 60 {
		t.Errorf("unexpected Wednesday interruptions: %+v", wed.Interruptions)
	}
	if wed.Efficiency.DayOfWeek != 1.2 {
		t.Errorf("Expected day factor 1.2, got %v", wed.Efficiency.DayOfWeek)
	}
	if wed.Efficiency.Stress != 0.75 {
		t.Errorf("Expected stress factor 0.75, got %v", wed.Efficiency.Stress)
	}
	if wed.Efficiency.Motivation != 0.4 {
		t.Errorf("Expected motivation factor 0.4, got %v", wed.Efficiency.Motivation)
	}
	if math.Abs(wed.Efficiency.Circadian-1.0875) > 1e-9 {
		t.Errorf("Expected mean working-hour factor 1.0875, got %v", wed.Efficiency.Circadian)
	}
}

func TestEnergyAt(t *testing.T) {
	e := newEngine()
	set := e.Project(models.UserState{Energy: 50, CurrentTime: now}, nil, 2)

	v, ok := set.EnergyAt(time.Date(2024, 3, 6, 10, 30, 0, 0, time.UTC))
	if !ok || v != 78 {
		t.Errorf("EnergyAt = %v, %v; want 78, true", v, ok)
	}
	if _, ok := set.EnergyAt(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)); ok {
		t.Error("Expected dates outside the projection to be missing")
	}
}

func TestEngineInterruptionsOutsideProjection(t *testing.T) {
	e := newEngine()
	got := e.Interruptions(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)) // Monday
	if got.Expected != 5 {
		t.Errorf("Expected 5 Monday interruptions, got %d", got.Expected)
	}
}
