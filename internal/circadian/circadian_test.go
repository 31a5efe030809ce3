package circadian

import (
	"testing"
	"time"

	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/models"
)

func TestModelTables(t *testing.T) {
	m := New(config.DefaultConfig())

	if got := m.HourFactor(3); got != 0.5 {
		t.Errorf("Expected night trough 0.5, got %v", got)
	}
	if got := m.HourFactor(10); got != 1.3 {
		t.Errorf("Expected mid-morning peak 1.3, got %v", got)
	}
	if got := m.HourFactor(42); got != 1 {
		t.Errorf("Expected neutral factor for out-of-range hour, got %v", got)
	}
	if got := m.DayFactor(time.Wednesday); got != 1.2 {
		t.Errorf("Expected Wednesday 1.2, got %v", got)
	}
	if got := m.DayFactor(time.Monday); got != 0.6 {
		t.Errorf("Expected Monday 0.6, got %v", got)
	}
}

func TestModelMissingEntriesAreNeutral(t *testing.T) {
	cfg := config.DefaultConfig()
	delete(cfg.CircadianFactors, 14)
	delete(cfg.Interruptions.ByWeekday, time.Tuesday)
	m := New(cfg)

	if got := m.HourFactor(14); got != 1 {
		t.Errorf("Expected 1.0 for missing hour, got %v", got)
	}
	if got := m.InterruptionsFor(time.Tuesday).Expected; got != 3 {
		t.Errorf("Expected default 3 interruptions, got %d", got)
	}
}

func TestPhaseAndPeak(t *testing.T) {
	m := New(config.DefaultConfig())
	day := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		hour  int
		phase models.CircadianPhase
		peak  bool
	}{
		{9, models.PhasePeak, true},
		{11, models.PhasePeak, true},
		{16, models.PhaseHigh, false},
		{13, models.PhaseNormal, false},
		{22, models.PhaseLow, false},
	}
	for _, tt := range tests {
		at := day.Add(time.Duration(tt.hour) * time.Hour)
		ctx := m.Context(at)
		if ctx.Phase != tt.phase {
			t.Errorf("hour %d: phase = %s, want %s", tt.hour, ctx.Phase, tt.phase)
		}
		if ctx.IsPeak != tt.peak {
			t.Errorf("hour %d: peak = %v, want %v", tt.hour, ctx.IsPeak, tt.peak)
		}
	}
}

func TestInterruptionsFor(t *testing.T) {
	m := New(config.DefaultConfig())
	got := m.InterruptionsFor(time.Monday)
	if got.Expected != 5 || got.ExpectedDuration != 50 || got.ExpectedRecovery != 100 {
		t.Errorf("unexpected Monday interruptions: %+v", got)
	}
	if got.LostMinutes() != 150 {
		t.Errorf("Expected 150 lost minutes, got %d", got.LostMinutes())
	}
}

func TestMeanFactor(t *testing.T) {
	m := New(config.DefaultConfig())
	if got := m.MeanFactor(nil); got != 1 {
		t.Errorf("Expected neutral mean for empty set, got %v", got)
	}
	got := m.MeanFactor([]int{9, 10})
	if got != 1.3 {
		t.Errorf("Expected 1.3, got %v", got)
	}
}
