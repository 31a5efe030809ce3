package scheduler

import (
	"sort"
	"time"

	"github.com/fentz26/potok/internal/models"
)

type interval struct {
	start, end time.Time
}

func (iv interval) overlaps(start, end time.Time) bool {
	return iv.start.Before(end) && start.Before(iv.end)
}

// Calendar is the set of busy intervals of one run. Intervals are half-open.
type Calendar struct {
	busy []interval
}

// NewCalendar registers every occurrence already carried by tasks.
func NewCalendar(tasks []models.Task) *Calendar {
	c := &Calendar{}
	for _, t := range tasks {
		for _, occ := range t.ScheduledDates {
			c.Add(occ.StartTime, occ.EndTime())
		}
	}
	return c
}

// Add marks [start, end) as busy. Empty intervals are ignored.
func (c *Calendar) Add(start, end time.Time) {
	if !end.After(start) {
		return
	}
	c.busy = append(c.busy, interval{start: start, end: end})
}

// Len returns the number of busy intervals.
func (c *Calendar) Len() int {
	return len(c.busy)
}

// Busy reports whether any part of [start, end) is taken.
func (c *Calendar) Busy(start, end time.Time) bool {
	for _, iv := range c.busy {
		if iv.overlaps(start, end) {
			return true
		}
	}
	return false
}

// within returns the intervals touching [start, end), sorted by start.
func (c *Calendar) within(start, end time.Time) []interval {
	var out []interval
	for _, iv := range c.busy {
		if iv.overlaps(start, end) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}
