// Package report renders distribution results as markdown for terminals.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fentz26/potok/internal/models"
)

// Section names one part of a distribution report.
type Section string

const (
	SectionSchedule        Section = "Schedule"
	SectionUnfeasible      Section = "Unfeasible"
	SectionRecommendations Section = "Recommendations"
	SectionWorkload        Section = "Workload"
)

// Sections is the display order of a full report.
var Sections = []Section{SectionSchedule, SectionUnfeasible, SectionRecommendations, SectionWorkload}

// Render turns markdown into styled terminal output. On failure the raw
// markdown is returned.
func Render(md string) string {
	out, err := glamour.Render(md, "dark")
	if err != nil {
		return md
	}
	return out
}

// RenderWidth is Render with word wrap at width columns.
func RenderWidth(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Distribution is the complete markdown report of a run.
func Distribution(r *models.DistributionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Distribution for %s\n\n", r.UserID)
	fmt.Fprintf(&b, "%d of %d tasks scheduled, %d unfeasible.\n\n",
		r.Report.ScheduledCount, r.Report.TotalTasks, r.Report.UnfeasibleCount)
	if r.MIT != nil {
		b.WriteString(MIT(r.MIT))
		b.WriteString("\n")
	}
	for _, s := range Sections {
		b.WriteString(Part(r, s))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "_%s · %s · %dms_\n", r.Metadata.AlgorithmVersion, r.Metadata.CorrelationID, r.Metadata.ProcessingTimeMs)
	return b.String()
}

// Part renders one section of r.
func Part(r *models.DistributionResult, s Section) string {
	switch s {
	case SectionSchedule:
		return Schedule(r.Scheduled)
	case SectionUnfeasible:
		return Unfeasible(r.Unfeasible)
	case SectionRecommendations:
		return Recommendations(r.Recommendations, r.Report.Warnings)
	case SectionWorkload:
		return Workload(r.Report.Workload, r.Report.Statistics)
	}
	return ""
}

// Schedule lists the placed occurrences grouped by day.
func Schedule(tasks []models.Task) string {
	var b strings.Builder
	b.WriteString("## Schedule\n\n")
	type row struct {
		occ  models.ScheduledOccurrence
		task models.Task
	}
	var rows []row
	for _, t := range tasks {
		for _, occ := range t.ScheduledDates {
			rows = append(rows, row{occ, t})
		}
	}
	if len(rows) == 0 {
		b.WriteString("Nothing scheduled.\n")
		return b.String()
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].occ.StartTime.Before(rows[j].occ.StartTime) })

	day := ""
	for _, r := range rows {
		if d := r.occ.StartTime.Format("Monday, Jan 2"); d != day {
			if day != "" {
				b.WriteString("\n")
			}
			day = d
			fmt.Fprintf(&b, "### %s\n\n| Time | Task | Priority | Category |\n|---|---|---|---|\n", day)
		}
		fmt.Fprintf(&b, "| %s-%s | %s | %d | %s |\n",
			r.occ.StartTime.Format("15:04"), r.occ.EndTime().Format("15:04"),
			escape(r.task.Title), r.task.Priority, r.task.Category)
	}
	return b.String()
}

// Unfeasible lists the tasks that could not be placed.
func Unfeasible(tasks []models.UnfeasibleTask) string {
	var b strings.Builder
	b.WriteString("## Unfeasible\n\n")
	if len(tasks) == 0 {
		b.WriteString("Every task found a slot.\n")
		return b.String()
	}
	for _, u := range tasks {
		fmt.Fprintf(&b, "- **%s**: %s\n", escape(u.Task.Title), u.Reason)
	}
	return b.String()
}

// Recommendations lists advice, most severe first, followed by warnings.
func Recommendations(recs []models.Recommendation, warnings []models.Warning) string {
	var b strings.Builder
	b.WriteString("## Recommendations\n\n")
	if len(recs) == 0 && len(warnings) == 0 {
		b.WriteString("No recommendations.\n")
		return b.String()
	}
	sorted := append([]models.Recommendation(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority.Rank() < sorted[j].Priority.Rank() })
	for _, r := range sorted {
		fmt.Fprintf(&b, "- `%s` %s\n", r.Priority, r.Message)
	}
	if len(warnings) > 0 {
		b.WriteString("\n### Warnings\n\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "- `%s` **%s**: %s\n", w.Level, escape(w.TaskTitle), w.Message)
			for _, alt := range w.Alternatives {
				fmt.Fprintf(&b, "  - %s\n", alt)
			}
		}
	}
	return b.String()
}

// Workload tabulates the per-day load.
func Workload(days []models.WorkloadAnalysis, stats models.WorkloadStatistics) string {
	var b strings.Builder
	b.WriteString("## Workload\n\n")
	if len(days) == 0 {
		b.WriteString("No working days in the horizon.\n")
		return b.String()
	}
	b.WriteString("| Day | Scheduled | Available | Load | Level |\n|---|---|---|---|---|\n")
	for _, d := range days {
		level := string(d.Level)
		if d.IsOverloaded {
			level = "**" + level + "**"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %.0f%% | %s |\n",
			d.Date, minutes(d.ScheduledMinutes), minutes(d.AvailableMinutes), d.Percentage, level)
	}
	fmt.Fprintf(&b, "\nAverage %.0f%%, peak %.0f%%, %d overloaded, %d optimal.\n",
		stats.AveragePercentage, stats.MaxPercentage, stats.OverloadedDays, stats.OptimalDays)
	return b.String()
}

// MIT describes the most important task.
func MIT(m *models.MitResult) string {
	if m == nil {
		return "## Most Important Task\n\nNo active tasks.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Most Important Task\n\n**%s** (%s)\n\n", escape(m.Title), minutes(m.EstimatedDuration))
	fmt.Fprintf(&b, "%s\n\n", m.Reason)
	fmt.Fprintf(&b, "- Score: %.2f (priority %.2f, state match %.2f, urgency %.2f)\n",
		m.FinalScore, m.PriorityScore, m.StateMatchScore, m.DeadlineUrgency)
	if m.RecommendedTime != "" {
		fmt.Fprintf(&b, "- Best time: %s\n", m.RecommendedTime)
	}
	return b.String()
}

// Prioritized ranks tasks in a table.
func Prioritized(tasks []models.PrioritizedTask) string {
	var b strings.Builder
	b.WriteString("## Prioritized Tasks\n\n")
	if len(tasks) == 0 {
		b.WriteString("No active tasks.\n")
		return b.String()
	}
	b.WriteString("| # | Task | Score | Fit | Advice |\n|---|---|---|---|---|\n")
	for i, pt := range tasks {
		advice := pt.Recommendation
		if pt.ShouldDefer {
			advice = "defer: " + advice
		}
		fmt.Fprintf(&b, "| %d | %s | %.2f | %.2f | %s |\n",
			i+1, escape(pt.Task.Title), pt.CalculatedPriority, pt.StateMatchScore, escape(advice))
	}
	return b.String()
}

// Rescheduled lists proposed moves.
func Rescheduled(sugs []models.RescheduleSuggestion) string {
	var b strings.Builder
	b.WriteString("## Rescheduled\n\n")
	if len(sugs) == 0 {
		b.WriteString("No tasks need rescheduling.\n")
		return b.String()
	}
	for _, s := range sugs {
		fmt.Fprintf(&b, "- **%s** → %s (%s)\n", escape(s.Title), s.SuggestedTime, s.Reason)
	}
	return b.String()
}

// History lists recorded events, newest first.
func History(events []models.Event) string {
	var b strings.Builder
	b.WriteString("## History\n\n")
	if len(events) == 0 {
		b.WriteString("No events recorded.\n")
		return b.String()
	}
	b.WriteString("| When | Event | Task |\n|---|---|---|\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", ev.CreatedAt.Local().Format(time.DateTime), ev.Type, ev.TaskID)
	}
	return b.String()
}

func minutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	if m%60 == 0 {
		return fmt.Sprintf("%dh", m/60)
	}
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}

func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
