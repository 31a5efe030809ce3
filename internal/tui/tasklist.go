package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/potok/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	fitGood  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	fitFair  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	fitPoor  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
	deferTag = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
)

// TaskItem implements list.Item for a ranked task.
type TaskItem struct {
	Rank int
	models.PrioritizedTask
}

func (i TaskItem) FilterValue() string { return i.Task.Title }
func (i TaskItem) Title() string       { return fmt.Sprintf("%d. %s", i.Rank, i.Task.Title) }
func (i TaskItem) Description() string {
	desc := fmt.Sprintf("%s • score %.2f • %dm", formatFit(i.StateMatchScore), i.CalculatedPriority, i.Task.EstimatedDuration)
	if i.ShouldDefer {
		desc += " • " + deferTag.Render("defer")
	}
	return desc
}

func formatFit(score float64) string {
	label := fmt.Sprintf("● fit %.2f", score)
	switch {
	case score >= 0.7:
		return fitGood.Render(label)
	case score >= 0.4:
		return fitFair.Render(label)
	default:
		return fitPoor.Render(label)
	}
}

// TaskListModel shows the prioritized tasks of the user.
type TaskListModel struct {
	list   list.Model
	width  int
	height int
}

// NewTaskListModel creates an empty task list.
func NewTaskListModel() *TaskListModel {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Prioritized tasks"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	l.Styles.Title = listTitleStyle

	return &TaskListModel{list: l}
}

// SetSize sets the list dimensions
func (m *TaskListModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.list.SetSize(w, h)
}

// SetTasks replaces the listed tasks, keeping their order.
func (m *TaskListModel) SetTasks(tasks []models.PrioritizedTask) {
	items := make([]list.Item, len(tasks))
	for i, pt := range tasks {
		items[i] = TaskItem{Rank: i + 1, PrioritizedTask: pt}
	}
	m.list.SetItems(items)
}

// Len returns the number of listed tasks.
func (m *TaskListModel) Len() int {
	return len(m.list.Items())
}

// SelectedTask returns the currently selected task
func (m *TaskListModel) SelectedTask() *TaskItem {
	if item := m.list.SelectedItem(); item != nil {
		task := item.(TaskItem)
		return &task
	}
	return nil
}

// Filtering reports whether the filter prompt has the keyboard.
func (m *TaskListModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// Update forwards navigation and filtering keys to the list.
func (m *TaskListModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return cmd
}

// View renders the task list
func (m *TaskListModel) View() string {
	return m.list.View()
}
