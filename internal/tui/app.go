// Package tui provides the interactive terminal UI for Potok.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/potok/internal/client"
	"github.com/fentz26/potok/internal/controlplane"
	"github.com/fentz26/potok/internal/models"
	"github.com/fentz26/potok/internal/report"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	tabStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 2)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// tasksTab is the tab after the report sections.
const tasksTab = "Tasks"

var tabs = func() []string {
	out := make([]string, 0, len(report.Sections)+1)
	for _, s := range report.Sections {
		out = append(out, string(s))
	}
	return append(out, tasksTab)
}()

const requestTimeout = 15 * time.Second

// App is the main TUI application model.
type App struct {
	client   *client.Client
	userID   string
	result   *models.DistributionResult
	mit      *models.MitResult
	tab      int
	viewport viewport.Model
	tasks    *TaskListModel
	input    textinput.Model
	adding   bool
	width    int
	height   int
	message  string
	loading  bool
	online   bool
}

// New creates a new TUI application for userID.
func New(c *client.Client, userID string) *App {
	ti := textinput.New()
	ti.Placeholder = "Title of the new task"
	ti.CharLimit = 256
	ti.Width = 60

	return &App{
		client:   c,
		userID:   userID,
		viewport: viewport.New(80, 20),
		tasks:    NewTaskListModel(),
		input:    ti,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.checkDaemon(), a.distribute(), a.fetchSorted(), a.fetchMIT())
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.adding {
			return a, a.updateInput(msg)
		}
		if a.currentTab() == tasksTab && a.tasks.Filtering() {
			return a, a.tasks.Update(msg)
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "tab", "right", "l":
			a.setTab((a.tab + 1) % len(tabs))
			return a, nil
		case "shift+tab", "left", "h":
			a.setTab((a.tab + len(tabs) - 1) % len(tabs))
			return a, nil
		case "r":
			a.message = "Distributing..."
			return a, tea.Batch(a.distribute(), a.fetchSorted(), a.fetchMIT())
		case "a":
			a.adding = true
			a.input.SetValue("")
			return a, a.input.Focus()
		case "d":
			if a.currentTab() == tasksTab {
				if sel := a.tasks.SelectedTask(); sel != nil {
					return a, a.completeTask(sel.Task)
				}
			}
			return a, nil
		}

		if a.currentTab() == tasksTab {
			return a, a.tasks.Update(msg)
		}
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = max(5, msg.Height-6)
		a.tasks.SetSize(msg.Width, max(5, msg.Height-6))
		a.input.Width = msg.Width - 6
		a.refreshViewport()

	case distributionLoadedMsg:
		a.loading = false
		a.result = msg.result
		a.message = fmt.Sprintf("✓ %d scheduled, %d unfeasible", msg.result.Report.ScheduledCount, msg.result.Report.UnfeasibleCount)
		a.refreshViewport()

	case sortedLoadedMsg:
		a.tasks.SetTasks(msg.sorted.Tasks)

	case mitLoadedMsg:
		a.mit = msg.mit

	case daemonStatusMsg:
		a.online = msg.online

	case commandResultMsg:
		a.message = msg.message
		return a, tea.Batch(a.fetchSorted(), a.fetchMIT())

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.adding = false
		a.input.Blur()
		return nil
	case "enter":
		title := strings.TrimSpace(a.input.Value())
		a.adding = false
		a.input.Blur()
		if title == "" {
			return nil
		}
		return a.createTask(title)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return cmd
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.online {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("POTOK") + "  " + daemonStatus
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(a.userID)
	if a.mit != nil {
		header += "  " + lipgloss.NewStyle().Foreground(warningColor).Render("★ "+a.mit.Title)
	}
	b.WriteString(header + "\n")
	b.WriteString(a.renderTabs() + "\n")

	if a.currentTab() == tasksTab {
		b.WriteString(a.tasks.View())
	} else if a.loading && a.result == nil {
		b.WriteString("\n  Distributing tasks...\n")
	} else {
		b.WriteString(a.viewport.View())
	}
	b.WriteString("\n")

	if a.adding {
		b.WriteString(inputBoxStyle.Render(a.input.View()) + "\n")
	} else if a.message != "" {
		style := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			style = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString(style.Render(a.message) + "\n")
	}

	status := " Tab:switch | r:redistribute | a:add | q:quit"
	if a.currentTab() == tasksTab {
		status = fmt.Sprintf(" Tasks: %d | ↑↓:nav | /:filter | d:done | a:add | Tab:switch | q:quit", a.tasks.Len())
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))
	return b.String()
}

func (a *App) renderTabs() string {
	parts := make([]string, len(tabs))
	for i, t := range tabs {
		if i == a.tab {
			parts[i] = activeTabStyle.Render(t)
		} else {
			parts[i] = tabStyle.Render(t)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a *App) currentTab() string {
	return tabs[a.tab]
}

func (a *App) setTab(i int) {
	a.tab = i
	a.refreshViewport()
}

func (a *App) refreshViewport() {
	if a.result == nil || a.currentTab() == tasksTab {
		return
	}
	md := report.Part(a.result, report.Section(a.currentTab()))
	width := a.width - 4
	if width < 20 {
		width = 76
	}
	a.viewport.SetContent(report.RenderWidth(md, width))
	a.viewport.GotoTop()
}

func (a *App) distribute() tea.Cmd {
	a.loading = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		result, err := a.client.Distribute(ctx, a.userID, controlplane.DistributeRequest{})
		if err != nil {
			return errMsg{err}
		}
		return distributionLoadedMsg{result}
	}
}

func (a *App) fetchSorted() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		sorted, err := a.client.SortedTasks(ctx, a.userID)
		if err != nil {
			return errMsg{err}
		}
		return sortedLoadedMsg{sorted}
	}
}

func (a *App) fetchMIT() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		resp, err := a.client.MIT(ctx, a.userID)
		if err != nil {
			return errMsg{err}
		}
		return mitLoadedMsg{resp.MIT}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := a.client.Health(ctx)
		return daemonStatusMsg{online: err == nil}
	}
}

func (a *App) createTask(title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		task, err := a.client.CreateTask(ctx, models.Task{UserID: a.userID, Title: title, EstimatedDuration: 30})
		if err != nil {
			return errMsg{err}
		}
		return commandResultMsg{fmt.Sprintf("✓ Created task %s", shortID(task.ID))}
	}
}

func (a *App) completeTask(task models.Task) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if _, err := a.client.UpdateTaskStatus(ctx, a.userID, task.ID, models.TaskStatusCompleted); err != nil {
			return errMsg{err}
		}
		return commandResultMsg{fmt.Sprintf("✓ Completed %s", task.Title)}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type distributionLoadedMsg struct {
	result *models.DistributionResult
}

type sortedLoadedMsg struct {
	sorted *controlplane.SortedTasks
}

type mitLoadedMsg struct {
	mit *models.MitResult
}

type daemonStatusMsg struct {
	online bool
}

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err error
}
