package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/clerk/internal/audit"
	"github.com/aristath/clerk/internal/queue"
)

// StatusModel is the live dashboard: queue depths and pending drafts on the
// left, recent audit activity on the right, refreshed on a timer. It reads
// the directories directly, so it works whether or not a loop is running.
type StatusModel struct {
	dirs            queue.Dirs
	audit           *audit.Store
	mainViewport    viewport.Model
	sidebarViewport viewport.Model
	width           int
	height          int
	focusedPane     PaneType
	lastUpdate      time.Time
}

// PaneType represents which pane is focused
type PaneType int

const (
	QueuePane PaneType = iota
	AuditPane
)

// NewStatusModel creates the dashboard model. auditStore may be nil.
func NewStatusModel(dirs queue.Dirs, auditStore *audit.Store) StatusModel {
	return StatusModel{
		dirs:            dirs,
		audit:           auditStore,
		mainViewport:    viewport.New(80, 30),
		sidebarViewport: viewport.New(30, 30),
		focusedPane:     QueuePane,
		lastUpdate:      time.Now(),
	}
}

func (m StatusModel) Init() tea.Cmd {
	return m.tick()
}

func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "Q":
			return m, tea.Quit

		case "tab":
			if m.focusedPane == QueuePane {
				m.focusedPane = AuditPane
			} else {
				m.focusedPane = QueuePane
			}
			return m, nil

		case "r", "R":
			m.lastUpdate = time.Now()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		mainWidth := int(float64(msg.Width) * 0.60)
		sideWidth := msg.Width - mainWidth - 6

		m.mainViewport.Width = mainWidth - 4
		m.mainViewport.Height = msg.Height - 8

		m.sidebarViewport.Width = sideWidth - 4
		m.sidebarViewport.Height = msg.Height - 8
		return m, nil

	case TickMsg:
		m.lastUpdate = time.Time(msg)
		return m, m.tick()
	}

	if m.focusedPane == QueuePane {
		m.mainViewport, cmd = m.mainViewport.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		m.sidebarViewport, cmd = m.sidebarViewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m StatusModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	mainWidth := int(float64(m.width) * 0.60)
	sideWidth := m.width - mainWidth - 2

	header := m.renderHeader()
	mainContent := m.renderQueueView()
	sideContent := m.renderAuditSidebar()

	mainColor := lipgloss.Color("63")
	sideColor := lipgloss.Color("205")
	if m.focusedPane == QueuePane {
		mainColor = lipgloss.Color("cyan")
	} else {
		sideColor = lipgloss.Color("cyan")
	}

	mainStyle := lipgloss.NewStyle().
		Width(mainWidth).
		Height(m.height - 4).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mainColor).
		Padding(1, 2)

	sideStyle := lipgloss.NewStyle().
		Width(sideWidth).
		Height(m.height - 4).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(sideColor).
		Padding(1, 2)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		mainStyle.Render(mainContent),
		sideStyle.Render(sideContent))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderFooter())
}

func (m *StatusModel) renderHeader() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 2)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	info := fmt.Sprintf("Base: %s | Updated: %s",
		m.dirs.Base,
		m.lastUpdate.Format("15:04:05"))

	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("Clerk Pipeline"),
		infoStyle.Render(info),
	)
}

func (m *StatusModel) renderQueueView() string {
	var content strings.Builder

	content.WriteString(lipgloss.NewStyle().Bold(true).Render("Queues:"))
	content.WriteString("\n")
	content.WriteString(RenderQueueTable(m.dirs))
	content.WriteString("\n")

	content.WriteString(lipgloss.NewStyle().Bold(true).Render("Awaiting approval:"))
	content.WriteString("\n")
	content.WriteString(m.renderPendingDrafts())

	m.mainViewport.SetContent(content.String())
	return m.mainViewport.View()
}

func (m *StatusModel) renderPendingDrafts() string {
	files, err := queue.Scan(m.dirs.PendingApproval)
	if err != nil {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Render(err.Error())
	}
	if len(files) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Render("  Nothing waiting on a human")
	}

	var drafts strings.Builder
	for _, f := range files {
		line := lipgloss.NewStyle().
			Foreground(lipgloss.Color("yellow")).
			Render(fmt.Sprintf("  ⧗ %s", filepath.Base(f)))
		drafts.WriteString(line)
		drafts.WriteString("\n")
	}
	return drafts.String()
}

func (m *StatusModel) renderAuditSidebar() string {
	var content strings.Builder

	content.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Render("Recent Activity"))
	content.WriteString("\n\n")
	content.WriteString(m.renderRecentAudit(15))

	m.sidebarViewport.SetContent(content.String())
	return m.sidebarViewport.View()
}

func (m *StatusModel) renderRecentAudit(count int) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	if m.audit == nil {
		return dim.Italic(true).Render("Auditing disabled")
	}

	now := time.Now()
	entries, err := m.audit.Query(now.AddDate(0, 0, -1), now)
	if err != nil {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Render(err.Error())
	}
	if len(entries) == 0 {
		return dim.Italic(true).Render("No activity yet")
	}
	if len(entries) > count {
		entries = entries[len(entries)-count:]
	}

	var log strings.Builder
	for _, e := range entries {
		var icon string
		var color lipgloss.Color
		switch e.Result {
		case "success":
			icon = "✓"
			color = lipgloss.Color("green")
		case "failed":
			icon = "✗"
			color = lipgloss.Color("red")
		case "partial":
			icon = "◐"
			color = lipgloss.Color("yellow")
		default:
			icon = "•"
			color = lipgloss.Color("240")
		}

		ts := e.Timestamp
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ts = t.Format("15:04:05")
		}

		line := lipgloss.NewStyle().
			Foreground(color).
			Render(fmt.Sprintf("%s [%s] %s", icon, ts, e.ActionType))
		log.WriteString(line)
		log.WriteString("\n")
	}
	return log.String()
}

func (m *StatusModel) renderFooter() string {
	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Padding(1, 2)

	return helpStyle.Render("[Tab] Switch pane | [R] Refresh | [Q] Quit")
}

func (m StatusModel) tick() tea.Cmd {
	return tea.Tick(time.Second*2, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// TickMsg drives the periodic refresh.
type TickMsg time.Time

// RenderQueueTable renders queue depths as aligned rows. Shared by the
// dashboard and the one-shot status command.
func RenderQueueTable(dirs queue.Dirs) string {
	rows := []struct {
		label string
		dir   string
	}{
		{"inbox", dirs.Inbox},
		{"new-work", dirs.NewWork},
		{"pending-approval", dirs.PendingApproval},
		{"approved", dirs.Approved},
		{"done", dirs.Done},
		{"error-reports", dirs.ErrorReports},
		{"manual-action-drafts", dirs.ManualActions},
	}

	var b strings.Builder
	for _, row := range rows {
		files, err := queue.Scan(row.dir)
		if err != nil {
			b.WriteString(fmt.Sprintf("  %-22s ?\n", row.label))
			continue
		}

		color := lipgloss.Color("240")
		switch {
		case row.label == "error-reports" && len(files) > 0:
			color = lipgloss.Color("red")
		case row.label == "pending-approval" && len(files) > 0:
			color = lipgloss.Color("yellow")
		case len(files) > 0:
			color = lipgloss.Color("green")
		}

		line := lipgloss.NewStyle().
			Foreground(color).
			Render(fmt.Sprintf("  %-22s %d", row.label, len(files)))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderOneShot is the non-interactive status view for plain terminals.
func RenderOneShot(dirs queue.Dirs) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Render("Clerk Pipeline")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		fmt.Sprintf("Base: %s", dirs.Base),
		"",
		RenderQueueTable(dirs),
	)
}
