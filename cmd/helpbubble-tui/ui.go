package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

type healthDoneMsg struct {
	report healthReport
}

type askDoneMsg struct {
	outcome submitOutcome
}

type contextsDoneMsg struct {
	topics []string
}

type healthTickMsg time.Time

type uiTheme struct {
	header     lipgloss.Style
	footer     lipgloss.Style
	inputPanel lipgloss.Style

	title      lipgloss.Style
	statusGood lipgloss.Style
	statusBad  lipgloss.Style

	userLabel      lipgloss.Style
	assistantLabel lipgloss.Style
	errorLabel     lipgloss.Style
	errorText      lipgloss.Style
	muted          lipgloss.Style
}

func newTheme() uiTheme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")
	panelBg := lipgloss.Color("#1b0f35")

	return uiTheme{
		header: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		title:          lipgloss.NewStyle().Foreground(mint).Bold(true),
		statusGood:     lipgloss.NewStyle().Foreground(mint).Bold(true),
		statusBad:      lipgloss.NewStyle().Foreground(pink).Bold(true),
		userLabel:      lipgloss.NewStyle().Foreground(mint).Bold(true),
		assistantLabel: lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorLabel:     lipgloss.NewStyle().Foreground(pink).Bold(true),
		errorText:      lipgloss.NewStyle().Foreground(pink),
		muted:          lipgloss.NewStyle().Foreground(muted),
	}
}

type model struct {
	cfg  appConfig
	orch *orchestrator

	ready          bool
	checkingHealth bool
	lastHealth     healthReport
	topics         []string
	statusLine     string
	exampleIdx     int
	lastRev        uint64
	healthInterval time.Duration

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

func newModel(cfg appConfig, logger zerolog.Logger) model {
	sess := newSession()
	client := newQAClient(
		cfg.apiBase,
		time.Duration(cfg.askTimeoutSeconds)*time.Second,
		time.Duration(cfg.healthTimeoutSeconds)*time.Second,
		logger,
	)
	orch := newOrchestrator(sess, client, logger)
	orch.bootstrap()

	input := textinput.New()
	input.Prompt = "❯ "
	input.Placeholder = "Ask about returns, shipping, payments..."
	input.CharLimit = 500
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4

	return model{
		cfg:            cfg,
		orch:           orch,
		checkingHealth: true,
		statusLine:     "starting...",
		healthInterval: time.Duration(cfg.healthIntervalSeconds) * time.Second,
		input:          input,
		timeline:       timeline,
		spinner:        sp,
		theme:          newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		textinput.Blink,
		m.healthCmd(),
		m.contextsCmd(),
	}
	if m.healthInterval > 0 {
		cmds = append(cmds, healthTickEvery(m.healthInterval))
	}
	return tea.Batch(cmds...)
}

func (m model) healthCmd() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		return healthDoneMsg{report: orch.checkHealth()}
	}
}

func (m model) askCmd(question string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		return askDoneMsg{outcome: orch.submit(question)}
	}
}

func (m model) contextsCmd() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		return contextsDoneMsg{topics: orch.fetchTopics()}
	}
}

func healthTickEvery(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return healthTickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case healthDoneMsg:
		m.checkingHealth = false
		m.lastHealth = msg.report
		if msg.report.reachable {
			m.statusLine = "service reachable"
		} else {
			m.statusLine = "service unreachable"
		}
	case contextsDoneMsg:
		m.topics = msg.topics
	case askDoneMsg:
		if msg.outcome.accepted {
			if msg.outcome.reply.IsError {
				m.statusLine = "answer failed"
			} else {
				m.statusLine = "answered"
			}
			m.renderTimeline()
		}
	case healthTickMsg:
		if !m.checkingHealth {
			m.checkingHealth = true
			cmds = append(cmds, m.healthCmd())
		}
		if m.healthInterval > 0 {
			cmds = append(cmds, healthTickEvery(m.healthInterval))
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.orch.session.rev() != m.lastRev {
			m.renderTimeline()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		m.renderTimeline()
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if !m.orch.session.isLoading() && len(exampleQuestions) > 0 {
				m.input.SetValue(exampleQuestions[m.exampleIdx%len(exampleQuestions)])
				m.input.CursorEnd()
				m.exampleIdx++
			}
		case "ctrl+r":
			if !m.checkingHealth {
				m.checkingHealth = true
				m.statusLine = "checking service..."
				cmds = append(cmds, m.healthCmd())
			}
		case "enter":
			question := m.input.Value()
			if strings.TrimSpace(question) != "" && !m.orch.session.isLoading() {
				m.input.SetValue("")
				m.statusLine = "waiting for an answer..."
				cmds = append(cmds, m.askCmd(question))
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			cmds = append(cmds, cmd)
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return "loading helpbubble..."
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.timeline.View())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *model) renderHeader() string {
	status := m.theme.statusBad.Render("● offline")
	if m.orch.session.isConnected() {
		status = m.theme.statusGood.Render("● online")
	}
	if m.checkingHealth {
		status = m.theme.muted.Render("● checking...")
	}
	modelNote := ""
	if m.lastHealth.modelName != "" {
		modelNote = m.theme.muted.Render(" · model " + m.lastHealth.modelName)
	}
	title := m.theme.title.Render("HelpBubble Support Chat")
	return m.theme.header.Width(maxInt(24, m.width-2)).Render(title + "  " + status + modelNote)
}

func (m *model) renderInput() string {
	view := m.input.View()
	if m.orch.session.isLoading() {
		view = m.spinner.View() + " " + m.theme.muted.Render("waiting for an answer...")
	}
	return m.theme.inputPanel.Width(maxInt(24, m.width-2)).Render(view)
}

func (m *model) renderFooter() string {
	parts := make([]string, 0, 3)
	if len(m.topics) > 0 {
		parts = append(parts, "topics: "+strings.Join(m.topics, ", "))
	}
	if strings.TrimSpace(m.statusLine) != "" {
		parts = append(parts, m.statusLine)
	}
	parts = append(parts, "enter ask · tab example · ctrl+r recheck · esc quit")
	return m.theme.footer.Width(maxInt(24, m.width-2)).Render(compactSingleLine(strings.Join(parts, " · "), maxInt(24, m.width-6)))
}

func (m *model) resize() {
	headerHeight := lipgloss.Height(m.renderHeader())
	inputHeight := lipgloss.Height(m.renderInput())
	footerHeight := lipgloss.Height(m.renderFooter())

	contentHeight := m.height - headerHeight - inputHeight - footerHeight - 3
	if contentHeight < 3 {
		contentHeight = 3
	}
	m.timeline.Width = maxInt(24, m.width-2)
	m.timeline.Height = contentHeight
	m.input.Width = maxInt(20, m.width-10)
}

func (m *model) renderTimeline() {
	messages := m.orch.session.all()
	width := maxInt(24, m.timeline.Width-4)

	lines := make([]string, 0, len(messages)*4)
	for _, msg := range messages {
		label := m.theme.assistantLabel
		name := "helpbubble"
		if msg.Sender == senderUser {
			label = m.theme.userLabel
			name = "you"
		}
		if msg.IsError {
			label = m.theme.errorLabel
		}
		lines = append(lines, label.Render(name)+" "+m.theme.muted.Render(msg.Timestamp))

		body := wrapText(msg.Text, width)
		if msg.IsError {
			body = m.theme.errorText.Render(body)
		}
		lines = append(lines, body)

		if msg.Confidence != nil && msg.ResponseSec != nil {
			lines = append(lines, m.theme.muted.Render(fmt.Sprintf("confidence %.0f%% · %.2fs", *msg.Confidence*100, *msg.ResponseSec)))
		}
		lines = append(lines, "")
	}

	m.timeline.SetContent(strings.Join(lines, "\n"))
	m.lastRev = m.orch.session.rev()
	m.timeline.GotoBottom()
}
