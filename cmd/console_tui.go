// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Log entry kinds
const (
	entryInfo = iota
	entryCommand
	entryResult
	entryNotification
	entryError
)

type logEntry struct {
	timestamp time.Time
	kind      int
	text      string
}

// actionKind is what a line typed into the console asks for.
type actionKind int

const (
	actionNone actionKind = iota
	actionCommand
	actionInput
	actionSetType
	actionStats
	actionClear
	actionQuit
)

type consoleAction struct {
	kind         actionKind
	name         string
	args         []any
	text         string
	responseType aurora.ResponseType
}

// consoleModel is the Bubble Tea model for the console
type consoleModel struct {
	session *consoleSession

	input    textinput.Model
	viewport viewport.Model

	log           []logEntry
	maxLogEntries int

	responseType   aurora.ResponseType
	state          aurora.State
	inFlight       string
	inputRequested bool

	width    int
	height   int
	ready    bool
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

type notificationBatchMsg struct {
	events []aurora.Event
}

type stateMsg struct {
	next, prev aurora.State
}

type resultMsg struct {
	command string
	result  *aurora.Result
	err     error
}

type inputSentMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialConsoleModel(s *consoleSession, responseType aurora.ResponseType) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "os-info"
	ti.Prompt = "> "
	ti.CharLimit = aurora.MaxCommandLength
	ti.Focus()

	m := consoleModel{
		session:       s,
		input:         ti,
		viewport:      viewport.New(80, 16),
		log:           make([]logEntry, 0),
		maxLogEntries: 1000,
		responseType:  responseType,
		state:         s.conn.State(),
		width:         80,
		height:        24,
	}
	m.addLogEntry(entryInfo, "Connected: "+s.connInfo)
	return m
}

// parseConsoleLine turns a typed line into an action. Directives start with
// ':'; anything else is a command line split on whitespace.
func parseConsoleLine(line string) (consoleAction, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return consoleAction{kind: actionNone}, nil
	}

	if !strings.HasPrefix(line, ":") {
		fields := strings.Fields(line)
		args := make([]any, 0, len(fields)-1)
		for _, f := range fields[1:] {
			args = append(args, f)
		}
		return consoleAction{kind: actionCommand, name: fields[0], args: args, text: line}, nil
	}

	directive, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch directive {
	case "type":
		t, err := aurora.ParseResponseType(rest)
		if err != nil {
			return consoleAction{}, err
		}
		return consoleAction{kind: actionSetType, responseType: t}, nil
	case "input":
		return consoleAction{kind: actionInput, text: rest}, nil
	case "stats":
		return consoleAction{kind: actionStats}, nil
	case "clear":
		return consoleAction{kind: actionClear}, nil
	case "quit", "q":
		return consoleAction{kind: actionQuit}, nil
	default:
		return consoleAction{}, fmt.Errorf("unknown directive :%s", directive)
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, consoleTickCmd())
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-8, 3)
		m.ready = true
		m.refreshViewport()

	case consoleTickMsg:
		return m, consoleTickCmd()

	case notificationBatchMsg:
		for _, ev := range msg.events {
			m.handleNotification(ev)
		}
		m.refreshViewport()

	case stateMsg:
		m.state = msg.next
		if msg.next == aurora.StateDisconnected && msg.prev.Connected() {
			m.addLogEntry(entryError, "Connection lost - reconnecting...")
		} else if msg.next == aurora.StateConnectedIdle && msg.prev == aurora.StateConnecting {
			m.addLogEntry(entryInfo, "Reconnected")
		}
		m.refreshViewport()

	case resultMsg:
		m.inFlight = ""
		m.inputRequested = false
		m.handleResult(msg)
		m.refreshViewport()

	case inputSentMsg:
		if msg.err != nil {
			m.addLogEntry(entryError, fmt.Sprintf("Input not sent: %v", msg.err))
			m.refreshViewport()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m consoleModel) handleEnter() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()

	action, err := parseConsoleLine(line)
	if err != nil {
		m.addLogEntry(entryError, err.Error())
		m.refreshViewport()
		return m, nil
	}

	// A plain line while a command runs is its input.
	if action.kind == actionCommand && m.inFlight != "" {
		action = consoleAction{kind: actionInput, text: action.text}
	}

	var cmd tea.Cmd
	switch action.kind {
	case actionNone:
		return m, nil

	case actionQuit:
		m.quitting = true
		return m, tea.Quit

	case actionClear:
		m.log = m.log[:0]

	case actionStats:
		for _, line := range strings.Split(strings.TrimRight(m.session.conn.Statistics().String(), "\n"), "\n") {
			m.addLogEntry(entryInfo, line)
		}

	case actionSetType:
		m.responseType = action.responseType
		m.addLogEntry(entryInfo, "Response type: "+action.responseType.String())

	case actionInput:
		if m.inFlight == "" {
			m.addLogEntry(entryError, "No command is running")
			break
		}
		m.addLogEntry(entryCommand, "<< "+action.text)
		cmd = m.session.writeInput(action.text)

	case actionCommand:
		if !m.state.Connected() {
			m.addLogEntry(entryError, "Cannot send command: not connected")
			break
		}
		command := aurora.NewCommand(action.name, action.args...).
			WithResponseTypes(m.responseType, m.responseType).
			WithTimeout(cfg.Command.Timeout)
		m.inFlight = action.name
		m.addLogEntry(entryCommand, ">> "+command.Line())
		cmd = m.session.submit(command)
	}

	m.refreshViewport()
	return m, cmd
}

func (m *consoleModel) handleNotification(ev aurora.Event) {
	switch e := ev.(type) {
	case aurora.InputRequested:
		m.inputRequested = true
		m.addLogEntry(entryInfo, "Device is waiting for input")
	case aurora.CommandOutput:
		for _, line := range strings.Split(strings.TrimRight(string(e.Data), "\n"), "\n") {
			m.addLogEntry(entryResult, line)
		}
	case aurora.ParseError:
		m.addLogEntry(entryError, aurora.FormatEvent(ev))
	default:
		m.addLogEntry(entryNotification, aurora.FormatEvent(ev))
	}
}

func (m *consoleModel) handleResult(msg resultMsg) {
	if msg.err != nil {
		var cmdErr *aurora.CommandError
		switch {
		case errors.As(msg.err, &cmdErr):
			m.addLogEntry(entryError, cmdErr.Message)
		default:
			m.addLogEntry(entryError, fmt.Sprintf("%s: %v", msg.command, msg.err))
		}
		return
	}

	kind := entryResult
	if msg.result.Error {
		kind = entryError
	}
	for _, line := range strings.Split(strings.TrimRight(aurora.FormatResult(msg.result), "\n"), "\n") {
		m.addLogEntry(kind, line)
	}
}

func (m *consoleModel) addLogEntry(kind int, text string) {
	m.log = append(m.log, logEntry{timestamp: time.Now(), kind: kind, text: text})

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func renderLogEntry(e logEntry) string {
	timestamp := headerStyle.Render(e.timestamp.Format("15:04:05.000"))
	switch e.kind {
	case entryCommand:
		return timestamp + " " + commandStyle.Render(e.text)
	case entryResult:
		return timestamp + " " + e.text
	case entryNotification:
		return timestamp + " " + warningStyle.Render(e.text)
	case entryError:
		return timestamp + " " + errorStyle.Render("✗ "+e.text)
	default:
		return timestamp + " " + headerStyle.Render("ℹ "+e.text)
	}
}

func (m *consoleModel) refreshViewport() {
	lines := make([]string, len(m.log))
	for i, e := range m.log {
		lines[i] = renderLogEntry(e)
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if atBottom || m.inFlight != "" {
		m.viewport.GotoBottom()
	}
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("SOMNIUM - AURORA CONSOLE"))
	s.WriteString("\n")

	stateStyle := valueStyle
	if !m.state.Connected() {
		stateStyle = errorStyle
	}
	counters := m.session.conn.Statistics().Counters()
	status := fmt.Sprintf("%s %s   %s %s   %s %d ok / %d failed   %s %d",
		labelStyle.Render("Link:"), headerStyle.Render(m.session.connInfo),
		labelStyle.Render("State:"), stateStyle.Render(m.state.String()),
		labelStyle.Render("Commands:"), counters.CommandsOK, counters.Failures(),
		labelStyle.Render("Notifications:"), counters.Notifications(),
	)
	s.WriteString(status)
	s.WriteString("\n")

	s.WriteString(boxStyle.Width(max(m.width-2, 20)).Render(m.viewport.View()))
	s.WriteString("\n")

	hint := fmt.Sprintf("type: %s | Enter to send | PgUp/PgDn scroll | Esc to quit", m.responseType)
	if m.inFlight != "" {
		hint = fmt.Sprintf("running %s | Enter sends input", m.inFlight)
		if m.inputRequested {
			hint = warningStyle.Render(hint + " (requested)")
		}
	}
	s.WriteString(m.input.View())
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(hint))
	return s.String()
}
