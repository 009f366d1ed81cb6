// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/fieldgate/internal/config"
	"github.com/Thermoquad/fieldgate/pkg/atcmd"
	"github.com/Thermoquad/fieldgate/pkg/hal"
	"github.com/Thermoquad/fieldgate/pkg/murata"
)

const (
	consolePollInterval = 200 * time.Millisecond
	consoleMaxEntries   = 500
	consoleMaxHistory   = 50
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive AT console for the LoRaWAN module",
	Long: `Type AT commands and watch the module's classified responses.

Unsolicited events (join results, downlink data, reboots) are shown as they
arrive. The AT prefix is optional. Up and down recall earlier commands,
PgUp and PgDn scroll the log.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// atRadio is the part of the module controller the console drives
type atRadio interface {
	Transact(line string, timeout time.Duration) (atcmd.Event, error)
	Poll() []atcmd.Event
}

// radioSession serializes access to a radio shared by the console's
// commands, which bubbletea runs on their own goroutines
type radioSession struct {
	mu    sync.Mutex
	radio atRadio
}

func (s *radioSession) transact(line string) tea.Cmd {
	return func() tea.Msg {
		s.mu.Lock()
		defer s.mu.Unlock()
		ev, err := s.radio.Transact(line, murata.DefaultTimeout)
		return atResultMsg{line: line, event: ev, err: err}
	}
}

func (s *radioSession) poll() tea.Cmd {
	return tea.Tick(consolePollInterval, func(time.Time) tea.Msg {
		s.mu.Lock()
		defer s.mu.Unlock()
		return eventsMsg(s.radio.Poll())
	})
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type atResultMsg struct {
	line  string
	event atcmd.Event
	err   error
}

type eventsMsg []atcmd.Event

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type consoleEntry struct {
	timestamp time.Time
	kind      entryKind
	text      string
}

type entryKind int

const (
	entryCommand entryKind = iota
	entryResponse
	entryEvent
	entryError
)

type consoleModel struct {
	session  *radioSession
	connInfo string

	input   textinput.Model
	log     viewport.Model
	entries []consoleEntry

	history []string
	histIdx int
	busy    bool

	width    int
	height   int
	quitting bool
}

func newConsoleModel(session *radioSession, connInfo string) consoleModel {
	ti := textinput.New()
	ti.Prompt = "AT> "
	ti.Placeholder = "+VER?"
	ti.CharLimit = 110
	ti.Width = 60
	ti.Focus()

	return consoleModel{
		session:  session,
		connInfo: connInfo,
		input:    ti,
		log:      viewport.New(80, 18),
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.session.poll())
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = msg.Width
		m.log.Height = max(msg.Height-6, 3)
		m.refreshLog()
		return m, nil

	case atResultMsg:
		m.busy = false
		if msg.err != nil {
			m.addEntry(entryError, fmt.Sprintf("%s: %v", msg.line, msg.err))
		} else {
			m.addEntry(entryResponse, msg.event.String())
		}
		return m, nil

	case eventsMsg:
		for _, ev := range msg {
			m.addEntry(entryEvent, ev.String())
		}
		return m, m.session.poll()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m consoleModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		line := strings.TrimSpace(m.input.Value())
		if line == "" || m.busy {
			return m, nil
		}
		line = atLine(line)
		m.pushHistory(line)
		m.input.Reset()
		m.busy = true
		m.addEntry(entryCommand, line)
		return m, m.session.transact(line)

	case "up":
		m.recall(-1)
		return m, nil

	case "down":
		m.recall(1)
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) pushHistory(line string) {
	if n := len(m.history); n == 0 || m.history[n-1] != line {
		m.history = append(m.history, line)
	}
	if len(m.history) > consoleMaxHistory {
		m.history = m.history[len(m.history)-consoleMaxHistory:]
	}
	m.histIdx = len(m.history)
}

// recall moves through the history, past the newest entry is an empty line
func (m *consoleModel) recall(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.histIdx = min(max(m.histIdx+delta, 0), len(m.history))
	if m.histIdx == len(m.history) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.histIdx])
	m.input.CursorEnd()
}

func (m *consoleModel) addEntry(kind entryKind, text string) {
	m.entries = append(m.entries, consoleEntry{
		timestamp: time.Now(),
		kind:      kind,
		text:      text,
	})
	if len(m.entries) > consoleMaxEntries {
		m.entries = m.entries[len(m.entries)-consoleMaxEntries:]
	}
	m.refreshLog()
}

func (m *consoleModel) refreshLog() {
	commandStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	responseStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	eventStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	var s strings.Builder
	for _, e := range m.entries {
		s.WriteString(timeStyle.Render(e.timestamp.Format("15:04:05.000")))
		s.WriteString(" ")
		switch e.kind {
		case entryCommand:
			s.WriteString(commandStyle.Render("> " + e.text))
		case entryResponse:
			s.WriteString(responseStyle.Render("< " + e.text))
		case entryEvent:
			s.WriteString(eventStyle.Render("! " + e.text))
		case entryError:
			s.WriteString(errorStyle.Render("x " + e.text))
		}
		s.WriteString("\n")
	}
	m.log.SetContent(s.String())
	m.log.GotoBottom()
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))

	var s strings.Builder
	s.WriteString(titleStyle.Render("FIELDGATE AT CONSOLE"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Enter=send Esc=quit", m.connInfo)))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.log.View()))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	if m.busy {
		s.WriteString(headerStyle.Render("  waiting..."))
	}
	s.WriteString("\n")
	return s.String()
}

func runConsole(cmd *cobra.Command, args []string) error {
	c := &config.C
	uart, err := openRadio(c)
	if err != nil {
		return err
	}
	defer uart.Close()

	session := &radioSession{radio: newRadio(c, uart, hal.NopWatchdog)}
	connInfo := fmt.Sprintf("Serial: %s @ %d baud", c.Radio.Port, c.Radio.BaudRate)

	p := tea.NewProgram(newConsoleModel(session, connInfo), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
