package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BYTE-6D65/jumpclock/pkg/clock"
	"github.com/BYTE-6D65/jumpclock/pkg/event"
	"github.com/BYTE-6D65/jumpclock/pkg/jumpfeed"
	"github.com/BYTE-6D65/jumpclock/pkg/telemetry"
	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

const maxJumpLog = 12

// Message types
type messageType int

const (
	msgInfo messageType = iota
	msgWarning
	msgError
)

type userMessage struct {
	msgType messageType
	text    string
}

// session owns the clocks and feeds behind the view.
type session struct {
	steady      *clock.Clock
	system      *clock.Clock
	overridable *clock.Clock
	src         *timesource.Source
	replay      *timesource.Replay

	bus   *event.InMemoryBus
	jumps event.Subscription
	feeds []*jumpfeed.Feed

	errBus *event.ErrorBus
	diag   *event.ErrorSubscription

	logOut io.Closer
	cancel context.CancelFunc
}

// Model holds the state of the TUI
type model struct {
	s    *session
	opts options

	width  int
	height int

	steadyNow   clock.Time
	systemNow   clock.Time
	overrideNow clock.Time
	override    bool
	readErr     error

	jumpLog     []string
	userMessage *userMessage
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7D56F4")).
		PaddingLeft(2)

	labelStyle = lipgloss.NewStyle().
		Width(14).
		PaddingLeft(4).
		Foreground(lipgloss.Color("#626262"))

	valueStyle = lipgloss.NewStyle().
		Bold(true)

	activeStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#50FA7B")).
		Bold(true)

	helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#626262")).
		PaddingTop(1).
		PaddingLeft(2)

	logStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7D56F4")).
		Padding(0, 2).
		MarginLeft(2)

	infoMessageStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#00A9E0")).
		Foreground(lipgloss.Color("#00A9E0")).
		Padding(0, 2).
		MarginTop(1).
		MarginLeft(2)

	warningMessageStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#FFB800")).
		Foreground(lipgloss.Color("#FFB800")).
		Padding(0, 2).
		MarginTop(1).
		MarginLeft(2)

	errorMessageStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#FF5555")).
		Foreground(lipgloss.Color("#FF5555")).
		Padding(0, 2).
		MarginTop(1).
		MarginLeft(2)
)

// Messages
type tickMsg struct{}

type jumpMsg struct {
	evt event.Event
}

type diagMsg struct {
	evt event.ErrorEvent
}

func newSession(opts options) (*session, error) {
	cfg, err := clock.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	s := &session{}
	var logOut io.Writer = io.Discard
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logOut, s.logOut = f, f
	}

	s.errBus = event.NewErrorBus(cfg.ErrorBusBufferSize)
	s.diag, err = s.errBus.Subscribe(context.Background(), event.AtLeast(event.InfoSeverity))
	if err != nil {
		return nil, err
	}

	clockOpts := []clock.Option{
		clock.WithLogger(cfg.NewLogger(logOut)),
		clock.WithMetrics(telemetry.Default()),
		clock.WithErrorBus(s.errBus),
	}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())

	if s.steady, err = clock.NewClock(clock.Steady, clockOpts...); err != nil {
		s.close()
		return nil, err
	}

	sysCfg := cfg
	sysCfg.Source = clock.System
	if sysCfg.MonitorInterval == 0 {
		sysCfg.MonitorInterval = opts.monitor
	}
	if s.system, err = clock.NewClockFromConfig(ctx, sysCfg, clockOpts...); err != nil {
		s.close()
		return nil, err
	}

	s.src = timesource.New()
	if s.overridable, err = clock.NewClock(clock.Overridable, append(clockOpts, clock.WithSource(s.src))...); err != nil {
		s.close()
		return nil, err
	}

	if s.replay, err = timesource.NewReplay(s.src); err != nil {
		s.close()
		return nil, err
	}
	s.replay.SetSpeed(cfg.ReplaySpeed)
	s.replay.SetNoSleep(true)
	if err := s.replay.Load(time.Now().UnixNano(), opts.replay); err != nil {
		s.close()
		return nil, err
	}

	s.bus = event.NewInMemoryBus(event.WithBufferSize(64), event.WithDropSlow(true))
	if s.jumps, err = s.bus.Subscribe(ctx, event.Filter{Types: []string{jumpfeed.TypePost}}); err != nil {
		s.close()
		return nil, err
	}

	for _, clk := range []*clock.Clock{s.system, s.overridable} {
		feed, err := jumpfeed.New(clk, s.bus, cfg.DefaultThreshold, jumpfeed.WithErrorBus(s.errBus))
		if err != nil {
			s.close()
			return nil, err
		}
		s.feeds = append(s.feeds, feed)
	}

	return s, nil
}

func (s *session) close() {
	for _, f := range s.feeds {
		f.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	for _, clk := range []*clock.Clock{s.steady, s.system, s.overridable} {
		if clk != nil {
			clk.Close()
		}
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.errBus != nil {
		s.errBus.Close()
	}
	if s.logOut != nil {
		s.logOut.Close()
	}
}

func initialModel(s *session, opts options) model {
	m := model{s: s, opts: opts}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), waitForJump(m.s.jumps), waitForDiag(m.s.diag))
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg{}
	})
}

func waitForJump(sub event.Subscription) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-sub.Events()
		if !ok {
			return nil
		}
		return jumpMsg{evt: evt}
	}
}

func waitForDiag(sub *event.ErrorSubscription) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-sub.Events()
		if !ok {
			return nil
		}
		return diagMsg{evt: evt}
	}
}

func (m *model) refresh() {
	var err error
	if m.steadyNow, err = m.s.steady.Now(); err != nil {
		m.readErr = err
	}
	if m.systemNow, err = m.s.system.Now(); err != nil {
		m.readErr = err
	}
	if m.overrideNow, err = m.s.overridable.Now(); err != nil {
		m.readErr = err
	}
	if m.override, err = m.s.overridable.IsOverrideActive(); err != nil {
		m.readErr = err
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case jumpMsg:
		m.appendJump(msg.evt)
		return m, waitForJump(m.s.jumps)

	case diagMsg:
		m.userMessage = &userMessage{
			msgType: msgWarning,
			text:    msg.evt.String(),
		}
		return m, waitForDiag(m.s.diag)
	}

	return m, nil
}

func (m model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "o":
		if m.override {
			err = m.s.src.DisableOverride()
		} else {
			err = m.s.src.EnableOverride()
		}

	case "+", "=", "right", "l":
		err = m.s.src.StepOverride(m.opts.step)

	case "-", "left", "h":
		err = m.s.src.StepOverride(-m.opts.step)

	case "n":
		var advanced bool
		advanced, err = m.s.replay.Advance()
		if err == nil && !advanced {
			m.userMessage = &userMessage{msgType: msgInfo, text: "Replay finished"}
		}

	case "c":
		m.jumpLog = nil
		m.userMessage = nil
	}

	if err != nil {
		m.userMessage = &userMessage{msgType: msgError, text: err.Error()}
	}
	m.refresh()
	return m, nil
}

func (m *model) appendJump(evt event.Event) {
	var p jumpfeed.Payload
	if err := evt.DecodePayload(&p, event.JSONCodec{}); err != nil {
		return
	}

	line := fmt.Sprintf("#%-4d %s  %-20s %-22s %+v",
		evt.Seq,
		evt.Timestamp.Format("15:04:05.000"),
		evt.Source,
		p.Change,
		time.Duration(p.DeltaNs))

	m.jumpLog = append(m.jumpLog, line)
	if len(m.jumpLog) > maxJumpLog {
		m.jumpLog = m.jumpLog[len(m.jumpLog)-maxJumpLog:]
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("⏱  Clockwatch") + "\n\n")

	b.WriteString(m.renderClock("Steady", m.steadyNow, ""))
	b.WriteString(m.renderClock("System", m.systemNow, wallTime(m.systemNow)))

	status := "off"
	if m.override {
		status = activeStyle.Render("ACTIVE")
	}
	b.WriteString(m.renderClock("Overridable", m.overrideNow, wallTime(m.overrideNow)+"  override "+status))

	if m.s.replay.RemainingDeltas() > 0 {
		b.WriteString(fmt.Sprintf("\n    Replay: step %d, %d remaining\n",
			m.s.replay.CurrentIndex(), m.s.replay.RemainingDeltas()))
	}

	b.WriteString("\n")
	if len(m.jumpLog) == 0 {
		b.WriteString(logStyle.Render("No jumps yet"))
	} else {
		b.WriteString(logStyle.Render(strings.Join(m.jumpLog, "\n")))
	}
	b.WriteString("\n")

	stats := m.s.bus.Stats()
	b.WriteString(helpStyle.Render(fmt.Sprintf("bus: %d published, %d dropped, %d diagnostics dropped",
		stats.Published, stats.Dropped, m.s.errBus.DroppedCount())) + "\n")

	if m.readErr != nil {
		b.WriteString(errorMessageStyle.Render("Read failed: "+m.readErr.Error()) + "\n")
	}
	if m.userMessage != nil {
		b.WriteString(m.renderUserMessage() + "\n")
	}

	b.WriteString(helpStyle.Render(fmt.Sprintf(
		"o toggle override • +/- step %s • n replay next • c clear • q quit", m.opts.step)))
	return b.String()
}

func (m model) renderClock(label string, t clock.Time, extra string) string {
	line := labelStyle.Render(label) + valueStyle.Render(t.String())
	if extra != "" {
		line += "  " + extra
	}
	return line + "\n"
}

func wallTime(t clock.Time) string {
	return time.Unix(0, t.Nanoseconds()).Format("2006-01-02 15:04:05.000")
}

func (m model) renderUserMessage() string {
	if m.userMessage == nil {
		return ""
	}

	var style lipgloss.Style
	var icon string

	switch m.userMessage.msgType {
	case msgInfo:
		style = infoMessageStyle
		icon = "ℹ️ "
	case msgWarning:
		style = warningMessageStyle
		icon = "⚠️  "
	case msgError:
		style = errorMessageStyle
		icon = "❌ "
	}

	return style.Render(icon + m.userMessage.text)
}

func startTUI(opts options) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	p := tea.NewProgram(initialModel(s, opts), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
