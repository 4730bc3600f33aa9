// SPDX-License-Identifier: MIT
/*
Package tui is the terminal front end: a Bubble Tea program that renders the
analyser's sinks and status line, shows engine errors in a modal, and turns
key presses into coordinator commands.
*/
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"spectrum/internal/analyser"
	"spectrum/internal/config"
	"spectrum/internal/sink"
)

const (
	commandTimeout   = 5 * time.Second
	spectrumHeight   = 8
	defaultBarWidth  = 3
	defaultWidth     = 80
	defaultRefresh   = 50 * time.Millisecond
	captureTimestamp = "20060102-150405"
)

// Controller is the command surface the TUI drives. *analyser.Coordinator
// satisfies it.
type Controller interface {
	Snapshot() analyser.Snapshot
	OpenFile(ctx context.Context, path string) error
	StartAnalysis(ctx context.Context) error
	StartCapture(ctx context.Context, path string) error
	Reset(ctx context.Context) error
	SelectBar(ctx context.Context, i int) error
}

// Sinks are the display models the coordinator writes and the TUI reads.
type Sinks struct {
	Waveform     *sink.WaveformModel // nil when the waveform is disabled.
	Spectrograph *sink.SpectrographModel
	Level        *sink.LevelMeterModel
	Progress     *sink.ProgressModel
}

// Options configures the TUI.
type Options struct {
	Refresh      time.Duration // Redraw interval.
	RecordingDir string        // Default directory for captures.
	InitialFile  string        // Opened on start when set.
	Errors       *ErrorRelay   // Source of engine error modals; may be nil.
}

type inputMode int

const (
	inputNone inputMode = iota
	inputOpenFile
	inputCapture
)

type tickMsg time.Time

// commandDoneMsg reports the outcome of a coordinator command.
type commandDoneMsg struct {
	op  string
	err error
}

// Model is the analyser screen.
type Model struct {
	ctl   Controller
	sinks Sinks
	opts  Options

	keys     keyMap
	help     help.Model
	input    textinput.Model
	mode     inputMode
	levelBar progress.Model
	posBar   progress.Model
	width    int

	snap     analyser.Snapshot
	bars     []sink.Bar
	level    sink.LevelState
	position sink.ProgressState
	waveform sink.WaveformState
	selected int        // Selected spectrograph band, -1 for none.
	modals   []ErrorMsg // Unacknowledged errors, oldest first.
}

// New creates the analyser screen.
func New(ctl Controller, sinks Sinks, opts Options) Model {
	if opts.Refresh <= 0 {
		opts.Refresh = defaultRefresh
	}
	ti := textinput.New()
	ti.Placeholder = "path/to/file" + config.FileExtension
	ti.CharLimit = 4096

	m := Model{
		ctl:      ctl,
		sinks:    sinks,
		opts:     opts,
		keys:     defaultKeyMap(),
		help:     help.New(),
		input:    ti,
		levelBar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		posBar:   progress.New(progress.WithSolidFill("#25A065")),
		selected: -1,
	}
	m.resize(defaultWidth)
	m.refresh()
	return m
}

// Init starts the redraw ticker and opens the initial file, if any.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tick()}
	if m.opts.Errors != nil {
		cmds = append(cmds, m.opts.Errors.wait())
	}
	if m.opts.InitialFile != "" {
		cmds = append(cmds, m.openFile(m.opts.InitialFile))
	}
	return tea.Batch(cmds...)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) resize(width int) {
	m.width = width
	m.help.Width = width
	m.levelBar.Width = max(10, width-12)
	m.posBar.Width = max(10, width-12)
	m.input.Width = max(10, width-4)
}

// refresh copies the current coordinator and sink state for rendering.
func (m *Model) refresh() {
	m.snap = m.ctl.Snapshot()
	m.bars = m.sinks.Spectrograph.Bars()
	if m.selected >= len(m.bars) {
		m.selected = -1
	}
	m.level = m.sinks.Level.State()
	m.position = m.sinks.Progress.State()
	if m.sinks.Waveform != nil {
		m.waveform = m.sinks.Waveform.State()
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width)
		return m, nil

	case tickMsg:
		m.refresh()
		return m, m.tick()

	case ErrorMsg:
		m.modals = append(m.modals, msg)
		var next tea.Cmd
		if m.opts.Errors != nil {
			next = m.opts.Errors.wait()
		}
		return m, next

	case commandDoneMsg:
		m.refresh()
		if reportable(msg.err) {
			m.modals = append(m.modals, ErrorMsg{Heading: msg.op, Detail: msg.err.Error()})
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.mode != inputNone {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The modal swallows everything until acknowledged.
	if len(m.modals) > 0 {
		if key.Matches(msg, m.keys.Confirm, m.keys.Cancel) {
			m.modals = m.modals[1:]
		}
		return m, nil
	}

	if m.mode != inputNone {
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.closeInput()
			return m, nil
		case key.Matches(msg, m.keys.Confirm):
			value, mode := strings.TrimSpace(m.input.Value()), m.mode
			m.closeInput()
			if value == "" {
				return m, nil
			}
			if mode == inputCapture {
				return m, m.startCapture(value)
			}
			return m, m.openFile(value)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Open):
		if m.snap.CanOpenFile {
			return m, m.openInput(inputOpenFile, "")
		}
	case key.Matches(msg, m.keys.Record):
		if m.snap.CanOpenFile {
			name := "capture-" + time.Now().Format(captureTimestamp) + config.FileExtension
			return m, m.openInput(inputCapture, filepath.Join(m.opts.RecordingDir, name))
		}
	case key.Matches(msg, m.keys.Analyse):
		if m.snap.CanStartAnalysis {
			return m, m.command("Start analysis", m.ctl.StartAnalysis)
		}
	case key.Matches(msg, m.keys.Reset):
		return m, m.command("Reset", m.ctl.Reset)
	case key.Matches(msg, m.keys.Prev):
		return m, m.selectBar(m.selected - 1)
	case key.Matches(msg, m.keys.Next):
		return m, m.selectBar(m.selected + 1)
	}
	return m, nil
}

// selectBar moves the selection to band i, clamped to the bands shown, and
// asks the coordinator to describe it.
func (m *Model) selectBar(i int) tea.Cmd {
	if len(m.bars) == 0 {
		return nil
	}
	m.selected = min(len(m.bars)-1, max(0, i))
	i = m.selected
	return m.command("Select band", func(ctx context.Context) error {
		return m.ctl.SelectBar(ctx, i)
	})
}

// reportable reports whether err needs acknowledging. A missing selection
// is recovered locally; an unsupported one is still shown.
func reportable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, analyser.ErrInvalidSelection) || errors.Is(err, analyser.ErrUnsupportedFile)
}

func (m *Model) openInput(mode inputMode, value string) tea.Cmd {
	m.mode = mode
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) closeInput() {
	m.mode = inputNone
	m.input.Blur()
	m.input.Reset()
}

func (m Model) command(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) openFile(path string) tea.Cmd {
	return m.command("Open file", func(ctx context.Context) error {
		return m.ctl.OpenFile(ctx, path)
	})
}

func (m Model) startCapture(path string) tea.Cmd {
	return m.command("Start capture", func(ctx context.Context) error {
		return m.ctl.StartCapture(ctx, path)
	})
}

// View renders the UI
func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Spectrum Analyser"))
	sb.WriteString("  ")
	sb.WriteString(infoStyle.Render(m.stateLine()))
	sb.WriteString("\n\n")

	barWidth := defaultBarWidth
	if n := len(m.bars); n > 0 {
		barWidth = min(8, max(1, m.width/n-1))
	}
	sb.WriteString(renderBars(m.bars, spectrumHeight, barWidth, m.selected))
	sb.WriteString("\n")
	if m.selected >= 0 {
		sb.WriteString(highlightStyle.Render(barMarker(m.selected, barWidth)))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render(m.bandLabels()))
	sb.WriteString("\n\n")

	if m.sinks.Waveform != nil {
		sb.WriteString("Wave   ")
		sb.WriteString(renderWaveform(m.waveform.Samples, max(10, m.width-12)))
		sb.WriteString("\n")
	}
	sb.WriteString("Level  ")
	sb.WriteString(m.levelBar.ViewAs(m.level.RMS))
	sb.WriteString(fmt.Sprintf(" %3.0f%%", m.level.PeakHold*100))
	sb.WriteString("\n")
	sb.WriteString("Pos    ")
	sb.WriteString(m.posBar.ViewAs(m.position.Fraction()))
	sb.WriteString("\n\n")

	status := m.snap.Status.Text
	if status == "" {
		status = " "
	}
	sb.WriteString(highlightStyle.Render(status))
	sb.WriteString("\n")

	switch m.mode {
	case inputOpenFile:
		sb.WriteString("Open: " + m.input.View() + "\n")
	case inputCapture:
		sb.WriteString("Record to: " + m.input.View() + "\n")
	}

	if len(m.modals) > 0 {
		top := m.modals[0]
		hint := "enter: dismiss"
		if n := len(m.modals) - 1; n > 0 {
			hint += fmt.Sprintf(" (%d more)", n)
		}
		body := highlightStyle.Render(top.Heading) + "\n\n" + top.Detail + "\n\n" + dimStyle.Render(hint)
		sb.WriteString("\n" + modalStyle.Render(body) + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m Model) stateLine() string {
	parts := []string{m.snap.Mode.String()}
	if m.snap.Source != "" {
		parts = append(parts, filepath.Base(m.snap.Source))
	}
	parts = append(parts, fmt.Sprintf("engine %s/%s", m.snap.EngineMode, m.snap.EngineState))
	if f := m.snap.Format.String(); f != "" {
		parts = append(parts, f)
	}
	return strings.Join(parts, " · ")
}

func (m Model) bandLabels() string {
	if len(m.bars) == 0 {
		return ""
	}
	first, last := m.bars[0], m.bars[len(m.bars)-1]
	return fmt.Sprintf("%.0f Hz … %.0f Hz (%d bands)", first.LowHz, last.HighHz, len(m.bars))
}

// Run starts the program on the terminal's alternate screen.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
