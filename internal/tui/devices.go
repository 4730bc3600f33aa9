// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"spectrum/internal/engine"
)

// sampleRates are the rates offered on the detail pane.
var sampleRates = []float64{44100, 48000, 88200, 96000}

type devicePane int

const (
	paneList devicePane = iota
	paneDetail
)

type deviceKeys struct {
	Up   key.Binding
	Down key.Binding
	Open key.Binding
	Back key.Binding
	Quit key.Binding
}

func defaultDeviceKeys() deviceKeys {
	return deviceKeys{
		Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Back: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type devicesLoadedMsg struct {
	devices []engine.Device
	err     error
}

// DeviceBrowser lists the host's audio devices and, for the chosen one,
// the config.yaml lines that select it at a given sample rate.
type DeviceBrowser struct {
	fetch func() ([]engine.Device, error)
	keys  deviceKeys
	help  help.Model
	view  viewport.Model
	ready bool

	devices []engine.Device
	err     error
	pane    devicePane
	device  int // Cursor into devices.
	rate    int // Cursor into sampleRates.
}

// NewDeviceBrowser creates a browser that loads devices with fetch,
// normally engine.HostDevices.
func NewDeviceBrowser(fetch func() ([]engine.Device, error)) DeviceBrowser {
	return DeviceBrowser{fetch: fetch, keys: defaultDeviceKeys(), help: help.New()}
}

func (m DeviceBrowser) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		return devicesLoadedMsg{devices: devices, err: err}
	}
}

func (m DeviceBrowser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		if m.ready {
			m.view.Width, m.view.Height = msg.Width, msg.Height-4
		} else {
			m.view = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		}
	case devicesLoadedMsg:
		m.devices, m.err = msg.devices, msg.err
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		m.navigate(msg)
	}

	if m.ready {
		m.view.SetContent(m.content())
	}
	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m *DeviceBrowser) navigate(msg tea.KeyMsg) {
	if m.pane == paneDetail {
		switch {
		case key.Matches(msg, m.keys.Up):
			m.rate = step(m.rate, -1, len(sampleRates))
		case key.Matches(msg, m.keys.Down):
			m.rate = step(m.rate, 1, len(sampleRates))
		case key.Matches(msg, m.keys.Back):
			m.pane = paneList
		}
		return
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.device = step(m.device, -1, len(m.devices))
	case key.Matches(msg, m.keys.Down):
		m.device = step(m.device, 1, len(m.devices))
	case key.Matches(msg, m.keys.Open):
		if d, ok := m.SelectedDevice(); ok {
			m.pane = paneDetail
			m.rate = max(0, slices.Index(sampleRates, d.DefaultSampleRate))
		}
	}
}

// step moves cursor i by delta within [0, n).
func step(i, delta, n int) int {
	return max(0, min(n-1, i+delta))
}

func (m DeviceBrowser) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	title := "Audio Devices"
	bindings := []key.Binding{m.keys.Up, m.keys.Down, m.keys.Open, m.keys.Quit}
	if m.pane == paneDetail {
		title = "Device Detail"
		bindings = []key.Binding{m.keys.Up, m.keys.Down, m.keys.Back, m.keys.Quit}
	}
	return titleStyle.Render(title) + "\n\n" + m.view.View() + "\n\n" + m.help.ShortHelpView(bindings)
}

func (m DeviceBrowser) content() string {
	if m.pane == paneDetail {
		return m.detail()
	}
	if len(m.devices) == 0 {
		return "No audio devices found."
	}
	var sb strings.Builder
	for i, d := range m.devices {
		entry := deviceEntry(d)
		if i == m.device {
			entry = highlightStyle.Render(entry)
		}
		sb.WriteString(entry + "\n\n")
	}
	return sb.String()
}

func (m DeviceBrowser) detail() string {
	d, _ := m.SelectedDevice()
	rate := sampleRates[m.rate]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Device: %s (%s)\n\n", d.Name, d.Kind())
	fmt.Fprintf(&sb, "Latency: Low=%.2fms, High=%.2fms\n\nSample Rate:\n", d.LowLatency, d.HighLatency)
	for i, r := range sampleRates {
		line := fmt.Sprintf("    %.0f Hz", r)
		if i == m.rate {
			line = highlightStyle.Render(fmt.Sprintf("  ▶ %.0f Hz", r))
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n" + configSnippet(d, rate))
	return sb.String()
}

func deviceEntry(d engine.Device) string {
	return fmt.Sprintf("[%d] %s (%s)\n    %d in / %d out channels, %.0f Hz default",
		d.ID, d.Name, d.Kind(), d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
}

// configSnippet is the config.yaml fragment that selects d at rate.
func configSnippet(d engine.Device, rate float64) string {
	field := "input_device"
	if d.MaxInputChannels == 0 {
		field = "output_device"
	}
	return fmt.Sprintf("config.yaml:\n  audio:\n    %s: %d\n    sample_rate: %.0f\n", field, d.ID, rate)
}

// SelectedDevice returns the device under the cursor, if any.
func (m DeviceBrowser) SelectedDevice() (engine.Device, bool) {
	if m.device < 0 || m.device >= len(m.devices) {
		return engine.Device{}, false
	}
	return m.devices[m.device], true
}

// RunDeviceBrowser browses the host devices on the alternate screen.
// PortAudio must be initialised.
func RunDeviceBrowser() error {
	_, err := tea.NewProgram(NewDeviceBrowser(engine.HostDevices), tea.WithAltScreen()).Run()
	return err
}
