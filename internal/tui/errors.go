// SPDX-License-Identifier: MIT
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"spectrum/internal/log"
)

// ErrorMsg asks the user to acknowledge a failure.
type ErrorMsg struct {
	Heading string
	Detail  string
}

// ErrorRelay is an analyser error sink that forwards errors to the TUI.
// ShowError never blocks; errors beyond the buffer are logged and dropped.
type ErrorRelay struct {
	ch chan ErrorMsg
}

func NewErrorRelay() *ErrorRelay {
	return &ErrorRelay{ch: make(chan ErrorMsg, 16)}
}

func (r *ErrorRelay) ShowError(heading, detail string) {
	select {
	case r.ch <- ErrorMsg{Heading: heading, Detail: detail}:
	default:
		log.Errorf("TUI: dropped error %s: %s", heading, detail)
	}
}

// wait returns a command that delivers the next relayed error.
func (r *ErrorRelay) wait() tea.Cmd {
	return func() tea.Msg {
		return <-r.ch
	}
}
