// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Open    key.Binding
	Analyse key.Binding
	Record  key.Binding
	Reset   key.Binding
	Prev    key.Binding
	Next    key.Binding
	Help    key.Binding
	Quit    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Open:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open file")),
		Analyse: key.NewBinding(key.WithKeys("a", " "), key.WithHelp("a", "analyse")),
		Record:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "record")),
		Reset:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reset")),
		Prev:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "previous band")),
		Next:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next band")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Analyse, k.Record, k.Reset, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Open, k.Analyse, k.Record},
		{k.Reset, k.Prev, k.Next},
		{k.Confirm, k.Cancel},
		{k.Help, k.Quit},
	}
}
