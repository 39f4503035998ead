package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleErr   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleValue = lipgloss.NewStyle().Bold(true)
)

// stdoutIsTerminal gates styled output: piped output stays plain.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func renderOK(s string) string {
	if !stdoutIsTerminal() {
		return s
	}
	return styleOK.Render(s)
}

func renderErr(s string) string {
	if !stdoutIsTerminal() {
		return s
	}
	return styleErr.Render(s)
}

func renderKV(label, value string) string {
	if !stdoutIsTerminal() {
		return label + ": " + value
	}
	return styleLabel.Render(label+": ") + styleValue.Render(value)
}
