// Package ui provides terminal rendering helpers and the interactive
// confirmation prompter used by the deletion sub-protocol.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// RenderPass renders success markers.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders warning markers.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders failure markers.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent renders informational accents.
func RenderAccent(s string) string { return accentStyle.Render(s) }
