package main

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("#7C3AED")
	colorMuted  = lipgloss.Color("#9CA3AF")
	colorWarn   = lipgloss.Color("#F59E0B")
	colorError  = lipgloss.Color("#EF4444")
	colorBot    = lipgloss.Color("#10B981")
)

type styles struct {
	title  lipgloss.Style
	muted  lipgloss.Style
	user   lipgloss.Style
	bot    lipgloss.Style
	notice lipgloss.Style
	err    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		muted:  lipgloss.NewStyle().Foreground(colorMuted),
		user:   lipgloss.NewStyle().Bold(true),
		bot:    lipgloss.NewStyle().Bold(true).Foreground(colorBot),
		notice: lipgloss.NewStyle().Italic(true).Foreground(colorWarn),
		err:    lipgloss.NewStyle().Bold(true).Foreground(colorError),
	}
}
