package tui

import (
	"log/slog"

	"github.com/charmbracelet/lipgloss"
)

// Theme styles the messages the renderer prints between prompts.
type Theme struct {
	Title   lipgloss.Style
	Heading lipgloss.Style
	Info    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// DefaultTheme returns the theme used when none is configured.
func DefaultTheme() Theme {
	return Theme{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Heading: lipgloss.NewStyle().Bold(true),
		Info:    lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Muted:   lipgloss.NewStyle().Faint(true),
	}
}

// Option configures the TUI renderer.
type Option func(*Renderer)

// WithPromptDriver overrides the prompt driver used by the renderer.
func WithPromptDriver(driver PromptDriver) Option {
	return func(r *Renderer) {
		if driver != nil {
			r.driver = driver
		}
	}
}

// WithTheme replaces the default theme.
func WithTheme(theme Theme) Option {
	return func(r *Renderer) {
		r.theme = &theme
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}
