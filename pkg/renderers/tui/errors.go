package tui

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C) or chose to
	// quit.
	ErrAborted = errors.New("tui: aborted")
	// ErrNoForm is returned when the renderer is constructed without a form.
	ErrNoForm = errors.New("tui: form is required")
)
