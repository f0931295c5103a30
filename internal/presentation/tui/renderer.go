// Package tui holds the terminal presentation helpers of the CLI.
package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a markdown renderer for terminal output.
// It falls back to the raw text when glamour cannot be initialised.
func NewRenderer(wordWrap int) func(string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if wordWrap > 0 {
		opts = append(opts, glamour.WithWordWrap(wordWrap))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
