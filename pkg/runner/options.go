package runner

import (
	"io"
	"log/slog"
)

// Option configures the Runner.
type Option func(*Runner)

// WithOutput sets where progress and the report are written.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRenderer configures the content renderer used for responses.
func WithRenderer(renderer ContentRenderer) Option {
	return func(r *Runner) {
		r.renderer = renderer
	}
}

// WithResponses prints every node response in the final report.
func WithResponses(show bool) Option {
	return func(r *Runner) {
		r.showResponses = show
	}
}

// WithInterruptSource sets a channel whose first tick stops the run after
// the current node and whose second tick aborts it.
func WithInterruptSource(ch <-chan struct{}) Option {
	return func(r *Runner) {
		r.interrupts = ch
	}
}
