package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
)

// Request names what to run.
type Request struct {
	Mode    domain.RunMode
	NodeID  string
	Options domain.CascadeOptions
}

// Runner executes one run against an engine and reports it as text.
type Runner struct {
	out           io.Writer
	renderer      ContentRenderer
	logger        *slog.Logger
	interrupts    <-chan struct{}
	showResponses bool
}

// New creates a Runner writing to stdout.
func New(opts ...Option) *Runner {
	r := &Runner{
		out:    os.Stdout,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.out = &syncWriter{w: r.out}
	return r
}

// syncWriter serialises writes from hooks and the interrupt watcher.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Hooks returns lifecycle hooks that print progress lines. Pass them to
// runtime.WithHooks when building the engine.
func (r *Runner) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(_ context.Context, e *domain.NodeEvent) {
			fmt.Fprintf(r.out, "%s> %s\n", indent(e.Depth), e.NodeName)
		},
		OnNodeFinish: func(_ context.Context, e *domain.NodeEvent) {
			line := fmt.Sprintf("%s  %s (%s, %d tokens)", indent(e.Depth), e.Status, e.Latency.Round(time.Millisecond), e.Usage.TotalTokens)
			if e.Err != "" {
				line += ": " + e.Err
			}
			fmt.Fprintln(r.out, line)
		},
		OnAction: func(_ context.Context, e *domain.ActionEvent) {
			switch {
			case e.Result.Succeeded():
				fmt.Fprintf(r.out, "  %s created %d children\n", e.Result.PostAction, e.Result.CreatedCount)
			case e.Result.Reason != "":
				fmt.Fprintf(r.out, "  %s %s (%s)\n", e.Result.PostAction, e.Result.Status, e.Result.Reason)
			default:
				fmt.Fprintf(r.out, "  %s %s: %s\n", e.Result.PostAction, e.Result.Status, e.Result.Error)
			}
		},
	}
}

// Run executes req and prints the report. Interrupts from the configured
// source are translated into a graceful stop, then an abort.
func (r *Runner) Run(ctx context.Context, eng *runtime.Engine, req Request) (*domain.CascadeResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.interrupts != nil {
		go r.watchInterrupts(ctx, eng.State(), cancel)
	}

	var (
		res *domain.CascadeResult
		err error
	)
	switch req.Mode {
	case domain.ModeSingle:
		res, err = eng.RunNode(ctx, req.NodeID, req.Options.Seed)
	default:
		res, err = eng.RunCascade(ctx, req.NodeID, req.Options)
	}
	if res != nil {
		r.Report(res)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "run failed", "root_id", req.NodeID, "err", err)
	}
	return res, err
}

func (r *Runner) watchInterrupts(ctx context.Context, state *runtime.RunState, abort context.CancelFunc) {
	graceful := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.interrupts:
			if graceful {
				graceful = false
				state.RequestCancel()
				fmt.Fprintln(r.out, "[System] stopping after the current node; interrupt again to abort")
				continue
			}
			fmt.Fprintln(r.out, "[System] aborting")
			abort()
			return
		}
	}
}

// Report prints a per-node summary followed by run totals.
func (r *Runner) Report(res *domain.CascadeResult) {
	var total domain.Usage
	fmt.Fprintln(r.out)
	for _, n := range res.Results {
		total = total.Add(n.Usage)
		mark := "ok"
		if !n.Success {
			mark = string(n.Status)
		}
		fmt.Fprintf(r.out, "%s[%s] %s (%s)\n", indent(n.Depth), mark, n.Name, n.NodeID)
		if n.Error != "" {
			fmt.Fprintf(r.out, "%s  %s\n", indent(n.Depth), n.Error)
		}
		if r.showResponses && n.Response != "" {
			fmt.Fprintln(r.out, r.render(n.Response))
		}
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(r.out, "skipped: %s\n", strings.Join(res.Skipped, ", "))
	}
	fmt.Fprintf(r.out, "status=%s nodes=%d tokens=%d duration=%s\n",
		res.Status, len(res.Results), total.TotalTokens, res.Duration.Round(time.Millisecond))
}

func (r *Runner) render(markdown string) string {
	if r.renderer == nil {
		return markdown
	}
	out, err := r.renderer(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(out, "\n")
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
