package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/lifecycle"
)

// CancelCommand cancels the pending question when typed as an answer.
const CancelCommand = "/cancel"

// ContentRenderer transforms markdown before it is written, e.g. to ANSI.
type ContentRenderer func(string) (string, error)

// TextHandler implements ports.QuestionAsker and ports.Confirmer over plain
// text streams.
type TextHandler struct {
	source      io.Reader
	interactive bool // reading from a terminal handle where EOF is transient
	reader      *bufio.Reader
	Writer      io.Writer
	Renderer    ContentRenderer

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption configures a TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler reading answers from r and writing
// prompts to w. Nil streams default to stdin and stdout.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{Writer: w}
	h.source, h.interactive = resolveInputReader(r)
	h.reader = bufio.NewReader(h.source)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

func (h *TextHandler) pump() {
	for {
		text, err := h.reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if h.interactive {
				// A signal interrupted the read; the terminal stays usable.
				h.inputChan <- inputResult{err: io.EOF}
				time.Sleep(50 * time.Millisecond)
				continue
			}
			close(h.inputChan)
			return
		}
		h.inputChan <- inputResult{err: err}
		time.Sleep(50 * time.Millisecond)
	}
}

// AskQuestion prints the question and reads one answer. An empty line,
// CancelCommand or the end of input cancel the node.
func (h *TextHandler) AskQuestion(ctx context.Context, q domain.QuestionInterrupt) (*string, error) {
	h.render(fmt.Sprintf("**%s**", q.Question))
	if q.Description != "" {
		fmt.Fprintf(h.Writer, "  (%s)\n", q.Description)
	}
	fmt.Fprintf(h.Writer, "  answer is stored as {{%s}}; %s to cancel\n", q.VariableName, CancelCommand)

	line, err := h.Input(ctx)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if line == "" || line == CancelCommand {
		return nil, nil
	}
	return &line, nil
}

// Confirm prints the preview and waits for y/yes. Anything else rejects.
func (h *TextHandler) Confirm(ctx context.Context, p domain.ActionPreview) (bool, error) {
	h.render(FormatPreview(p))
	fmt.Fprint(h.Writer, "Apply? [y/N]\n")

	line, err := h.Input(ctx)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Input prompts and reads one sanitized line. Invalid lines are rejected
// and the prompt is repeated.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, "> ")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

// SystemOutput writes a meta message, distinct from rendered content.
func (h *TextHandler) SystemOutput(msg string) {
	fmt.Fprintf(h.Writer, "[System] %s\n", msg)
}

func (h *TextHandler) render(markdown string) {
	out := markdown
	if h.Renderer != nil {
		if rendered, err := h.Renderer(markdown); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(h.Writer, strings.TrimSpace(out))
}

// FormatPreview renders an action preview as markdown.
func FormatPreview(p domain.ActionPreview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s on %s\n\n", p.PostAction, p.NodeName)
	if p.TargetParentID != "" {
		fmt.Fprintf(&b, "Target parent: `%s`\n\n", p.TargetParentID)
	}
	switch {
	case len(p.ChildNames) > 0:
		fmt.Fprintf(&b, "Creates %d children:\n\n", len(p.ChildNames))
		for _, name := range p.ChildNames {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	case len(p.Items) > 0:
		fmt.Fprintf(&b, "%d items\n", len(p.Items))
	}
	return b.String()
}

// resolveInputReader switches to the platform terminal handle when r is an
// interactive console, so signal handling does not break the stream.
func resolveInputReader(r io.Reader) (io.Reader, bool) {
	if up, err := lifecycle.UpgradeTerminal(r); err == nil && up != r {
		return up, true
	}
	return r, false
}
