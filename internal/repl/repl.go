// Package repl implements the interactive chat loop.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rustkissvdb/kissrag/internal/log"
	"github.com/rustkissvdb/kissrag/internal/memory"
	"github.com/rustkissvdb/kissrag/internal/rag"
)

// maxFooterPages caps the page list printed under an answer.
const maxFooterPages = 8

// Styles contains the lipgloss styles for the chat loop.
type Styles struct {
	Prompt  lipgloss.Style
	Answer  lipgloss.Style
	System  lipgloss.Style
	Error   lipgloss.Style
	Sources lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Prompt:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Answer:  lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		System:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Sources: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// REPL reads questions, runs them through the engine, and prints answers
// with their source pages. Slash commands inspect and tune the session.
type REPL struct {
	engine *rag.Engine
	in     io.Reader
	out    io.Writer
	styles Styles
	logger log.Logger

	lastSources []rag.Source
}

// New creates a REPL reading from in and writing to out.
func New(engine *rag.Engine, in io.Reader, out io.Writer, logger log.Logger) *REPL {
	if logger == nil {
		logger = log.NewNop()
	}
	return &REPL{
		engine: engine,
		in:     in,
		out:    out,
		styles: DefaultStyles(),
		logger: logger,
	}
}

// Run drives the loop until /exit, end of input, or a read error.
func (r *REPL) Run(ctx context.Context) error {
	r.printf("%s\n", r.styles.System.Render(
		fmt.Sprintf("session %s | collection %s | /help for commands",
			r.engine.History().Session(), r.engine.Collection())))

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		r.printf("%s ", r.styles.Prompt.Render(">"))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			r.printf("\n")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := r.command(ctx, line); done {
				return nil
			}
			continue
		}
		r.ask(ctx, line)
	}
}

// ask runs one chat turn and renders the result.
func (r *REPL) ask(ctx context.Context, question string) {
	turn, err := r.engine.Ask(ctx, question)
	if turn == nil {
		r.printf("%s\n", r.styles.Error.Render(fmt.Sprintf("error: %v", err)))
		return
	}

	r.printf("%s\n", r.styles.Answer.Render(turn.Answer))
	r.printf("%s\n", r.styles.Sources.Render(rag.SourcesFooter(turn.Sources, maxFooterPages)))
	r.lastSources = turn.Sources

	// The answer is shown even when committing it to memory failed.
	if err != nil {
		if errors.Is(err, memory.ErrConflict) {
			r.printf("%s\n", r.styles.System.Render(
				"note: another session updated this history; this exchange was not saved"))
			return
		}
		r.printf("%s\n", r.styles.Error.Render(fmt.Sprintf("warning: %v", err)))
	}
}

// command dispatches one slash command. It returns true when the loop
// should stop.
func (r *REPL) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return true
	case "/help":
		r.printHelp()
	case "/clear":
		r.clear(ctx)
	case "/history":
		r.printHistory(ctx)
	case "/stats":
		r.printStats()
	case "/session":
		r.printf("%s\n", r.styles.System.Render(fmt.Sprintf(
			"session %s (state key %s)",
			r.engine.History().Session(), r.engine.History().StateKey())))
	case "/sources":
		r.printSources()
	case "/set":
		r.set(fields[1:])
	default:
		r.printf("%s\n", r.styles.Error.Render(fmt.Sprintf("unknown command %s, try /help", fields[0])))
	}
	return false
}

func (r *REPL) printHelp() {
	help := strings.Join([]string{
		"/exit            leave the chat",
		"/clear           wipe this session's history",
		"/history         show the stored conversation",
		"/stats           show retrieval settings",
		"/session         show the session identifier",
		"/sources         show the sources behind the last answer",
		"/set topk N      hits per query (1-50)",
		"/set chars N     context budget in characters (800-20000)",
		"/set window N    history turns sent to the model (2-50)",
	}, "\n")
	r.printf("%s\n", r.styles.System.Render(help))
}

func (r *REPL) clear(ctx context.Context) {
	if err := r.engine.History().Clear(ctx); err != nil {
		r.printf("%s\n", r.styles.Error.Render(fmt.Sprintf("clearing history: %v", err)))
		return
	}
	r.lastSources = nil
	r.printf("%s\n", r.styles.System.Render("history cleared"))
}

func (r *REPL) printHistory(ctx context.Context) {
	messages, err := r.engine.History().Load(ctx)
	if err != nil {
		r.printf("%s\n", r.styles.Error.Render(fmt.Sprintf("loading history: %v", err)))
		return
	}
	if len(messages) == 0 {
		r.printf("%s\n", r.styles.System.Render("history is empty"))
		return
	}
	for _, m := range messages {
		r.printf("%s\n", r.styles.System.Render(fmt.Sprintf("%s: %s", m.Role, short(m.Content, 120))))
	}
}

func (r *REPL) printStats() {
	r.printf("%s\n", r.styles.System.Render(fmt.Sprintf(
		"collection=%s top_k=%d context_chars=%d history_window=%d",
		r.engine.Collection(), r.engine.TopK(), r.engine.ContextChars(), r.engine.HistoryWindow())))
}

func (r *REPL) printSources() {
	if len(r.lastSources) == 0 {
		r.printf("%s\n", r.styles.System.Render("no sources yet, ask something first"))
		return
	}
	for i, s := range r.lastSources {
		label := fmt.Sprintf("%d. score=%.4f", i+1, s.Score)
		if s.Page > 0 {
			label += fmt.Sprintf(" p.%d", s.Page)
		}
		if s.Origin != "" {
			label += " " + s.Origin
		}
		r.printf("%s\n", r.styles.Sources.Render(label))
		r.printf("   %s\n", r.styles.Sources.Render(short(s.Text, 160)))
	}
}

func (r *REPL) set(args []string) {
	if len(args) != 2 {
		r.printf("%s\n", r.styles.Error.Render("usage: /set topk|chars|window N"))
		return
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		r.printf("%s\n", r.styles.Error.Render(fmt.Sprintf("not a number: %q", args[1])))
		return
	}

	var applied int
	switch args[0] {
	case "topk":
		applied = r.engine.SetTopK(n)
	case "chars":
		applied = r.engine.SetContextChars(n)
	case "window":
		applied = r.engine.SetHistoryWindow(n)
	default:
		r.printf("%s\n", r.styles.Error.Render(fmt.Sprintf("unknown setting %q", args[0])))
		return
	}
	r.printf("%s\n", r.styles.System.Render(fmt.Sprintf("%s set to %d", args[0], applied)))
}

func (r *REPL) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// short truncates s to at most n runes, marking the cut.
func short(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
