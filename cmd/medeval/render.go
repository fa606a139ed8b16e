package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/xiaot623/medeval/internal/domain"
)

// markdownRenderer renders markdown for a terminal, or passes it through
// when stdout is not a terminal.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

func newMarkdownRenderer() *markdownRenderer {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return &markdownRenderer{}
	}
	width := 80
	if w, _, err := term.GetSize(fd); err == nil && w > 20 {
		width = w - 4
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &markdownRenderer{}
	}
	return &markdownRenderer{renderer: renderer}
}

func (r *markdownRenderer) Print(w io.Writer, md string) {
	if r.renderer != nil {
		if out, err := r.renderer.Render(md); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprintln(w, md)
}

// transcriptMarkdown formats a stored session as a markdown document.
func transcriptMarkdown(session *domain.Session, subject, evaluator *domain.Subject, messages []domain.Message, summary *domain.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", session.SessionID)
	fmt.Fprintf(&b, "- **Trainee:** %s\n", displayName(subject, session.SubjectID))
	fmt.Fprintf(&b, "- **Evaluator:** %s\n", displayName(evaluator, session.EvaluatorID))
	fmt.Fprintf(&b, "- **Started:** %s\n", session.StartedAt.Local().Format("2006-01-02 15:04"))
	if session.CompletedAt != nil {
		fmt.Fprintf(&b, "- **Completed:** %s\n", session.CompletedAt.Local().Format("2006-01-02 15:04"))
	} else {
		b.WriteString("- **Completed:** open\n")
	}

	b.WriteString("\n## Transcript\n")
	if len(messages) == 0 {
		b.WriteString("\n_No messages._\n")
	}
	for _, m := range messages {
		fmt.Fprintf(&b, "\n**%s:**\n\n%s\n", speaker(m.Sender), m.Content)
	}

	if summary != nil {
		b.WriteString("\n## Summary\n\n")
		b.WriteString(summary.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func displayName(s *domain.Subject, fallback string) string {
	if s == nil {
		return fallback
	}
	if s.Department != "" {
		return s.Name + " (" + s.Department + ")"
	}
	return s.Name
}

func speaker(sender domain.Sender) string {
	if sender == domain.SenderAssistant {
		return "Interviewer"
	}
	return "Evaluator"
}
