package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiaot623/medeval/internal/repository"
)

var showCmd = &cobra.Command{
	Use:   "show <session_id>",
	Short: "Render a stored session transcript and summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	session, err := db.GetSession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s not found", args[0])
	}
	subject, err := db.GetSubject(ctx, session.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to get subject: %w", err)
	}
	evaluator, err := db.GetSubject(ctx, session.EvaluatorID)
	if err != nil {
		return fmt.Errorf("failed to get evaluator: %w", err)
	}
	messages, err := db.ListMessages(ctx, session.SessionID)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}
	summary, err := db.GetSummary(ctx, session.SessionID)
	if err != nil {
		return fmt.Errorf("failed to get summary: %w", err)
	}

	newMarkdownRenderer().Print(cmd.OutOrStdout(), transcriptMarkdown(session, subject, evaluator, messages, summary))
	return nil
}
